package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/hashicorp/go-cleanhttp"
)

const (
	providerName   = "bluesky"
	postCollection = "app.bsky.feed.post"
	defaultPDSURL  = "https://bsky.social"
	defaultAltText = "Image attached via lipost"

	// maxImages is the number of images a single post can embed.
	maxImages = 4
)

var requestTimeout = 30 * time.Second

// Config holds the account credentials and the PDS to talk to.
type Config struct {
	Handle      string
	AppPassword string
	PDSURL      string
	Timeout     time.Duration
}

// Client implements share.Publisher for Bluesky.
type Client struct {
	client *xrpc.Client
}

// New logs in and returns a Bluesky publisher.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.Handle) == "" {
		missing = append(missing, "handle")
	}
	if strings.TrimSpace(cfg.AppPassword) == "" {
		missing = append(missing, "app password")
	}
	if len(missing) > 0 {
		return nil, share.ConfigurationError{Provider: providerName, Variables: missing}
	}
	if cfg.PDSURL == "" {
		cfg.PDSURL = defaultPDSURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout
	userAgent := "lipost/1"
	xrpcClient := &xrpc.Client{
		Client:    httpClient,
		Host:      strings.TrimRight(cfg.PDSURL, "/"),
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, xrpcClient, &atproto.ServerCreateSession_Input{
		Identifier: cfg.Handle,
		Password:   cfg.AppPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	xrpcClient.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	logutil.Debugf("bluesky session created: did=%s", session.Did)

	return &Client{client: xrpcClient}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Publish creates a Bluesky post. Articles become external link cards and
// images are embedded; video is not supported.
func (c *Client) Publish(ctx context.Context, req share.PostRequest) (share.Result, error) {
	if err := req.Validate(); err != nil {
		return share.Result{}, err
	}
	if err := checkSupported(req); err != nil {
		return share.Result{}, err
	}

	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      req.Text,
	}

	switch req.Kind {
	case share.KindArticle:
		post.Embed = externalEmbed(req.Link)
	case share.KindImage:
		images := make([]*bsky.EmbedImages_Image, 0, len(req.Attachments))
		for i, attachment := range req.Attachments {
			logutil.Debugf("uploading blob: index=%d bytes=%d", i, len(attachment.Data))
			blob, err := c.uploadBlob(ctx, attachment)
			if err != nil {
				return share.Result{}, err
			}
			images = append(images, &bsky.EmbedImages_Image{
				Alt:   altText(req.Link),
				Image: blob,
			})
		}
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{Images: images},
		}
	}

	out, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       c.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return share.Result{}, stageError(share.StagePublish, err)
	}

	return share.Result{Provider: providerName, PostID: out.Uri, URL: webURL(c.client.Auth.Handle, out.Uri)}, nil
}

func checkSupported(req share.PostRequest) error {
	switch {
	case req.Kind == share.KindVideo:
		return share.ConfigurationError{Provider: providerName, Reason: "video posts are not supported"}
	case req.Kind == share.KindImage && len(req.Attachments) > maxImages:
		return share.ConfigurationError{Provider: providerName, Reason: fmt.Sprintf("at most %d images per post", maxImages)}
	}
	return nil
}

func externalEmbed(link share.Link) *bsky.FeedPost_Embed {
	return &bsky.FeedPost_Embed{
		EmbedExternal: &bsky.EmbedExternal{
			External: &bsky.EmbedExternal_External{
				Uri:         link.URL,
				Title:       link.Title,
				Description: link.Description,
			},
		},
	}
}

func altText(link share.Link) string {
	if alt := strings.TrimSpace(link.Description); alt != "" {
		return alt
	}
	if alt := strings.TrimSpace(link.Title); alt != "" {
		return alt
	}
	return defaultAltText
}

func (c *Client) uploadBlob(ctx context.Context, attachment share.Attachment) (*util.LexBlob, error) {
	resp, err := atproto.RepoUploadBlob(ctx, c.client, bytes.NewReader(attachment.Data))
	if err != nil {
		return nil, stageError(share.StageUpload, err)
	}
	if resp.Blob == nil {
		return nil, stageError(share.StageUpload, errors.New("empty response"))
	}
	return resp.Blob, nil
}

// stageError keeps the HTTP status of XRPC failures.
func stageError(stage share.Stage, err error) error {
	se := &share.StageError{Provider: providerName, Stage: stage, Err: err}
	var xerr *xrpc.Error
	if errors.As(err, &xerr) {
		se.StatusCode = xerr.StatusCode
	}
	return se
}

// webURL turns at://did/app.bsky.feed.post/rkey into the bsky.app address.
func webURL(handle, uri string) string {
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if handle == "" || len(parts) != 3 || parts[1] != postCollection {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, parts[2])
}

var _ share.Publisher = (*Client)(nil)
