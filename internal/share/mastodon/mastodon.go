package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	mastodonapi "github.com/mattn/go-mastodon"
)

const providerName = "mastodon"

var requestTimeout = 30 * time.Second

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client wraps the Mastodon API client with share semantics.
type Client struct {
	client *mastodonapi.Client
}

// New constructs a Mastodon publisher.
func New(cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.Server) == "" {
		missing = append(missing, "server")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if len(missing) > 0 {
		return nil, share.ConfigurationError{Provider: providerName, Variables: missing}
	}

	mastodonClient := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	mastodonClient.Timeout = requestTimeout
	if cfg.Timeout > 0 {
		mastodonClient.Timeout = cfg.Timeout
	}

	return &Client{client: mastodonClient}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Publish posts a new status. Article links are appended to the text; images
// and videos are uploaded and attached in order.
func (c *Client) Publish(ctx context.Context, req share.PostRequest) (share.Result, error) {
	if err := req.Validate(); err != nil {
		return share.Result{}, err
	}

	var mediaIDs []mastodonapi.ID
	for i, attachment := range req.Attachments {
		logutil.Debugf("uploading media: index=%d bytes=%d", i, len(attachment.Data))
		uploaded, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
			File:        bytes.NewReader(attachment.Data),
			Description: req.Link.Description,
		})
		if err != nil {
			return share.Result{}, &share.StageError{Provider: providerName, Stage: share.StageUpload, Err: err}
		}
		mediaIDs = append(mediaIDs, uploaded.ID)
	}

	status, err := c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   statusText(req),
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return share.Result{}, &share.StageError{Provider: providerName, Stage: share.StagePublish, Err: fmt.Errorf("post status: %w", err)}
	}

	return share.Result{Provider: providerName, PostID: string(status.ID), URL: status.URL}, nil
}

// statusText appends the article link, if any, after a blank line.
func statusText(req share.PostRequest) string {
	if req.Kind == share.KindArticle && req.Link.URL != "" {
		return req.Text + "\n\n" + req.Link.URL
	}
	return req.Text
}

var _ share.Publisher = (*Client)(nil)
