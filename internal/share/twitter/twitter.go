package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
)

const (
	providerName = "twitter"

	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"

	// maxImages is the number of images a single tweet can carry.
	maxImages = 4
)

var httpTimeout = 30 * time.Second

// Config captures the credentials required for OAuth 1.0a user-context requests.
type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
	Debug        bool
	Timeout      time.Duration
}

// Client implements share.Publisher for X (Twitter).
type Client struct {
	api *gotwi.Client
}

// New constructs a Twitter publisher using gotwi and OAuth 1.0a credentials.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = httpTimeout
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	debugEnabled := cfg.Debug || logutil.Verbose()

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           httpClient,
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                debugEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}

	if !client.IsReady() {
		return nil, fmt.Errorf("twitter client not ready")
	}

	return &Client{api: client}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Publish tweets the text. Article links are appended to the text so X can
// unfurl a card; images go through the chunked media upload.
func (c *Client) Publish(ctx context.Context, req share.PostRequest) (share.Result, error) {
	if err := req.Validate(); err != nil {
		return share.Result{}, err
	}
	if err := checkSupported(req); err != nil {
		return share.Result{}, err
	}

	// resolve every media type before the first upload
	types := make([]mediaKind, len(req.Attachments))
	for i, attachment := range req.Attachments {
		mediaType, category, err := resolveMediaType(attachment.Name, attachment.Data)
		if err != nil {
			return share.Result{}, err
		}
		types[i] = mediaKind{mediaType: mediaType, category: category}
	}

	var mediaIDs []string
	for i, attachment := range req.Attachments {
		logutil.Debugf("uploading media: index=%d name=%s", i, attachment.Name)
		mediaID, err := c.uploadMedia(ctx, attachment.Data, types[i], req.Link.Description)
		if err != nil {
			return share.Result{}, &share.StageError{Provider: providerName, Stage: share.StageUpload, Err: err}
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("media uploaded: media_id=%s", mediaID)
	}

	input := &managetweettypes.CreateInput{
		Text: gotwi.String(tweetText(req)),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	out, err := managetweet.Create(ctx, c.api, input)
	if err != nil {
		return share.Result{}, &share.StageError{Provider: providerName, Stage: share.StagePublish, Err: apiError(err)}
	}
	id := gotwi.StringValue(out.Data.ID)
	logutil.Debugf("tweet posted: id=%s", id)

	return share.Result{Provider: providerName, PostID: id}, nil
}

type mediaKind struct {
	mediaType uploadtypes.MediaType
	category  uploadtypes.MediaCategory
}

func checkSupported(req share.PostRequest) error {
	switch {
	case req.Kind == share.KindVideo:
		return share.ConfigurationError{Provider: providerName, Reason: "video posts are not supported"}
	case len(req.Attachments) > maxImages:
		return share.ConfigurationError{Provider: providerName, Reason: fmt.Sprintf("at most %d images per post", maxImages)}
	}
	return nil
}

// tweetText appends the article link, if any, after a blank line.
func tweetText(req share.PostRequest) string {
	if req.Kind == share.KindArticle && req.Link.URL != "" {
		return req.Text + "\n\n" + req.Link.URL
	}
	return req.Text
}

func (c *Client) uploadMedia(ctx context.Context, data []byte, kind mediaKind, altText string) (string, error) {
	logutil.Debugf("initialize upload: media_type=%s bytes=%d", kind.mediaType, len(data))
	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     kind.mediaType,
		TotalBytes:    len(data),
		MediaCategory: kind.category,
	})
	if err = firstError(err, initRes, func() []resources.PartialError { return initRes.Errors }); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	mediaID := initRes.Data.MediaID

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	logutil.Debugf("append upload: media_id=%s", mediaID)
	appendRes, err := upload.Append(ctx, c.api, appendIn)
	if err = firstError(err, appendRes, func() []resources.PartialError { return appendRes.Errors }); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err = firstError(err, finalizeRes, func() []resources.PartialError { return finalizeRes.Errors }); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	info := finalizeRes.Data.ProcessingInfo
	logutil.Debugf("finalize state=%s media_id=%s", info.State, mediaID)
	switch info.State {
	case "", resources.ProcessingInfoStateSucceeded:
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		// images are almost always ready by now; honour the hint once
		if err := sleepCtx(ctx, time.Duration(info.CheckAfterSecs)*time.Second); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", info.State)
	}

	if alt := strings.TrimSpace(altText); alt != "" {
		if err := c.setAltText(ctx, mediaID, alt); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

// firstError returns the transport error, or the API's partial errors when
// the call itself succeeded.
func firstError[T any](err error, res *T, partials func() []resources.PartialError) error {
	if err != nil {
		return apiError(err)
	}
	if res == nil {
		return errors.New("empty response")
	}
	return partialError(partials())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) setAltText(ctx context.Context, mediaID, altText string) error {
	logutil.Debugf("setting alt text: media_id=%s", mediaID)
	params := &altTextParameters{MediaID: mediaID}
	params.AltText.Text = altText

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")
	if err := c.api.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", apiError(err))
	}
	return nil
}

func (cfg Config) validate() error {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "consumer key")
	}
	if strings.TrimSpace(cfg.APISecret) == "" {
		missing = append(missing, "consumer secret")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		missing = append(missing, "access token secret")
	}

	if len(missing) > 0 {
		return share.ConfigurationError{Provider: providerName, Variables: missing}
	}
	return nil
}

var imageTypes = map[string]mediaKind{
	".jpg":  {uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage},
	".jpeg": {uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage},
	".png":  {uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage},
	".gif":  {uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF},
	".webp": {uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage},
}

// resolveMediaType picks the upload type from the file name, falling back
// to sniffing the content.
func resolveMediaType(name string, data []byte) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	if kind, ok := imageTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return kind.mediaType, kind.category, nil
	}

	detected := http.DetectContentType(data)
	for _, sub := range []string{"jpeg", "png", "gif", "webp"} {
		if strings.Contains(detected, sub) {
			kind := imageTypes["."+sub]
			return kind.mediaType, kind.category, nil
		}
	}

	return "", "", share.ConfigurationError{Provider: providerName, Reason: fmt.Sprintf("unsupported image type for %q", name)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case gotwi.StringValue(pe.Detail) != "":
			msgs = append(msgs, *pe.Detail)
		case gotwi.StringValue(pe.Title) != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, fmt.Sprint(*pe.ResourceType))
		}
	}
	return joinMessages(msgs, "unknown error")
}

// apiError flattens a *gotwi.GotwiError into its human-readable parts.
func apiError(err error) error {
	var gwErr *gotwi.GotwiError
	if !errors.As(err, &gwErr) || gwErr == nil {
		return err
	}
	msgs := []string{gwErr.Title, gwErr.Detail}
	for _, e := range gwErr.APIErrors {
		msgs = append(msgs, e.Message)
	}
	return joinMessages(msgs, "X API request failed")
}

func joinMessages(msgs []string, fallback string) error {
	kept := msgs[:0]
	for _, m := range msgs {
		if m = strings.TrimSpace(m); m != "" {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return errors.New(fallback)
	}
	return errors.New(strings.Join(kept, "; "))
}

// altTextParameters implements gotwi.IParameters for the v1.1 media
// metadata endpoint, which gotwi does not wrap.
type altTextParameters struct {
	MediaID string `json:"media_id"`
	AltText struct {
		Text string `json:"text"`
	} `json:"alt_text"`

	accessToken string
}

func (p *altTextParameters) SetAccessToken(token string) { p.accessToken = token }

func (p *altTextParameters) AccessToken() string { return p.accessToken }

func (p *altTextParameters) ResolveEndpoint(endpointBase string) string { return endpointBase }

func (p *altTextParameters) Body() (io.Reader, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *altTextParameters) ParameterMap() map[string]string { return map[string]string{} }

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }

var _ share.Publisher = (*Client)(nil)
