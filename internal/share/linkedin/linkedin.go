package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"github.com/hashicorp/go-cleanhttp"
)

const (
	providerName = "linkedin"

	defaultAPIURL = "https://api.linkedin.com"

	registerUploadPath = "/v2/assets?action=registerUpload"
	ugcPostsPath       = "/v2/ugcPosts"

	restliProtocolVersion = "2.0.0"
	postIDHeader          = "X-Restli-Id"

	// maxResponseBody caps how much of an upstream response is read.
	maxResponseBody = 64 << 10
)

var defaultTimeout = 30 * time.Second

// Config controls where and how the client talks to LinkedIn.
type Config struct {
	// APIURL defaults to https://api.linkedin.com.
	APIURL string
	// Timeout bounds each upstream call. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient defaults to a pooled cleanhttp client.
	HTTPClient *http.Client
}

// Client publishes posts to LinkedIn through the v2 UGC API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	timeout    time.Duration
}

// New constructs a LinkedIn publisher. Credentials travel with each request.
func New(cfg Config) *Client {
	c := &Client{
		httpClient: cfg.HTTPClient,
		apiURL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		timeout:    cfg.Timeout,
	}
	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
	}
	if c.apiURL == "" {
		c.apiURL = defaultAPIURL
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Publish registers and uploads any attachments, then creates the post.
//
// Any failure is terminal for the call. Assets registered or uploaded for
// earlier attachments are left on LinkedIn; the API offers no way to
// withdraw them.
func (c *Client) Publish(ctx context.Context, req share.PostRequest) (share.Result, error) {
	if err := checkCredentials(req); err != nil {
		return share.Result{}, err
	}
	if err := req.Validate(); err != nil {
		return share.Result{}, err
	}

	var assets []MediaAsset
	if req.Kind.HasMedia() {
		for i, attachment := range req.Attachments {
			logutil.Debugf("registering media: index=%d name=%s bytes=%d", i, attachment.Name, len(attachment.Data))
			asset, err := c.register(ctx, req)
			if err != nil {
				return share.Result{}, err
			}

			logutil.Debugf("uploading media: index=%d asset=%s", i, asset.Handle)
			if err := c.upload(ctx, req.AccessToken, asset, attachment); err != nil {
				return share.Result{}, err
			}
			asset.Status = AssetUploaded
			assets = append(assets, asset)
		}
	}

	post := buildPost(req, assets)

	logutil.Debugf("creating post: category=%s media_count=%d", req.Kind.MediaCategory(), len(post.SpecificContent.ShareContent.Media))
	id, err := c.createPost(ctx, req.AccessToken, post)
	if err != nil {
		return share.Result{}, err
	}
	logutil.Debugf("post created: id=%s", id)

	return share.Result{Provider: providerName, PostID: id}, nil
}

func checkCredentials(req share.PostRequest) error {
	var missing []string
	if strings.TrimSpace(req.AccessToken) == "" {
		missing = append(missing, "accessToken")
	}
	if strings.TrimSpace(req.AuthorID) == "" {
		missing = append(missing, "personId")
	}
	if len(missing) > 0 {
		return share.ConfigurationError{Provider: providerName, Variables: missing}
	}
	return nil
}

func (c *Client) createPost(ctx context.Context, token string, post ugcPost) (string, error) {
	resp, body, err := c.postJSON(ctx, ugcPostsPath, token, post)
	if err != nil {
		return "", &share.StageError{Provider: providerName, Stage: share.StagePublish, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return "", &share.StageError{Provider: providerName, Stage: share.StagePublish, StatusCode: resp.StatusCode, Body: body}
	}

	if id := strings.TrimSpace(resp.Header.Get(postIDHeader)); id != "" {
		return id, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			logutil.Debugf("post response has no id header and an unreadable body: %v", err)
		}
	}
	return created.ID, nil
}

// postJSON sends v to the API path and returns the response with its body
// already read.
func (c *Client) postJSON(ctx context.Context, path, token string, v any) (*http.Response, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Restli-Protocol-Version", restliProtocolVersion)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
