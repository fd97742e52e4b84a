// Package credentials turns a signed-in user into a LinkedIn access token
// and profile by asking Clerk for the user's OAuth token.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"github.com/hashicorp/go-cleanhttp"
)

const (
	defaultClerkURL      = "https://api.clerk.com"
	defaultLinkedInURL   = "https://api.linkedin.com"
	defaultOAuthProvider = "oauth_linkedin_oidc"

	userInfoPath = "/v2/userinfo"

	maxResponseBody = 64 << 10
)

var defaultTimeout = 30 * time.Second

// ErrNoToken is returned when Clerk knows the user but holds no LinkedIn
// token for them.
var ErrNoToken = errors.New("no LinkedIn token found")

// UpstreamError reports a non-2xx answer from Clerk or LinkedIn.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("failed to fetch data from %s API (status %d)", e.Service, e.StatusCode)
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		msg += ": " + body
	}
	return msg
}

// UserInfo is the OpenID Connect profile LinkedIn returns for a token. Raw
// keeps the response exactly as received.
type UserInfo struct {
	Subject       string `json:"sub"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Locale        any    `json:"locale,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Credentials are what a publish needs on behalf of a user.
type Credentials struct {
	AccessToken string
	// Subject is the LinkedIn member id, used as the post author.
	Subject  string
	UserInfo UserInfo
}

// Resolver maps a session user id to LinkedIn credentials.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Credentials, error)
}

// Config configures a ClerkResolver.
type Config struct {
	SecretKey     string
	ClerkURL      string
	LinkedInURL   string
	OAuthProvider string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// ClerkResolver resolves credentials through the Clerk backend API.
type ClerkResolver struct {
	cfg        Config
	httpClient *http.Client
}

// NewClerkResolver validates cfg and fills in defaults.
func NewClerkResolver(cfg Config) (*ClerkResolver, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, share.ConfigurationError{Provider: "clerk", Variables: []string{"secret key"}}
	}
	if cfg.ClerkURL == "" {
		cfg.ClerkURL = defaultClerkURL
	}
	if cfg.LinkedInURL == "" {
		cfg.LinkedInURL = defaultLinkedInURL
	}
	if cfg.OAuthProvider == "" {
		cfg.OAuthProvider = defaultOAuthProvider
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.ClerkURL = strings.TrimRight(cfg.ClerkURL, "/")
	cfg.LinkedInURL = strings.TrimRight(cfg.LinkedInURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	return &ClerkResolver{cfg: cfg, httpClient: httpClient}, nil
}

// Resolve fetches the user's LinkedIn token from Clerk, then the profile
// that token belongs to.
func (r *ClerkResolver) Resolve(ctx context.Context, userID string) (Credentials, error) {
	if strings.TrimSpace(userID) == "" {
		return Credentials{}, share.ConfigurationError{Provider: "clerk", Reason: "user id is required"}
	}

	token, err := r.oauthToken(ctx, userID)
	if err != nil {
		return Credentials{}, err
	}
	logutil.Debugf("resolved oauth token for user=%s", userID)

	info, err := r.userInfo(ctx, token)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{AccessToken: token, Subject: info.Subject, UserInfo: info}, nil
}

func (r *ClerkResolver) oauthToken(ctx context.Context, userID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/oauth_access_tokens/%s",
		r.cfg.ClerkURL, url.PathEscape(userID), url.PathEscape(r.cfg.OAuthProvider))

	body, err := r.get(ctx, "Clerk", endpoint, r.cfg.SecretKey)
	if err != nil {
		return "", err
	}

	var tokens []struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &tokens); err != nil {
		return "", fmt.Errorf("decode Clerk response: %w", err)
	}
	if len(tokens) == 0 || tokens[0].Token == "" {
		return "", ErrNoToken
	}
	return tokens[0].Token, nil
}

func (r *ClerkResolver) userInfo(ctx context.Context, token string) (UserInfo, error) {
	body, err := r.get(ctx, "LinkedIn", r.cfg.LinkedInURL+userInfoPath, token)
	if err != nil {
		return UserInfo{}, err
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return UserInfo{}, fmt.Errorf("decode LinkedIn userinfo: %w", err)
	}
	info.Raw = body
	return info, nil
}

func (r *ClerkResolver) get(ctx context.Context, service, endpoint, bearer string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Service: service, StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

var _ Resolver = (*ClerkResolver)(nil)
