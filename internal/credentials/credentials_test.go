package credentials

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blacktop/lipost/internal/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	clerkStatus    int
	clerkBody      string
	linkedInStatus int
	clerkAuth      string
	linkedInAuth   string
	clerkPath      string
}

func (u *upstream) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		u.clerkAuth = r.Header.Get("Authorization")
		u.clerkPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		if u.clerkStatus != 0 {
			w.WriteHeader(u.clerkStatus)
		}
		io.WriteString(w, u.clerkBody)
	})
	mux.HandleFunc("/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		u.linkedInAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if u.linkedInStatus != 0 {
			w.WriteHeader(u.linkedInStatus)
			io.WriteString(w, `{"message":"Invalid access token"}`)
			return
		}
		io.WriteString(w, `{"sub":"abc123","name":"Ada Lovelace","email":"ada@example.com","email_verified":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newResolver(t *testing.T, srv *httptest.Server) *ClerkResolver {
	t.Helper()
	r, err := NewClerkResolver(Config{SecretKey: "sk_test", ClerkURL: srv.URL, LinkedInURL: srv.URL})
	require.NoError(t, err)
	return r
}

func TestNewClerkResolver_MissingSecret(t *testing.T) {
	_, err := NewClerkResolver(Config{})
	assert.ErrorIs(t, err, share.ErrConfiguration)
}

func TestResolve(t *testing.T) {
	u := &upstream{clerkBody: `[{"token":"li-token","provider":"oauth_linkedin_oidc"}]`}
	srv := u.server(t)

	creds, err := newResolver(t, srv).Resolve(context.Background(), "user_42")
	require.NoError(t, err)

	assert.Equal(t, "li-token", creds.AccessToken)
	assert.Equal(t, "abc123", creds.Subject)
	assert.Equal(t, "Ada Lovelace", creds.UserInfo.Name)
	assert.True(t, creds.UserInfo.EmailVerified)
	assert.JSONEq(t, `{"sub":"abc123","name":"Ada Lovelace","email":"ada@example.com","email_verified":true}`, string(creds.UserInfo.Raw))

	assert.Equal(t, "/v1/users/user_42/oauth_access_tokens/oauth_linkedin_oidc", u.clerkPath)
	assert.Equal(t, "Bearer sk_test", u.clerkAuth)
	assert.Equal(t, "Bearer li-token", u.linkedInAuth)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		u       upstream
		service string
		status  int
		noToken bool
	}{
		{name: "clerk rejects", u: upstream{clerkStatus: http.StatusNotFound, clerkBody: `{"errors":[]}`}, service: "Clerk", status: http.StatusNotFound},
		{name: "empty token list", u: upstream{clerkBody: `[]`}, noToken: true},
		{name: "blank token", u: upstream{clerkBody: `[{"token":""}]`}, noToken: true},
		{name: "linkedin rejects", u: upstream{clerkBody: `[{"token":"stale"}]`, linkedInStatus: http.StatusUnauthorized}, service: "LinkedIn", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tt.u.server(t)
			_, err := newResolver(t, srv).Resolve(context.Background(), "user_42")
			require.Error(t, err)

			if tt.noToken {
				assert.ErrorIs(t, err, ErrNoToken)
				return
			}
			var upErr *UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.service, upErr.Service)
			assert.Equal(t, tt.status, upErr.StatusCode)
		})
	}
}

func TestResolve_EmptyUser(t *testing.T) {
	r, err := NewClerkResolver(Config{SecretKey: "sk"})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), " ")
	assert.ErrorIs(t, err, share.ErrConfiguration)
}

func TestResolve_MalformedClerkBody(t *testing.T) {
	u := &upstream{clerkBody: `{"not":"a list"}`}
	_, err := newResolver(t, u.server(t)).Resolve(context.Background(), "user_42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode Clerk response")
}
