package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blacktop/lipost/internal/share/linkedin"
	"github.com/stretchr/testify/assert"
)

// linkedInAPI answers registerUpload, upload and ugcPosts like LinkedIn v2.
// register decides the reply to the n-th registration (0-based).
type linkedInAPI struct {
	srv      *httptest.Server
	register func(w http.ResponseWriter, n int) bool

	mu        sync.Mutex
	uploads   [][]byte
	registers int
	posts     atomic.Int32
}

func newLinkedInAPI(t *testing.T) *linkedInAPI {
	t.Helper()
	api := &linkedInAPI{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, _ *http.Request) {
		api.mu.Lock()
		n := api.registers
		api.registers++
		api.mu.Unlock()

		if api.register != nil && api.register(w, n) {
			return
		}
		fmt.Fprintf(w, `{"value":{"asset":"urn:li:digitalmediaAsset:A%d","uploadMechanism":{"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"%s/upload/%d"}}}}`,
			n, api.srv.URL, n)
	})
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		api.mu.Lock()
		api.uploads = append(api.uploads, body)
		api.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, _ *http.Request) {
		api.posts.Add(1)
		w.Header().Set("X-Restli-Id", "urn:li:share:7")
		w.WriteHeader(http.StatusCreated)
	})

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (api *linkedInAPI) uploaded() [][]byte {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.uploads
}

func (api *linkedInAPI) handler() http.Handler {
	pub := linkedin.New(linkedin.Config{APIURL: api.srv.URL, Timeout: 2 * time.Second})
	return New(Options{Publisher: pub, Defaults: Defaults{AccessToken: "tok", PersonID: "abc"}}).Handler()
}

func imageShare(t *testing.T) *http.Request {
	return multipartRequest(t,
		map[string]string{"shareType": "IMAGE", "text": "pics"},
		formFile{field: "media0", name: "a.png", contentType: "image/png", data: []byte("blobA")},
		formFile{field: "media1", name: "b.png", contentType: "image/png", data: []byte("blobB")},
	)
}

func TestShare_LinkedInImages(t *testing.T) {
	api := newLinkedInAPI(t)

	rec := httptest.NewRecorder()
	api.handler().ServeHTTP(rec, imageShare(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"shareId":"urn:li:share:7"}`, rec.Body.String())
	assert.Equal(t, [][]byte{[]byte("blobA"), []byte("blobB")}, api.uploaded())
	assert.EqualValues(t, 1, api.posts.Load())
}

func TestShare_LinkedInRegistrationFails(t *testing.T) {
	t.Run("second registration forbidden", func(t *testing.T) {
		api := newLinkedInAPI(t)
		api.register = func(w http.ResponseWriter, n int) bool {
			if n == 0 {
				return false
			}
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"status":403,"message":"Not enough permissions"}`)
			return true
		}

		rec := httptest.NewRecorder()
		api.handler().ServeHTTP(rec, imageShare(t))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, false, out["success"])
		assert.Equal(t, "Failed to register media upload", out["error"])
		assert.Equal(t, map[string]any{"status": float64(403), "message": "Not enough permissions"}, out["details"])
		assert.Equal(t, [][]byte{[]byte("blobA")}, api.uploaded())
		assert.Zero(t, api.posts.Load())
	})

	t.Run("success status without asset", func(t *testing.T) {
		api := newLinkedInAPI(t)
		api.register = func(w http.ResponseWriter, _ int) bool {
			io.WriteString(w, `{"value":{}}`)
			return true
		}

		rec := httptest.NewRecorder()
		api.handler().ServeHTTP(rec, imageShare(t))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, false, out["success"])
		assert.Equal(t, "Failed to register media upload", out["error"])
		assert.Empty(t, api.uploaded())
		assert.Zero(t, api.posts.Load())
	})
}
