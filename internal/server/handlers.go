package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/blacktop/lipost/internal/credentials"
	"github.com/blacktop/lipost/internal/enhance"
	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
)

// errorBody is the shape of every non-streaming error response.
type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid form: %v", err)})
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	req, err := s.postRequest(r)
	if err != nil {
		writeJSON(w, statusFor(err), share.NewReport(share.Result{}, err))
		return
	}

	log := logutil.With("kind", req.Kind, "attachments", len(req.Attachments))
	log.Debug("publishing")

	res, err := s.opts.Publisher.Publish(r.Context(), req)
	if err != nil {
		log.Error("publish failed", "err", err)
		writeJSON(w, statusFor(err), share.NewReport(res, err))
		return
	}

	log.Info("published", "id", res.PostID)
	writeJSON(w, http.StatusOK, share.NewReport(res, nil))
}

// postRequest reads the share form. Media parts are named media0, media1,
// and so on; reading stops at the first missing index.
func (s *Server) postRequest(r *http.Request) (share.PostRequest, error) {
	kind, err := share.ParseKind(r.FormValue("shareType"))
	if err != nil {
		return share.PostRequest{}, share.ConfigurationError{Reason: err.Error()}
	}

	req := share.PostRequest{
		Kind: kind,
		Text: r.FormValue("text"),
		Link: share.Link{
			URL:         r.FormValue("url"),
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
		},
		AccessToken: r.FormValue("accessToken"),
		AuthorID:    r.FormValue("personId"),
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		req.AccessToken = s.opts.Defaults.AccessToken
	}
	if strings.TrimSpace(req.AuthorID) == "" {
		req.AuthorID = s.opts.Defaults.PersonID
	}

	if r.MultipartForm == nil {
		return req, nil
	}
	for i := 0; ; i++ {
		headers := r.MultipartForm.File[fmt.Sprintf("media%d", i)]
		if len(headers) == 0 {
			break
		}
		attachment, err := readAttachment(headers[0])
		if err != nil {
			return share.PostRequest{}, fmt.Errorf("read media%d: %w", i, err)
		}
		req.Attachments = append(req.Attachments, attachment)
	}
	return req, nil
}

func readAttachment(fh *multipart.FileHeader) (share.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return share.Attachment{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return share.Attachment{}, err
	}
	return share.Attachment{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// statusFor maps a publish error onto the response status. Upstream error
// statuses pass through; a 2xx answer that could not be used is a bad gateway.
func statusFor(err error) int {
	var se *share.StageError
	hasStage := errors.As(err, &se)
	switch {
	case errors.Is(err, share.ErrConfiguration):
		return http.StatusBadRequest
	case hasStage && se.StatusCode >= http.StatusBadRequest:
		return se.StatusCode
	case hasStage && se.StatusCode > 0, errors.Is(err, share.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type chatRequest struct {
	Messages    []enhance.Message `json:"messages"`
	ContentType string            `json:"contentType"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.opts.Enhancer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "post enhancement is not configured"})
		return
	}

	var in chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	kind := share.KindText
	if strings.TrimSpace(in.ContentType) != "" {
		k, err := share.ParseKind(in.ContentType)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		kind = k
	}

	flusher, _ := w.(http.Flusher)
	started := false
	emit := func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	_, err := s.opts.Enhancer.Enhance(r.Context(), enhance.Request{Kind: kind, Messages: in.Messages}, emit)
	switch {
	case err == nil:
		if !started {
			w.WriteHeader(http.StatusNoContent)
		}
	case started:
		// headers are gone; all that is left is to stop writing
		logutil.Warnf("chat stream aborted: %v", err)
	case errors.Is(err, enhance.ErrEmptyConversation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		logutil.Errorf("chat failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to process chat request"})
	}
}

type subResponse struct {
	AccessToken string          `json:"linkedinAccessToken"`
	UserInfo    json.RawMessage `json:"linkedinUserInfo"`
}

func (s *Server) handleGetSub(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "User not found"})
		return
	}
	if s.opts.Resolver == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Clerk secret key is not configured"})
		return
	}

	creds, err := s.opts.Resolver.Resolve(r.Context(), userID)
	if err != nil {
		var upErr *credentials.UpstreamError
		switch {
		case errors.As(err, &upErr):
			writeJSON(w, upErr.StatusCode, errorBody{Error: fmt.Sprintf("Failed to fetch data from %s API", upErr.Service)})
		case errors.Is(err, credentials.ErrNoToken):
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "No LinkedIn token found"})
		default:
			logutil.Errorf("resolve credentials: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
		}
		return
	}

	info := creds.UserInfo.Raw
	if len(info) == 0 {
		if info, err = json.Marshal(creds.UserInfo); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
			return
		}
	}
	writeJSON(w, http.StatusOK, subResponse{AccessToken: creds.AccessToken, UserInfo: info})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutil.Warnf("write response: %v", err)
	}
}
