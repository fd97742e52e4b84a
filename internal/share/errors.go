package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrMediaRegistration = errors.New("media registration failed")
	ErrMediaUpload       = errors.New("media upload failed")
	ErrPublish           = errors.New("publish failed")
	ErrNetwork           = errors.New("network error")
)

// ConfigurationError is returned when credentials or required fields are
// missing. No network call has been made when it is returned.
type ConfigurationError struct {
	Provider  string
	Variables []string
	Reason    string
}

func (e ConfigurationError) Error() string {
	provider := e.Provider
	if provider == "" {
		provider = "request"
	}
	if len(e.Variables) > 0 {
		return fmt.Sprintf("%s credentials not configured (missing %s)", provider, strings.Join(e.Variables, ", "))
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s invalid: %s", provider, e.Reason)
	}
	return fmt.Sprintf("%s credentials not configured", provider)
}

func (e ConfigurationError) Unwrap() error { return ErrConfiguration }

// Stage names the upstream call a StageError came from.
type Stage string

const (
	StageRegister Stage = "register"
	StageUpload   Stage = "upload"
	StagePublish  Stage = "publish"
)

func (s Stage) sentinel() error {
	switch s {
	case StageRegister:
		return ErrMediaRegistration
	case StageUpload:
		return ErrMediaUpload
	default:
		return ErrPublish
	}
}

// StageError reports a failed upstream call. StatusCode and Body are set when
// the platform answered with a non-2xx status; Err is set when the call
// failed before a response arrived.
type StageError struct {
	Provider   string
	Stage      Stage
	StatusCode int
	Body       []byte
	Err        error
}

func (e *StageError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(e.Stage.sentinel().Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		b.WriteString(": ")
		b.WriteString(body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() []error {
	errs := []error{e.Stage.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
		if isTransport(e.Err) {
			errs = append(errs, ErrNetwork)
		}
	}
	return errs
}

// Details returns the upstream body decoded as JSON, or as a string when it
// is not JSON. It returns nil when there is no body.
func (e *StageError) Details() any {
	if len(strings.TrimSpace(string(e.Body))) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(e.Body, &v); err == nil {
		return v
	}
	return string(e.Body)
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Report is the single terminal outcome of a publish, shaped for JSON.
type Report struct {
	Success bool   `json:"success"`
	ShareID string `json:"shareId,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// NewReport folds a publish result and error into a Report.
func NewReport(res Result, err error) Report {
	if err == nil {
		return Report{Success: true, ShareID: res.PostID}
	}
	r := Report{Error: Summary(err)}
	var se *StageError
	if errors.As(err, &se) {
		r.Details = se.Details()
	}
	return r
}

// Summary is a short, user-facing description of a publish failure.
func Summary(err error) string {
	var cfgErr ConfigurationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case errors.Is(err, ErrMediaRegistration):
		return "Failed to register media upload"
	case errors.Is(err, ErrMediaUpload):
		return "Failed to upload media"
	case errors.Is(err, ErrPublish):
		return "Failed to share post"
	default:
		return "Internal server error"
	}
}
