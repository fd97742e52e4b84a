package share

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the shape of a post. Each kind decides which other PostRequest
// fields are meaningful.
type Kind int

const (
	KindText Kind = iota
	KindArticle
	KindImage
	KindVideo
)

var kindNames = [...]string{
	KindText:    "TEXT",
	KindArticle: "ARTICLE",
	KindImage:   "IMAGE",
	KindVideo:   "VIDEO",
}

// ParseKind accepts TEXT, ARTICLE, IMAGE or VIDEO in any case.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return KindText, fmt.Errorf("unknown share type %q", s)
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MediaCategory is the platform category for the kind; text posts have none.
func (k Kind) MediaCategory() string {
	if k == KindText {
		return "NONE"
	}
	return k.String()
}

// Recipe is the lower-cased kind used in upload recipes.
func (k Kind) Recipe() string {
	return strings.ToLower(k.String())
}

// HasMedia reports whether the kind carries binary attachments.
func (k Kind) HasMedia() bool {
	return k == KindImage || k == KindVideo
}

// Link carries the article URL and the title/description shown with article
// and media entries.
type Link struct {
	URL         string
	Title       string
	Description string
}

// Attachment is a single binary media blob.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// PostRequest defines the payload shared across all providers.
type PostRequest struct {
	Kind        Kind
	Text        string
	Link        Link
	Attachments []Attachment

	// AuthorID and AccessToken are the delegated LinkedIn credentials.
	// Other providers authenticate from their own configuration.
	AuthorID    string
	AccessToken string
}

// Validate checks that the request's content is consistent with its kind.
func (r PostRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ConfigurationError{Reason: "text is required"}
	}

	hasURL := strings.TrimSpace(r.Link.URL) != ""
	hasMedia := len(r.Attachments) > 0

	switch r.Kind {
	case KindText:
		if hasURL || hasMedia {
			return ConfigurationError{Reason: "text posts take neither a url nor attachments"}
		}
	case KindArticle:
		if !hasURL {
			return ConfigurationError{Reason: "article posts require a url"}
		}
		if hasMedia {
			return ConfigurationError{Reason: "article posts take no attachments"}
		}
	case KindImage, KindVideo:
		if !hasMedia {
			return ConfigurationError{Reason: fmt.Sprintf("%s posts require at least one attachment", strings.ToLower(r.Kind.String()))}
		}
		if hasURL {
			return ConfigurationError{Reason: fmt.Sprintf("%s posts take no url", strings.ToLower(r.Kind.String()))}
		}
		for i, a := range r.Attachments {
			if len(a.Data) == 0 {
				return ConfigurationError{Reason: fmt.Sprintf("attachment %d is empty", i)}
			}
		}
	default:
		return ConfigurationError{Reason: fmt.Sprintf("unsupported share type %s", r.Kind)}
	}
	return nil
}

// Result describes a published post.
type Result struct {
	Provider string
	PostID   string
	URL      string
}

// Publisher abstracts a social network that can publish content.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, req PostRequest) (Result, error)
}
