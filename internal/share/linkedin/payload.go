package linkedin

import "github.com/blacktop/lipost/internal/share"

const (
	lifecyclePublished = "PUBLISHED"
	mediaStatusReady   = "READY"
	visibilityKey      = "com.linkedin.ugc.MemberNetworkVisibility"
	visibilityPublic   = "PUBLIC"
)

type ugcPost struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent specificContent   `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    textValue    `json:"shareCommentary"`
	ShareMediaCategory string       `json:"shareMediaCategory"`
	Media              []shareMedia `json:"media,omitempty"`
}

type shareMedia struct {
	Status      string    `json:"status"`
	OriginalURL string    `json:"originalUrl,omitempty"`
	Media       string    `json:"media,omitempty"`
	Title       textValue `json:"title"`
	Description textValue `json:"description"`
}

type textValue struct {
	Text string `json:"text"`
}

// buildPost assembles the ugcPosts payload. assets must be in attachment
// order; they are ignored for kinds without media.
func buildPost(req share.PostRequest, assets []MediaAsset) ugcPost {
	content := shareContent{
		ShareCommentary:    textValue{Text: req.Text},
		ShareMediaCategory: req.Kind.MediaCategory(),
	}

	title := textValue{Text: req.Link.Title}
	description := textValue{Text: req.Link.Description}

	switch req.Kind {
	case share.KindArticle:
		content.Media = []shareMedia{{
			Status:      mediaStatusReady,
			OriginalURL: req.Link.URL,
			Title:       title,
			Description: description,
		}}
	case share.KindImage, share.KindVideo:
		for _, asset := range assets {
			content.Media = append(content.Media, shareMedia{
				Status:      mediaStatusReady,
				Media:       asset.Handle,
				Title:       title,
				Description: description,
			})
		}
	}

	return ugcPost{
		Author:          personURN(req.AuthorID),
		LifecycleState:  lifecyclePublished,
		SpecificContent: specificContent{ShareContent: content},
		Visibility:      map[string]string{visibilityKey: visibilityPublic},
	}
}
