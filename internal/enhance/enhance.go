// Package enhance rewrites a draft into a LinkedIn-ready post using Gemini,
// streaming the suggestion as it is generated.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/blacktop/lipost/internal/logutil"
	"github.com/blacktop/lipost/internal/share"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-pro"

// ErrEmptyConversation is returned when there is nothing to rewrite.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Message is one turn of the conversation. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request asks for a suggestion tailored to a kind of post.
type Request struct {
	Kind     share.Kind
	Messages []Message
}

// EmitFunc receives each streamed chunk. Returning an error stops the stream.
type EmitFunc func(chunk string) error

// Enhancer is what the presentation layer depends on.
type Enhancer interface {
	Enhance(ctx context.Context, req Request, emit EmitFunc) (string, error)
}

// generator is the slice of *genai.Models the enhancer uses.
type generator interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Config configures the Gemini enhancer.
type Config struct {
	APIKey string
	Model  string
}

// Gemini streams suggestions from the Gemini API.
type Gemini struct {
	models generator
	model  string
}

// NewGemini creates a Gemini-backed enhancer.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, share.ConfigurationError{Provider: "gemini", Variables: []string{"api key"}}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return newGemini(client.Models, cfg.Model), nil
}

func newGemini(models generator, model string) *Gemini {
	if model == "" {
		model = defaultModel
	}
	return &Gemini{models: models, model: model}
}

// Enhance streams a rewritten post to emit and returns the full text.
func (g *Gemini) Enhance(ctx context.Context, req Request, emit EmitFunc) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role(m.Role)))
	}
	if len(contents) == 0 {
		return "", ErrEmptyConversation
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(req.Kind), genai.RoleUser),
	}

	logutil.Debugf("enhance: model=%s kind=%s messages=%d", g.model, req.Kind, len(contents))

	var full strings.Builder
	for resp, err := range g.models.GenerateContentStream(ctx, g.model, contents, config) {
		if err != nil {
			return full.String(), fmt.Errorf("generate: %w", err)
		}
		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if emit != nil {
			if err := emit(chunk); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}

func role(r string) genai.Role {
	switch strings.ToLower(r) {
	case "assistant", "model":
		return genai.RoleModel
	default:
		return genai.RoleUser
	}
}

// responseText concatenates the text parts of the first candidate, leaving
// out thought summaries.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

var kindDescriptions = map[share.Kind]string{
	share.KindText:    "text post",
	share.KindArticle: "article summary",
	share.KindImage:   "image caption",
	share.KindVideo:   "video description",
}

// SystemPrompt is the instruction given to the model for a kind of post.
func SystemPrompt(kind share.Kind) string {
	desc, ok := kindDescriptions[kind]
	if !ok {
		kind, desc = share.KindText, kindDescriptions[share.KindText]
	}
	return fmt.Sprintf(systemPromptTemplate, kind.Recipe(), desc)
}

const systemPromptTemplate = `You are an experienced LinkedIn writer who understands professional networking and social media marketing. Rewrite the user's draft into a compelling LinkedIn post.

1. The post type is %s; write it as a %s.
2. Keep it short and punchy: three to five lines.
3. Use a professional, engaging tone aimed at a business audience.
4. Add two or three relevant hashtags.
5. Where it fits, end with a call to action or a question that invites discussion.
6. Use markdown emphasis: **bold** for key points, *italic* for lighter stress.
7. For articles, lead with the main takeaways and why they matter to the reader's career.
8. For images or videos, write a caption that complements the visual and adds context.

Reply with the post only. It should add value, start a professional conversation, and strengthen the author's personal brand.`

var _ Enhancer = (*Gemini)(nil)
