package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blacktop/lipost/internal/enhance"
	"github.com/blacktop/lipost/internal/share"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTargets(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr string
	}{
		{name: "default", in: []string{"linkedin"}, want: []string{"linkedin"}},
		{name: "dedupe and sort", in: []string{"Twitter", "linkedin", " twitter "}, want: []string{"linkedin", "twitter"}},
		{name: "all", in: []string{"mastodon", "all"}, want: []string{"bluesky", "linkedin", "mastodon", "twitter"}},
		{name: "unknown", in: []string{"myspace"}, wantErr: `unsupported target "myspace"`},
		{name: "empty", in: []string{" "}, wantErr: "no targets selected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeTargets(tt.in)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveKind(t *testing.T) {
	img := share.Attachment{ContentType: "image/png"}
	vid := share.Attachment{ContentType: "video/mp4"}

	tests := []struct {
		name        string
		flag        string
		url         string
		attachments []share.Attachment
		want        share.Kind
		wantErr     bool
	}{
		{name: "explicit", flag: "Video", want: share.KindVideo},
		{name: "explicit wins over inference", flag: "text", url: "https://x", want: share.KindText},
		{name: "bad flag", flag: "poll", wantErr: true},
		{name: "images", attachments: []share.Attachment{img, img}, want: share.KindImage},
		{name: "videos", attachments: []share.Attachment{vid}, want: share.KindVideo},
		{name: "mixed media", attachments: []share.Attachment{img, vid}, wantErr: true},
		{name: "url", url: "https://go.dev", want: share.KindArticle},
		{name: "plain", want: share.KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveKind(tt.flag, tt.url, tt.attachments)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := resolveKind("", "", []share.Attachment{vid, img})
	assert.ErrorIs(t, err, share.ErrConfiguration)
}

func TestAppendHashtags(t *testing.T) {
	assert.Equal(t, "hi", appendHashtags("hi", nil))
	assert.Equal(t, "hi", appendHashtags("hi", []string{" ", "#"}))
	assert.Equal(t, "hi\n\n#golang #OpenSource", appendHashtags("hi", []string{"golang", "#Open Source"}))
}

func TestLoadAttachments(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "shot.png")
	blob := filepath.Join(dir, "clip")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	require.NoError(t, os.WriteFile(blob, []byte("GIF89a"), 0o644))

	got, err := loadAttachments([]string{png, blob})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "shot.png", got[0].Name)
	assert.Equal(t, "image/png", got[0].ContentType)
	assert.Equal(t, "clip", got[1].Name)
	assert.Equal(t, "image/gif", got[1].ContentType)

	_, err = loadAttachments([]string{filepath.Join(dir, "missing.png")})
	assert.ErrorContains(t, err, "read media")
}

func TestResolveMessage(t *testing.T) {
	newCmd := func(stdin string) *cobra.Command {
		c := &cobra.Command{}
		c.SetIn(strings.NewReader(stdin))
		return c
	}

	msg, err := resolveMessage(newCmd(""), []string{"hello", "world"}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg)

	msg, err = resolveMessage(newCmd(""), nil, "  from flag ")
	require.NoError(t, err)
	assert.Equal(t, "from flag", msg)

	msg, err = resolveMessage(newCmd("piped text\n"), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "piped text", msg)

	_, err = resolveMessage(newCmd(""), []string{"a"}, "b")
	assert.ErrorContains(t, err, "not both")

	_, err = resolveMessage(newCmd("   "), nil, "")
	assert.EqualError(t, err, "message is required")
}

type stubPublisher struct {
	name string
	res  share.Result
	err  error
	got  []share.PostRequest
}

func (s *stubPublisher) Name() string { return s.name }

func (s *stubPublisher) Publish(_ context.Context, req share.PostRequest) (share.Result, error) {
	s.got = append(s.got, req)
	return s.res, s.err
}

func TestDispatch(t *testing.T) {
	ok := &stubPublisher{name: "linkedin", res: share.Result{PostID: "urn:li:share:1"}}
	failing := &stubPublisher{name: "mastodon", err: errors.New("boom")}
	withURL := &stubPublisher{name: "bluesky", res: share.Result{PostID: "at://x", URL: "https://bsky.app/x"}}
	req := share.PostRequest{Kind: share.KindText, Text: "hi"}

	var out bytes.Buffer
	err := dispatch(context.Background(), []share.Publisher{ok, failing, withURL}, req, &out, false)
	require.Error(t, err)
	assert.EqualError(t, err, "mastodon: boom")

	assert.Len(t, ok.got, 1)
	assert.Len(t, withURL.got, 1)
	assert.Contains(t, out.String(), "posted to linkedin: urn:li:share:1\n")
	assert.Contains(t, out.String(), "posted to bluesky: at://x (https://bsky.app/x)\n")
	assert.NotContains(t, out.String(), "posted to mastodon")
}

func TestRootDryRun(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "shot.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n"), 0o644))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"Launch day", "--media", png, "--hashtag", "golang", "--target", "linkedin,twitter", "--dry-run"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	got := out.String()
	assert.Contains(t, got, `[dry-run] would post IMAGE to linkedin: "Launch day\n\n#golang"`)
	assert.Contains(t, got, "[dry-run] would post IMAGE to twitter")
	assert.Contains(t, got, "[dry-run] media: shot.png (image/png, 8 bytes)")
}

func TestRootRejectsInvalidRequest(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"hello", "--type", "article", "--dry-run"})
	err := root.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, share.ErrConfiguration)
}

type stubEnhancer struct {
	chunks []string
	err    error
}

func (s stubEnhancer) Enhance(_ context.Context, _ enhance.Request, emit enhance.EmitFunc) (string, error) {
	var full strings.Builder
	for _, c := range s.chunks {
		full.WriteString(c)
		if emit == nil {
			continue
		}
		if err := emit(c); err != nil {
			return full.String(), err
		}
	}
	return full.String(), s.err
}

func TestStreamSuggestion(t *testing.T) {
	c := &cobra.Command{}
	c.SetContext(context.Background())

	var out bytes.Buffer
	require.NoError(t, streamSuggestion(c, stubEnhancer{chunks: []string{"Big ", "news"}}, enhance.Request{}, &out))
	assert.Equal(t, "Big news\n", out.String())

	out.Reset()
	assert.ErrorContains(t, streamSuggestion(c, stubEnhancer{}, enhance.Request{}, &out), "no text")
	assert.ErrorContains(t, streamSuggestion(c, stubEnhancer{err: errors.New("quota")}, enhance.Request{}, &out), "quota")
}

func TestRenderSuggestion(t *testing.T) {
	c := &cobra.Command{}
	c.SetContext(context.Background())

	var out bytes.Buffer
	require.NoError(t, renderSuggestion(c, stubEnhancer{chunks: []string{"**Big** ", "news"}}, enhance.Request{}, &out))
	assert.Contains(t, out.String(), "Big")
	assert.Contains(t, out.String(), "news")

	assert.ErrorContains(t, renderSuggestion(c, stubEnhancer{}, enhance.Request{}, &out), "no text")
}

func TestCompletion(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"completion", "bash"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "lipost")

	root = newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, root.Execute())
}
