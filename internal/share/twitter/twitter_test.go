package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/blacktop/lipost/internal/share"
	"github.com/michimani/gotwi"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMediaType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	gif := []byte("GIF89a\x01\x00\x01\x00")

	tests := []struct {
		name     string
		file     string
		data     []byte
		wantType uploadtypes.MediaType
		wantCat  uploadtypes.MediaCategory
		wantErr  bool
	}{
		{name: "png extension", file: "a.PNG", wantType: uploadtypes.MediaTypePNG, wantCat: uploadtypes.MediaCategoryTweetImage},
		{name: "jpeg extension", file: "a.jpeg", wantType: uploadtypes.MediaTypeJPEG, wantCat: uploadtypes.MediaCategoryTweetImage},
		{name: "gif extension", file: "a.gif", wantType: uploadtypes.MediaTypeGIF, wantCat: uploadtypes.MediaCategoryTweetGIF},
		{name: "webp extension", file: "a.webp", wantType: uploadtypes.MediaTypeWebP, wantCat: uploadtypes.MediaCategoryTweetImage},
		{name: "sniffed png", file: "upload", data: png, wantType: uploadtypes.MediaTypePNG, wantCat: uploadtypes.MediaCategoryTweetImage},
		{name: "sniffed gif", file: "upload.bin", data: gif, wantType: uploadtypes.MediaTypeGIF, wantCat: uploadtypes.MediaCategoryTweetGIF},
		{name: "unsupported", file: "notes.txt", data: []byte("plain text"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, category, err := resolveMediaType(tt.file, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, share.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, mediaType)
			assert.Equal(t, tt.wantCat, category)
		})
	}
}

func TestTweetText(t *testing.T) {
	assert.Equal(t, "hi", tweetText(share.PostRequest{Kind: share.KindText, Text: "hi"}))
	assert.Equal(t, "read\n\nhttps://example.com", tweetText(share.PostRequest{
		Kind: share.KindArticle,
		Text: "read",
		Link: share.Link{URL: "https://example.com"},
	}))
}

func TestConfigValidate(t *testing.T) {
	err := Config{APIKey: "k", AccessToken: "t"}.validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, share.ErrConfiguration)

	var cfgErr share.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"consumer secret", "access token secret"}, cfgErr.Variables)

	assert.NoError(t, Config{APIKey: "k", APISecret: "s", AccessToken: "t", AccessSecret: "ts"}.validate())
}

func TestNew_MissingConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, share.ErrConfiguration)
}

func TestPublish_Unsupported(t *testing.T) {
	client := &Client{}
	blob := share.Attachment{Name: "a.png", Data: []byte("a")}

	_, err := client.Publish(context.Background(), share.PostRequest{
		Kind:        share.KindVideo,
		Text:        "clip",
		Attachments: []share.Attachment{{Name: "a.mp4", Data: []byte("v")}},
	})
	assert.ErrorIs(t, err, share.ErrConfiguration)

	_, err = client.Publish(context.Background(), share.PostRequest{
		Kind:        share.KindImage,
		Text:        "many",
		Attachments: []share.Attachment{blob, blob, blob, blob, blob},
	})
	assert.ErrorIs(t, err, share.ErrConfiguration)
	assert.Contains(t, err.Error(), "at most 4")
}

func TestPublish_UnsupportedMediaBeforeUpload(t *testing.T) {
	// a nil api client would panic if any upload were attempted
	client := &Client{}
	_, err := client.Publish(context.Background(), share.PostRequest{
		Kind: share.KindImage,
		Text: "pics",
		Attachments: []share.Attachment{
			{Name: "a.png", Data: []byte("a")},
			{Name: "b.txt", Data: []byte("plain text")},
		},
	})
	assert.ErrorIs(t, err, share.ErrConfiguration)
}

func TestPartialError(t *testing.T) {
	assert.NoError(t, partialError(nil))

	detail := "media too large"
	title := "Invalid Request"
	err := partialError([]resources.PartialError{{Detail: &detail}, {Title: &title}})
	require.Error(t, err)
	assert.Equal(t, "media too large; Invalid Request", err.Error())

	assert.EqualError(t, partialError([]resources.PartialError{{}}), "unknown error")
}

func TestAPIError(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, apiError(plain))

	gwErr := &gotwi.GotwiError{}
	gwErr.Title = "Forbidden"
	gwErr.Detail = "duplicate content"
	assert.EqualError(t, apiError(gwErr), "Forbidden; duplicate content")
	assert.EqualError(t, apiError(&gotwi.GotwiError{}), "X API request failed")
}

func TestAltTextParameters(t *testing.T) {
	params := &altTextParameters{MediaID: "123"}
	params.AltText.Text = "a cat"
	params.SetAccessToken("tok")
	assert.Equal(t, "tok", params.AccessToken())
	assert.Equal(t, metadataEndpoint, params.ResolveEndpoint(metadataEndpoint))

	body, err := params.Body()
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "123", decoded["media_id"])
	assert.Equal(t, map[string]any{"text": "a cat"}, decoded["alt_text"])
	assert.NotContains(t, decoded, "accessToken")
}
