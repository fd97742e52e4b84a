package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/blacktop/lipost/internal/share"
)

const (
	recipePrefix         = "urn:li:digitalmediaRecipe:feedshare-"
	ugcRelationship      = "urn:li:userGeneratedContent"
	uploadMechanismKey   = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
	defaultUploadContent = "application/octet-stream"
)

// AssetStatus tracks a media asset through a single publish call.
type AssetStatus int

const (
	AssetRegistered AssetStatus = iota + 1
	AssetUploaded
)

// MediaAsset is a platform-issued upload slot for one attachment.
type MediaAsset struct {
	Handle    string
	UploadURL string
	Status    AssetStatus
}

type registerUploadRequest struct {
	RegisterUploadRequest registerUpload `json:"registerUploadRequest"`
}

type registerUpload struct {
	Recipes              []string              `json:"recipes"`
	Owner                string                `json:"owner"`
	ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

func personURN(id string) string {
	return "urn:li:person:" + id
}

func newRegisterUploadRequest(kind share.Kind, authorID string) registerUploadRequest {
	return registerUploadRequest{
		RegisterUploadRequest: registerUpload{
			Recipes: []string{recipePrefix + kind.Recipe()},
			Owner:   personURN(authorID),
			ServiceRelationships: []serviceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       ugcRelationship,
			}},
		},
	}
}

func (c *Client) register(ctx context.Context, req share.PostRequest) (MediaAsset, error) {
	resp, body, err := c.postJSON(ctx, registerUploadPath, req.AccessToken, newRegisterUploadRequest(req.Kind, req.AuthorID))
	if err != nil {
		return MediaAsset{}, &share.StageError{Provider: providerName, Stage: share.StageRegister, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return MediaAsset{}, &share.StageError{Provider: providerName, Stage: share.StageRegister, StatusCode: resp.StatusCode, Body: body}
	}

	asset, err := parseRegistration(body)
	if err != nil {
		return MediaAsset{}, &share.StageError{Provider: providerName, Stage: share.StageRegister, StatusCode: resp.StatusCode, Body: body, Err: err}
	}
	return asset, nil
}

// parseRegistration extracts the asset handle and upload URL from a
// registerUpload response. The upload URL sits under a vendor-specific key
// inside uploadMechanism.
func parseRegistration(body []byte) (MediaAsset, error) {
	var resp struct {
		Value struct {
			Asset           string                     `json:"asset"`
			UploadMechanism map[string]json.RawMessage `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return MediaAsset{}, fmt.Errorf("decode registration: %w", err)
	}
	if resp.Value.Asset == "" {
		return MediaAsset{}, errors.New("registration response has no asset")
	}

	raw, ok := resp.Value.UploadMechanism[uploadMechanismKey]
	if !ok {
		return MediaAsset{}, fmt.Errorf("registration response has no %s upload mechanism", uploadMechanismKey)
	}
	var mechanism struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.Unmarshal(raw, &mechanism); err != nil {
		return MediaAsset{}, fmt.Errorf("decode upload mechanism: %w", err)
	}
	if mechanism.UploadURL == "" {
		return MediaAsset{}, errors.New("registration response has no upload url")
	}

	return MediaAsset{
		Handle:    resp.Value.Asset,
		UploadURL: mechanism.UploadURL,
		Status:    AssetRegistered,
	}, nil
}

func (c *Client) upload(ctx context.Context, token string, asset MediaAsset, attachment share.Attachment) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, asset.UploadURL, bytes.NewReader(attachment.Data))
	if err != nil {
		return &share.StageError{Provider: providerName, Stage: share.StageUpload, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = defaultUploadContent
	}
	req.Header.Set("Content-Type", contentType)

	resp, body, err := c.do(req)
	if err != nil {
		return &share.StageError{Provider: providerName, Stage: share.StageUpload, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return &share.StageError{Provider: providerName, Stage: share.StageUpload, StatusCode: resp.StatusCode, Body: body}
	}
	return nil
}
