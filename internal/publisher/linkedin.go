package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/maheshrc27/postdispatch/internal/models"
)

const linkedInVersion = "202405"

// LinkedIn publishes through the versioned Posts API. Page and business
// accounts post as an organization, everything else as a person.
type LinkedIn struct {
	apiClient
}

func NewLinkedIn(baseURL string, httpClient *http.Client) *LinkedIn {
	return &LinkedIn{apiClient: newAPIClient(models.PlatformLinkedIn, baseURL, httpClient)}
}

func linkedInAuthor(acc *models.SocialAccount) string {
	switch acc.AccountKind {
	case models.AccountKindPage, models.AccountKindBusiness:
		return "urn:li:organization:" + acc.ExternalUserID
	default:
		return "urn:li:person:" + acc.ExternalUserID
	}
}

func (p *LinkedIn) Publish(ctx context.Context, acc *models.SocialAccount, content, imageURL string) (string, error) {
	if err := checkToken(acc, p.now()); err != nil {
		return "", err
	}

	client := p.authorized(ctx, acc)
	author := linkedInAuthor(acc)

	post := map[string]interface{}{
		"author":     author,
		"commentary": content,
		"visibility": "PUBLIC",
		"distribution": map[string]interface{}{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []string{},
			"thirdPartyDistributionChannels": []string{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}

	if imageURL != "" {
		imageURN, err := p.uploadImage(ctx, client, author, imageURL)
		if err != nil {
			return "", err
		}
		post["content"] = map[string]interface{}{
			"media": map[string]string{"id": imageURN},
		}
	}

	req, err := p.jsonRequest(ctx, p.baseURL+"/rest/posts", post)
	if err != nil {
		return "", err
	}

	resp, err := p.do(client, req, nil)
	if err != nil {
		return "", err
	}

	postID := resp.Header.Get("x-restli-id")
	if postID == "" {
		return "", p.platformError(resp.StatusCode, "no post id returned")
	}
	return postID, nil
}

func (p *LinkedIn) uploadImage(ctx context.Context, client *http.Client, owner, imageURL string) (string, error) {
	data, mimeType, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"initializeUploadRequest": map[string]string{"owner": owner},
	}
	req, err := p.jsonRequest(ctx, p.baseURL+"/rest/images?action=initializeUpload", payload)
	if err != nil {
		return "", err
	}

	var initResp struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	if _, err := p.do(client, req, &initResp); err != nil {
		return "", err
	}
	if initResp.Value.UploadURL == "" || initResp.Value.Image == "" {
		return "", p.platformError(0, "image upload was not initialized")
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, initResp.Value.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("error creating upload request: %w", err)
	}
	put.Header.Set("Content-Type", mimeType)
	if _, err := p.do(client, put, nil); err != nil {
		return "", err
	}

	return initResp.Value.Image, nil
}

func (p *LinkedIn) jsonRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", linkedInVersion)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	return req, nil
}
