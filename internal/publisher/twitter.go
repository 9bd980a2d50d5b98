package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/maheshrc27/postdispatch/internal/models"
)

// Twitter posts through the X v2 API. Images are uploaded first and the
// returned media id is attached to the tweet.
type Twitter struct {
	apiClient
}

func NewTwitter(baseURL string, httpClient *http.Client) *Twitter {
	return &Twitter{apiClient: newAPIClient(models.PlatformTwitter, baseURL, httpClient)}
}

type twitterData struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *Twitter) Publish(ctx context.Context, acc *models.SocialAccount, content, imageURL string) (string, error) {
	if err := checkToken(acc, p.now()); err != nil {
		return "", err
	}

	client := p.authorized(ctx, acc)

	payload := map[string]interface{}{"text": content}
	if imageURL != "" {
		mediaID, err := p.uploadMedia(ctx, client, imageURL)
		if err != nil {
			return "", err
		}
		payload["media"] = map[string][]string{"media_ids": {mediaID}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshalling tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/2/tweets", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result twitterData
	if _, err := p.do(client, req, &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", p.platformError(0, "no tweet id returned")
	}
	return result.Data.ID, nil
}

func (p *Twitter) uploadMedia(ctx context.Context, client *http.Client, imageURL string) (string, error) {
	data, mimeType, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", "image")
	if err != nil {
		return "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("error writing media: %w", err)
	}
	if err := w.WriteField("media_category", "tweet_image"); err != nil {
		return "", err
	}
	if err := w.WriteField("media_type", mimeType); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/2/media/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result twitterData
	if _, err := p.do(client, req, &result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", p.platformError(0, "no media id returned")
	}
	return result.Data.ID, nil
}
