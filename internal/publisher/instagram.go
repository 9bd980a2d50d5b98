package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/maheshrc27/postdispatch/internal/models"
)

// Instagram publishes single-image posts with the two-phase container flow:
// create a media container, then publish it.
type Instagram struct {
	apiClient
}

func NewInstagram(baseURL string, httpClient *http.Client) *Instagram {
	return &Instagram{apiClient: newAPIClient(models.PlatformInstagram, baseURL, httpClient)}
}

type instagramID struct {
	ID string `json:"id"`
}

func (p *Instagram) Publish(ctx context.Context, acc *models.SocialAccount, content, imageURL string) (string, error) {
	if err := checkToken(acc, p.now()); err != nil {
		return "", err
	}
	if imageURL == "" {
		return "", ErrMediaRequired
	}

	client := p.authorized(ctx, acc)

	containerID, err := p.createContainer(ctx, client, acc.ExternalUserID, content, imageURL)
	if err != nil {
		return "", err
	}

	postID, err := p.publishContainer(ctx, client, acc.ExternalUserID, containerID)
	if err != nil {
		return "", fmt.Errorf("publishing container %s: %w", containerID, err)
	}
	return postID, nil
}

func (p *Instagram) createContainer(ctx context.Context, client *http.Client, igUserID, caption, imageURL string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", p.baseURL, url.PathEscape(igUserID))
	payload := map[string]interface{}{
		"image_url": imageURL,
		"caption":   caption,
	}

	var result instagramID
	if err := p.postJSON(ctx, client, endpoint, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", p.platformError(0, "no media container id returned")
	}
	return result.ID, nil
}

func (p *Instagram) publishContainer(ctx context.Context, client *http.Client, igUserID, containerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", p.baseURL, url.PathEscape(igUserID))
	payload := map[string]string{
		"creation_id": containerID,
	}

	var result instagramID
	if err := p.postJSON(ctx, client, endpoint, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", p.platformError(0, "no media id returned from media_publish")
	}
	return result.ID, nil
}

func (p *Instagram) postJSON(ctx context.Context, client *http.Client, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = p.do(client, req, out)
	return err
}
