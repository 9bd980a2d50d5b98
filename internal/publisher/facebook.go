package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postdispatch/internal/models"
)

// Facebook publishes to a Page through the Graph API. The account's access
// token is the page token and ExternalUserID is the page id.
type Facebook struct {
	apiClient
}

func NewFacebook(baseURL string, httpClient *http.Client) *Facebook {
	return &Facebook{apiClient: newAPIClient(models.PlatformFacebook, baseURL, httpClient)}
}

func (p *Facebook) Publish(ctx context.Context, acc *models.SocialAccount, content, imageURL string) (string, error) {
	if err := checkToken(acc, p.now()); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("message", content)

	endpoint := fmt.Sprintf("%s/%s/feed", p.baseURL, url.PathEscape(acc.ExternalUserID))
	if imageURL != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", p.baseURL, url.PathEscape(acc.ExternalUserID))
		form.Set("url", imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if _, err := p.do(p.authorized(ctx, acc), req, &result); err != nil {
		return "", err
	}

	// Photo uploads return the photo id and the feed post id separately.
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", p.platformError(0, "no post id returned")
	}
	return result.ID, nil
}
