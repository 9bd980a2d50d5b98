package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/postdispatch/internal/models"
	"golang.org/x/oauth2"
)

const (
	maxResponseBytes = 1 << 20
	maxImageBytes    = 8 << 20
)

// apiClient is the HTTP plumbing shared by the network-backed publishers.
type apiClient struct {
	platform   models.Platform
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func newAPIClient(platform models.Platform, baseURL string, httpClient *http.Client) apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return apiClient{
		platform:   platform,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (c *apiClient) Platform() models.Platform {
	return c.platform
}

// authorized returns a client that sends the account's access token as a
// bearer token on every request.
func (c *apiClient) authorized(ctx context.Context, acc *models.SocialAccount) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: acc.AccessToken,
		TokenType:   "Bearer",
	}))
}

func (c *apiClient) platformError(statusCode int, message string) *PlatformError {
	return &PlatformError{Platform: c.platform, StatusCode: statusCode, Message: message}
}

// do sends req and decodes a 2xx JSON body into out. Transport failures,
// timeouts and non-2xx responses all become a *PlatformError.
func (c *apiClient) do(client *http.Client, req *http.Request, out any) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, c.platformError(0, "request timed out")
		}
		return nil, c.platformError(0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, c.platformError(resp.StatusCode, "request timed out")
		}
		return nil, c.platformError(resp.StatusCode, fmt.Sprintf("error reading response body: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.platformError(resp.StatusCode, errorMessage(body, resp.Status))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, c.platformError(resp.StatusCode, fmt.Sprintf("error parsing response: %v", err))
		}
	}
	return resp, nil
}

// fetchImage downloads the image to attach and checks it really is an image.
func (c *apiClient) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", c.platformError(0, fmt.Sprintf("invalid image url: %v", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, "", c.platformError(0, "image download timed out")
		}
		return nil, "", c.platformError(0, fmt.Sprintf("image download failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", c.platformError(0, fmt.Sprintf("image download returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", c.platformError(0, fmt.Sprintf("image download failed: %v", err))
	}
	if len(data) > maxImageBytes {
		return nil, "", c.platformError(0, "image exceeds the 8 MB upload limit")
	}

	if !filetype.IsImage(data) {
		return nil, "", ErrUnsupportedMediaType
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, "", ErrUnsupportedMediaType
	}

	return data, kind.MIME.Value, nil
}

type errorItem struct {
	Message string `json:"message"`
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorMessage pulls the human readable message out of the error payloads
// the supported platforms return, falling back to the raw body.
func errorMessage(body []byte, status string) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Errors  []errorItem     `json:"errors"`
		Detail  string          `json:"detail"`
		Title   string          `json:"title"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Error) > 0 {
			var nested errorItem
			if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var plain string
			if json.Unmarshal(payload.Error, &plain) == nil && plain != "" {
				return plain
			}
		}
		switch {
		case len(payload.Errors) > 0 && payload.Errors[0].Message != "":
			return payload.Errors[0].Message
		case payload.Detail != "":
			return payload.Detail
		case payload.Message != "":
			return payload.Message
		case payload.Title != "":
			return payload.Title
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}
