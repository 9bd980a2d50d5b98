// Package publisher adapts a generic publish request (text plus an optional
// image URL) to each platform's API. Implementations are looked up by
// platform through a Registry.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
)

var (
	ErrTokenExpired         = errors.New("access token expired, account must be reconnected")
	ErrMediaRequired        = errors.New("platform requires an image")
	ErrUnsupportedMediaType = errors.New("media type not supported by this platform integration")
)

// PlatformError carries the platform's own error text.
type PlatformError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
}

func (e *PlatformError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned %d: %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

type Publisher interface {
	Platform() models.Platform
	// Publish posts content (and the image at imageURL when non-empty) to the
	// account and returns the platform-assigned post id.
	Publish(ctx context.Context, acc *models.SocialAccount, content, imageURL string) (string, error)
}

// checkToken is the first step of every Publish: an expired token is never
// retried because refreshing it needs the user.
func checkToken(acc *models.SocialAccount, now time.Time) error {
	if acc.TokenExpired(now) {
		return ErrTokenExpired
	}
	return nil
}
