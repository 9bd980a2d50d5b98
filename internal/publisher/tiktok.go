package publisher

import (
	"context"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
)

// Tiktok only accepts video uploads, which the dispatcher never produces, so
// every publish is rejected before touching the network.
type Tiktok struct {
	now func() time.Time
}

func NewTiktok() *Tiktok {
	return &Tiktok{now: time.Now}
}

func (p *Tiktok) Platform() models.Platform {
	return models.PlatformTiktok
}

func (p *Tiktok) Publish(ctx context.Context, acc *models.SocialAccount, content, imageURL string) (string, error) {
	if err := checkToken(acc, p.now()); err != nil {
		return "", err
	}
	return "", ErrUnsupportedMediaType
}
