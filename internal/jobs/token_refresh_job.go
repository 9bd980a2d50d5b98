package job

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	refreshWindow      = 30 * time.Minute
	refreshConcurrency = 10
)

// Platforms whose refresh grant follows the standard OAuth2 token endpoint.
// Instagram has its own refresh call and TikTok is not refreshed: its token
// endpoint wants client_key instead of client_id.
var refreshablePlatforms = map[models.Platform]bool{
	models.PlatformTwitter:  true,
	models.PlatformLinkedIn: true,
}

// TokenRefreshJob renews access tokens that are about to expire so that
// scheduled posts do not fail with an expired token.
type TokenRefreshJob struct {
	sr           repository.SocialAccountRepository
	apps         service.OAuthApps
	instagramURL string
	key          []byte
	httpClient   *http.Client
	now          func() time.Time
	log          *slog.Logger
}

func NewTokenRefreshJob(
	sr repository.SocialAccountRepository,
	apps service.OAuthApps,
	instagramURL string,
	secretKey []byte,
	httpClient *http.Client,
	logger *slog.Logger) *TokenRefreshJob {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRefreshJob{
		sr:           sr,
		apps:         apps,
		instagramURL: instagramURL,
		key:          secretKey,
		httpClient:   httpClient,
		now:          time.Now,
		log:          logger.With("module", "token_refresh"),
	}
}

// Run satisfies cron.Job.
func (j *TokenRefreshJob) Run() {
	j.RefreshTokens(context.Background())
}

// RefreshTokens returns how many accounts got a new token.
func (j *TokenRefreshJob) RefreshTokens(ctx context.Context) int {
	now := j.now()
	accounts, err := j.sr.ListExpiring(ctx, now, now.Add(refreshWindow))
	if err != nil {
		j.log.Error("listing expiring accounts failed", "event", "refresh_list_failed", "error", err)
		return 0
	}

	refreshed := make([]bool, len(accounts))
	var g errgroup.Group
	g.SetLimit(refreshConcurrency)
	for i, acc := range accounts {
		i, acc := i, acc
		if acc.Platform != models.PlatformInstagram && (!refreshablePlatforms[acc.Platform] || j.apps[acc.Platform] == nil) {
			continue
		}
		g.Go(func() error {
			if err := j.refresh(ctx, acc); err != nil {
				level := slog.LevelWarn
				if errors.Is(err, repository.ErrStaleToken) {
					level = slog.LevelDebug
				}
				j.log.Log(ctx, level, "token refresh failed", "event", "refresh_failed",
					"account_id", acc.ID, "platform", acc.Platform, "error", err)
				return nil
			}
			refreshed[i] = true
			return nil
		})
	}
	g.Wait()

	n := 0
	for _, ok := range refreshed {
		if ok {
			n++
		}
	}
	if n > 0 {
		j.log.Info("tokens refreshed", "event", "tokens_refreshed", "count", n)
	}
	return n
}

func (j *TokenRefreshJob) refresh(ctx context.Context, acc *models.SocialAccount) error {
	refreshToken, err := utils.Decrypt(acc.RefreshToken, j.key)
	if err != nil {
		return err
	}

	var token *oauth2.Token
	if acc.Platform == models.PlatformInstagram {
		token, err = service.InstagramToken(ctx, j.httpClient, j.instagramURL, url.Values{
			"grant_type":   {"ig_refresh_token"},
			"access_token": {refreshToken},
		}, "/refresh_access_token")
		if err == nil {
			token.RefreshToken = token.AccessToken
		}
	} else {
		ctx := context.WithValue(ctx, oauth2.HTTPClient, j.httpClient)
		token, err = j.apps[acc.Platform].TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	}
	if err != nil {
		return err
	}

	update := &models.SocialAccount{}
	if update.AccessToken, err = utils.Encrypt([]byte(token.AccessToken), j.key); err != nil {
		return err
	}
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if update.RefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), j.key); err != nil {
			return err
		}
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		update.TokenExpiresAt = &expiry
	}

	// acc.AccessToken is still the stored ciphertext, which SetToken compares
	// against to detect a concurrent reconnect.
	return j.sr.SetToken(ctx, acc.ID, acc.AccessToken, update)
}
