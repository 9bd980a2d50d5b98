package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PUBLISH_TIMEOUT", "")
	t.Setenv("SWEEP_BATCH_SIZE", "")
	t.Setenv("TWITTER_CLIENT_ID", "")

	cfg := LoadConfig()
	assert.Equal(t, 30*time.Second, cfg.Publishing.Timeout)
	assert.Equal(t, 100, cfg.Sweep.BatchSize)
	assert.Equal(t, "@every 1m", cfg.Sweep.Schedule)
	assert.Equal(t, "https://api.x.com", cfg.API.TwitterURL)
	assert.Empty(t, cfg.Twitter.ClientID)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PUBLISH_TIMEOUT", "45s")
	t.Setenv("SWEEP_CLAIM_TTL", "not-a-duration")
	t.Setenv("SWEEP_CONCURRENCY", "8")
	t.Setenv("LINKEDIN_CLIENT_ID", "li-client")
	t.Setenv("LINKEDIN_REDIRECT_URI", "https://app/auth/linkedin/callback")

	cfg := LoadConfig()
	assert.Equal(t, 45*time.Second, cfg.Publishing.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Sweep.ClaimTTL)
	assert.Equal(t, 8, cfg.Sweep.Concurrency)
	assert.Equal(t, "li-client", cfg.LinkedIn.ClientID)
	assert.Equal(t, "https://app/auth/linkedin/callback", cfg.LinkedIn.RedirectURI)
}
