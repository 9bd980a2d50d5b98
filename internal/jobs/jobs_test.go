package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository/memory"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var (
	testKey       = []byte("0123456789abcdef0123456789abcdef")
	discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func encrypt(t *testing.T, s string) string {
	t.Helper()
	out, err := utils.Encrypt([]byte(s), testKey)
	require.NoError(t, err)
	return out
}

func decrypt(t *testing.T, s string) string {
	t.Helper()
	out, err := utils.Decrypt(s, testKey)
	require.NoError(t, err)
	return out
}

func TestRefreshTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "tw-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tw-new",
			"refresh_token": "tw-refresh-2",
			"token_type":    "bearer",
			"expires_in":    7200,
		})
	})
	mux.HandleFunc("/refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "ig-long", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ig-long-2",
			"token_type":   "bearer",
			"expires_in":   5184000,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	now := time.Now()
	soon := now.Add(10 * time.Minute)
	later := now.Add(3 * time.Hour)
	accounts := memory.NewAccounts(
		models.SocialAccount{ID: 1, UserID: 1, Platform: models.PlatformTwitter, Active: true,
			AccessToken: encrypt(t, "tw-old"), RefreshToken: encrypt(t, "tw-refresh"), TokenExpiresAt: &soon},
		models.SocialAccount{ID: 2, UserID: 1, Platform: models.PlatformInstagram, Active: true,
			AccessToken: encrypt(t, "ig-long"), RefreshToken: encrypt(t, "ig-long"), TokenExpiresAt: &soon},
		models.SocialAccount{ID: 3, UserID: 1, Platform: models.PlatformTiktok, Active: true,
			AccessToken: encrypt(t, "tt"), RefreshToken: encrypt(t, "tt-refresh"), TokenExpiresAt: &soon},
		models.SocialAccount{ID: 4, UserID: 1, Platform: models.PlatformTwitter, Active: true,
			AccessToken: encrypt(t, "fine"), RefreshToken: encrypt(t, "fine-refresh"), TokenExpiresAt: &later},
	)

	apps := service.OAuthApps{
		models.PlatformTwitter: &oauth2.Config{
			ClientID:     "tw-client",
			ClientSecret: "tw-secret",
			Endpoint: oauth2.Endpoint{
				TokenURL:  srv.URL + "/2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
	job := NewTokenRefreshJob(accounts, apps, srv.URL, testKey, srv.Client(), discardLogger)

	assert.Equal(t, 2, job.RefreshTokens(context.Background()))

	tw, _ := accounts.Get(1)
	assert.Equal(t, "tw-new", decrypt(t, tw.AccessToken))
	assert.Equal(t, "tw-refresh-2", decrypt(t, tw.RefreshToken))
	require.NotNil(t, tw.TokenExpiresAt)
	assert.True(t, tw.TokenExpiresAt.After(now.Add(time.Hour)))

	ig, _ := accounts.Get(2)
	assert.Equal(t, "ig-long-2", decrypt(t, ig.AccessToken))
	assert.Equal(t, "ig-long-2", decrypt(t, ig.RefreshToken))
	assert.True(t, ig.TokenExpiresAt.After(now.Add(24*time.Hour)))

	tt, _ := accounts.Get(3)
	assert.Equal(t, "tt", decrypt(t, tt.AccessToken))

	untouched, _ := accounts.Get(4)
	assert.Equal(t, "fine", decrypt(t, untouched.AccessToken))
}

func TestRefreshTokensSurvivesPlatformError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	soon := time.Now().Add(5 * time.Minute)
	accounts := memory.NewAccounts(models.SocialAccount{ID: 1, UserID: 1, Platform: models.PlatformLinkedIn, Active: true,
		AccessToken: encrypt(t, "li"), RefreshToken: encrypt(t, "li-refresh"), TokenExpiresAt: &soon})

	apps := service.OAuthApps{
		models.PlatformLinkedIn: &oauth2.Config{
			ClientID: "li",
			Endpoint: oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
		},
	}
	job := NewTokenRefreshJob(accounts, apps, srv.URL, testKey, srv.Client(), discardLogger)

	assert.Zero(t, job.RefreshTokens(context.Background()))
	acc, _ := accounts.Get(1)
	assert.Equal(t, "li", decrypt(t, acc.AccessToken))
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) RunSweep(ctx context.Context) (*service.SweepReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*service.SweepReport)
	return report, args.Error(1)
}

func (m *mockScheduler) SweepPost(ctx context.Context, postID int64) (*service.SweepReport, error) {
	args := m.Called(ctx, postID)
	report, _ := args.Get(0).(*service.SweepReport)
	return report, args.Error(1)
}

func TestSweepJobRun(t *testing.T) {
	s := &mockScheduler{}
	s.On("RunSweep", mock.Anything).Return(&service.SweepReport{}, nil).Once()
	s.On("RunSweep", mock.Anything).Return(nil, errors.New("database is down")).Once()

	j := NewSweepJob(s, discardLogger)
	j.Run()
	j.Run()
	s.AssertNumberOfCalls(t, "RunSweep", 2)
}

func TestNewCron(t *testing.T) {
	sweep := NewSweepJob(&mockScheduler{}, discardLogger)
	refresh := NewTokenRefreshJob(memory.NewAccounts(), service.OAuthApps{}, "", testKey, nil, discardLogger)

	c, err := NewCron(config.Sweep{Schedule: "@every 1m", RefreshEvery: "*/15 * * * *"}, sweep, refresh, discardLogger)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	_, err = NewCron(config.Sweep{Schedule: "every minute", RefreshEvery: "@hourly"}, sweep, refresh, discardLogger)
	assert.Error(t, err)

	_, err = NewCron(config.Sweep{Schedule: "@every 1m", RefreshEvery: "61 * * * *"}, sweep, refresh, discardLogger)
	assert.Error(t, err)
}
