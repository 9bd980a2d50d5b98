package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// OAuthApp holds the client registration for one platform.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// PlatformAPI holds the API base URLs the publishers talk to. Tests point
// them at httptest servers.
type PlatformAPI struct {
	GraphURL     string
	InstagramURL string
	TwitterURL   string
	LinkedInURL  string
	TiktokURL    string
}

type Publishing struct {
	Timeout     time.Duration
	Concurrency int
}

type Sweep struct {
	Schedule     string
	BatchSize    int
	Concurrency  int
	ClaimTTL     time.Duration
	RefreshEvery string
}

type Config struct {
	Facebook    OAuthApp
	Instagram   OAuthApp
	Twitter     OAuthApp
	LinkedIn    OAuthApp
	Tiktok      OAuthApp
	API         PlatformAPI
	Publishing  Publishing
	Sweep       Sweep
	PostgresURI string
	RedisURI    string
	FrontendURL string
	Port        string
	R2          R2
	SecretKey   string
	CookieName  string
}

func LoadConfig() *Config {
	return &Config{
		Facebook:  loadOAuthApp("FACEBOOK"),
		Instagram: loadOAuthApp("INSTAGRAM"),
		Twitter:   loadOAuthApp("TWITTER"),
		LinkedIn:  loadOAuthApp("LINKEDIN"),
		Tiktok:    loadOAuthApp("TIKTOK"),
		API: PlatformAPI{
			GraphURL:     getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v21.0"),
			InstagramURL: getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/v21.0"),
			TwitterURL:   getEnv("TWITTER_API_URL", "https://api.x.com"),
			LinkedInURL:  getEnv("LINKEDIN_API_URL", "https://api.linkedin.com"),
			TiktokURL:    getEnv("TIKTOK_API_URL", "https://open.tiktokapis.com"),
		},
		Publishing: Publishing{
			Timeout:     getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
			Concurrency: getEnvInt("PUBLISH_CONCURRENCY", 10),
		},
		Sweep: Sweep{
			Schedule:     getEnv("SWEEP_SCHEDULE", "@every 1m"),
			BatchSize:    getEnvInt("SWEEP_BATCH_SIZE", 100),
			Concurrency:  getEnvInt("SWEEP_CONCURRENCY", 4),
			ClaimTTL:     getEnvDuration("SWEEP_CLAIM_TTL", 10*time.Minute),
			RefreshEvery: getEnv("TOKEN_REFRESH_SCHEDULE", "@every 10m"),
		},
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		Port:        getEnv("PORT", "3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "session"),
	}
}

func loadOAuthApp(prefix string) OAuthApp {
	return OAuthApp{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURI:  getEnv(prefix+"_REDIRECT_URI", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
