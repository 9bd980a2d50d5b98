package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"golang.org/x/oauth2"
)

const stateTTL = 15 * time.Minute

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrInvalidState        = errors.New("invalid or expired authorization state")
)

var oauthEndpoints = map[models.Platform]oauth2.Endpoint{
	models.PlatformFacebook: {
		AuthURL:  "https://www.facebook.com/v21.0/dialog/oauth",
		TokenURL: "https://graph.facebook.com/v21.0/oauth/access_token",
	},
	models.PlatformInstagram: {
		AuthURL:   "https://www.instagram.com/oauth/authorize",
		TokenURL:  "https://api.instagram.com/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	models.PlatformTwitter: {
		AuthURL:   "https://x.com/i/oauth2/authorize",
		TokenURL:  "https://api.x.com/2/oauth2/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	},
	models.PlatformLinkedIn: {
		AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
		TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
		AuthStyle: oauth2.AuthStyleInParams,
	},
	models.PlatformTiktok: {
		AuthURL:   "https://www.tiktok.com/v2/auth/authorize/",
		TokenURL:  "https://open.tiktokapis.com/v2/oauth/token/",
		AuthStyle: oauth2.AuthStyleInParams,
	},
}

// Scopes are sent verbatim: Instagram and TikTok expect comma separated lists.
var oauthScopes = map[models.Platform]string{
	models.PlatformFacebook:  "pages_show_list,pages_read_engagement,pages_manage_posts",
	models.PlatformInstagram: "instagram_business_basic,instagram_business_content_publish",
	models.PlatformTwitter:   "tweet.read tweet.write users.read media.write offline.access",
	models.PlatformLinkedIn:  "openid profile w_member_social",
	models.PlatformTiktok:    "user.info.basic,user.info.profile,video.publish,video.upload",
}

// OAuthApps holds one oauth2 client configuration per platform with a
// registered app.
type OAuthApps map[models.Platform]*oauth2.Config

func NewOAuthApps(cfg config.Config) OAuthApps {
	apps := map[models.Platform]config.OAuthApp{
		models.PlatformFacebook:  cfg.Facebook,
		models.PlatformInstagram: cfg.Instagram,
		models.PlatformTwitter:   cfg.Twitter,
		models.PlatformLinkedIn:  cfg.LinkedIn,
		models.PlatformTiktok:    cfg.Tiktok,
	}

	out := make(OAuthApps, len(apps))
	for platform, app := range apps {
		if app.ClientID == "" {
			continue
		}
		out[platform] = &oauth2.Config{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			RedirectURL:  app.RedirectURI,
			Endpoint:     oauthEndpoints[platform],
		}
	}
	return out
}

// PlatformService runs the account connect flow: it sends the user to the
// platform's consent screen and links the returned identity.
type PlatformService interface {
	AuthURL(ctx context.Context, platform models.Platform, userID int64) (string, error)
	Callback(ctx context.Context, platform models.Platform, code, state string) ([]int64, error)
}

type platformService struct {
	apps       OAuthApps
	api        config.PlatformAPI
	secretKey  string
	accounts   AccountService
	httpClient *http.Client
	log        *slog.Logger
}

func NewPlatformService(cfg config.Config, apps OAuthApps, accounts AccountService, httpClient *http.Client, logger *slog.Logger) PlatformService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &platformService{
		apps:       apps,
		api:        cfg.API,
		secretKey:  cfg.SecretKey,
		accounts:   accounts,
		httpClient: httpClient,
		log:        logger.With("module", "connect"),
	}
}

func (s *platformService) AuthURL(ctx context.Context, platform models.Platform, userID int64) (string, error) {
	conf, ok := s.apps[platform]
	if !ok {
		return "", ErrUnsupportedPlatform
	}

	claims := utils.StateClaims{
		UserID:   strconv.FormatInt(userID, 10),
		Platform: string(platform),
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("scope", oauthScopes[platform])}

	switch platform {
	case models.PlatformTwitter:
		// The state never carries the plain verifier.
		verifier := oauth2.GenerateVerifier()
		sealed, err := utils.Encrypt([]byte(verifier), []byte(s.secretKey))
		if err != nil {
			return "", fmt.Errorf("error sealing verifier: %w", err)
		}
		claims.Verifier = sealed
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	case models.PlatformTiktok:
		opts = append(opts, oauth2.SetAuthURLParam("client_key", conf.ClientID))
	}

	state, err := utils.GenerateStateToken(s.secretKey, claims, stateTTL)
	if err != nil {
		return "", fmt.Errorf("error signing state: %w", err)
	}
	return conf.AuthCodeURL(state, opts...), nil
}

// Callback completes an authorization and returns the ids of the linked
// accounts. A Facebook user can grant several pages at once.
func (s *platformService) Callback(ctx context.Context, platform models.Platform, code, state string) ([]int64, error) {
	conf, ok := s.apps[platform]
	if !ok {
		return nil, ErrUnsupportedPlatform
	}
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	claims, err := utils.ValidateStateToken(s.secretKey, state)
	if err != nil || claims.Platform != string(platform) {
		return nil, ErrInvalidState
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		return nil, ErrInvalidState
	}

	var opts []oauth2.AuthCodeOption
	switch platform {
	case models.PlatformTwitter:
		verifier, err := utils.Decrypt(claims.Verifier, []byte(s.secretKey))
		if err != nil {
			return nil, ErrInvalidState
		}
		opts = append(opts, oauth2.VerifierOption(verifier))
	case models.PlatformTiktok:
		opts = append(opts, oauth2.SetAuthURLParam("client_key", conf.ClientID))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("error exchanging code: %w", err)
	}

	identities, err := s.identities(ctx, platform, conf.Client(ctx, token), token)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(identities))
	for _, acc := range identities {
		acc.UserID = userID
		acc.Platform = platform
		id, err := s.accounts.Link(ctx, acc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	s.log.Info("accounts connected", "event", "accounts_connected", "platform", platform,
		"user_id", userID, "count", len(ids))
	return ids, nil
}

func (s *platformService) identities(ctx context.Context, platform models.Platform, client *http.Client, token *oauth2.Token) ([]*models.SocialAccount, error) {
	switch platform {
	case models.PlatformFacebook:
		return s.facebookPages(ctx, client)
	case models.PlatformInstagram:
		return s.instagramAccount(ctx, client, token)
	case models.PlatformTwitter:
		return s.twitterAccount(ctx, client, token)
	case models.PlatformLinkedIn:
		return s.linkedInAccount(ctx, client, token)
	case models.PlatformTiktok:
		return s.tiktokAccount(ctx, client, token)
	}
	return nil, ErrUnsupportedPlatform
}

// facebookPages links every page the user granted, each with its own
// non-expiring page token.
func (s *platformService) facebookPages(ctx context.Context, client *http.Client) ([]*models.SocialAccount, error) {
	var resp struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
			Picture     struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			} `json:"picture"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, s.api.GraphURL+"/me/accounts?fields=id,name,access_token,picture", &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no facebook pages were granted")
	}

	accounts := make([]*models.SocialAccount, 0, len(resp.Data))
	for _, page := range resp.Data {
		accounts = append(accounts, &models.SocialAccount{
			ExternalUserID:   page.ID,
			ExternalUsername: page.Name,
			DisplayName:      page.Name,
			AccountKind:      models.AccountKindPage,
			ProfilePicture:   page.Picture.Data.URL,
			AccessToken:      page.AccessToken,
		})
	}
	return accounts, nil
}

// instagramAccount swaps the one-hour token from the code exchange for a
// long-lived one. Instagram refreshes that token with itself, so it is also
// stored as the refresh token.
func (s *platformService) instagramAccount(ctx context.Context, client *http.Client, token *oauth2.Token) ([]*models.SocialAccount, error) {
	conf := s.apps[models.PlatformInstagram]
	longLived, err := InstagramToken(ctx, s.httpClient, s.api.InstagramURL, url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {conf.ClientSecret},
		"access_token":  {token.AccessToken},
	}, "/access_token")
	if err != nil {
		return nil, fmt.Errorf("error getting long-lived token: %w", err)
	}
	token = longLived
	client = conf.Client(ctx, token)

	var resp struct {
		UserID         string `json:"user_id"`
		Username       string `json:"username"`
		Name           string `json:"name"`
		ProfilePicture string `json:"profile_picture_url"`
	}
	if err := getJSON(ctx, client, s.api.InstagramURL+"/me?fields=user_id,username,name,profile_picture_url", &resp); err != nil {
		return nil, err
	}
	return []*models.SocialAccount{{
		ExternalUserID:   resp.UserID,
		ExternalUsername: resp.Username,
		DisplayName:      resp.Name,
		AccountKind:      models.AccountKindBusiness,
		ProfilePicture:   resp.ProfilePicture,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.AccessToken,
		TokenExpiresAt:   expiryOf(token),
	}}, nil
}

func (s *platformService) twitterAccount(ctx context.Context, client *http.Client, token *oauth2.Token) ([]*models.SocialAccount, error) {
	var resp struct {
		Data struct {
			ID              string `json:"id"`
			Username        string `json:"username"`
			Name            string `json:"name"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, s.api.TwitterURL+"/2/users/me?user.fields=profile_image_url", &resp); err != nil {
		return nil, err
	}
	return []*models.SocialAccount{{
		ExternalUserID:   resp.Data.ID,
		ExternalUsername: resp.Data.Username,
		DisplayName:      resp.Data.Name,
		AccountKind:      models.AccountKindPersonal,
		ProfilePicture:   resp.Data.ProfileImageURL,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		TokenExpiresAt:   expiryOf(token),
	}}, nil
}

func (s *platformService) linkedInAccount(ctx context.Context, client *http.Client, token *oauth2.Token) ([]*models.SocialAccount, error) {
	var resp struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, s.api.LinkedInURL+"/v2/userinfo", &resp); err != nil {
		return nil, err
	}
	return []*models.SocialAccount{{
		ExternalUserID:   resp.Sub,
		ExternalUsername: resp.Email,
		DisplayName:      resp.Name,
		AccountKind:      models.AccountKindPersonal,
		ProfilePicture:   resp.Picture,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		TokenExpiresAt:   expiryOf(token),
	}}, nil
}

func (s *platformService) tiktokAccount(ctx context.Context, client *http.Client, token *oauth2.Token) ([]*models.SocialAccount, error) {
	var resp struct {
		Data struct {
			User struct {
				OpenID      string `json:"open_id"`
				Username    string `json:"username"`
				DisplayName string `json:"display_name"`
				AvatarURL   string `json:"avatar_url"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, s.api.TiktokURL+"/v2/user/info/?fields=open_id,username,display_name,avatar_url", &resp); err != nil {
		return nil, err
	}
	return []*models.SocialAccount{{
		ExternalUserID:   resp.Data.User.OpenID,
		ExternalUsername: resp.Data.User.Username,
		DisplayName:      resp.Data.User.DisplayName,
		AccountKind:      models.AccountKindPersonal,
		ProfilePicture:   resp.Data.User.AvatarURL,
		AccessToken:      token.AccessToken,
		RefreshToken:     token.RefreshToken,
		TokenExpiresAt:   expiryOf(token),
	}}, nil
}

// InstagramToken calls one of Instagram's GET token endpoints
// (access_token or refresh_access_token) and returns the long-lived token.
func InstagramToken(ctx context.Context, client *http.Client, baseURL string, params url.Values, path string) (*oauth2.Token, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := getJSON(ctx, client, baseURL+path+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("instagram returned no access token")
	}

	token := &oauth2.Token{AccessToken: resp.AccessToken, TokenType: "Bearer"}
	if resp.ExpiresIn > 0 {
		token.Expiry = GetExpiresAt(time.Now(), resp.ExpiresIn)
	}
	return token, nil
}

func expiryOf(token *oauth2.Token) *time.Time {
	if token.Expiry.IsZero() {
		return nil
	}
	expiry := token.Expiry
	return &expiry
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error fetching %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding %s: %w", req.URL.Path, err)
	}
	return nil
}
