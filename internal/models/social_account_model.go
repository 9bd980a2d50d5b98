package models

import (
	"time"
)

type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTiktok    Platform = "tiktok"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformTwitter, PlatformLinkedIn, PlatformTiktok:
		return true
	}
	return false
}

type AccountKind string

const (
	AccountKindPersonal AccountKind = "personal"
	AccountKindBusiness AccountKind = "business"
	AccountKindPage     AccountKind = "page"
)

// SocialAccount binds a local user to one external platform identity.
// Access and refresh tokens are encrypted at rest.
type SocialAccount struct {
	ID               int64       `db:"id" json:"id"`
	UserID           int64       `db:"user_id" json:"user_id"`
	Platform         Platform    `db:"platform" json:"platform"`
	ExternalUserID   string      `db:"external_user_id" json:"external_user_id"`
	ExternalUsername string      `db:"external_username" json:"external_username"`
	DisplayName      string      `db:"display_name" json:"display_name"`
	AccountKind      AccountKind `db:"account_kind" json:"account_kind"`
	ProfilePicture   string      `db:"profile_picture_url" json:"profile_picture"`
	AccessToken      string      `db:"access_token" json:"-"`
	RefreshToken     string      `db:"refresh_token" json:"-"`
	TokenExpiresAt   *time.Time  `db:"token_expires_at" json:"token_expires_at,omitempty"`
	Active           bool        `db:"active" json:"active"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the access token has an expiry at or before now.
// Accounts without an expiry never expire.
func (a *SocialAccount) TokenExpired(now time.Time) bool {
	return a.TokenExpiresAt != nil && !a.TokenExpiresAt.After(now)
}
