package domain

import "time"

// PlatformAccount is a user's linked account on a platform.
//
// PlatformUserID is the id the platform APIs address: the Facebook page id,
// the Instagram business user id, or the LinkedIn person id.
type PlatformAccount struct {
	ID             string     `db:"id"               json:"id"`
	UserID         string     `db:"user_id"          json:"user_id"`
	Platform       Platform   `db:"platform"         json:"platform"`
	PlatformUserID string     `db:"platform_user_id" json:"platform_user_id"`
	AccessToken    string     `db:"access_token"     json:"-"`
	RefreshToken   string     `db:"refresh_token"    json:"-"`
	ExpiresAt      *time.Time `db:"expires_at"       json:"expires_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}

// NeedsRefresh reports whether the access token has expired at now.
// Accounts without an expiry never need a refresh.
func (a *PlatformAccount) NeedsRefresh(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// TokenUpdate carries the result of a token refresh into storage.
// An empty RefreshToken keeps the stored one.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
