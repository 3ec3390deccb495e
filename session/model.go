package session

import "time"

// Session binds a principal, a token pair, and client metadata into one
// independently revocable record.
type Session struct {
	ID          string `json:"id"`
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username,omitempty"`
	Role        string `json:"role,omitempty"`

	AccessTokenID  string `json:"access_token_id"`
	RefreshTokenID string `json:"refresh_token_id"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the absolute expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Stale reports whether the session has been idle longer than the given
// inactivity timeout. A stale session is treated as expired on read even
// when the backing cache entry still exists.
func (s *Session) Stale(now time.Time, inactivity time.Duration) bool {
	if inactivity <= 0 {
		return false
	}
	return now.Sub(s.LastActivityAt) > inactivity
}
