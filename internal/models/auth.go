package models

import "time"

// Credentials holds the remote service login details. Immutable for the
// lifetime of a coordinator instance; owned by the session manager.
type Credentials struct {
	BaseURL  string `json:"base_url" validate:"required,url"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is the authentication artifact issued by the remote service.
// Mutated only by re-authentication inside the session manager.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Valid     bool      `json:"valid"`
}

// Usable reports whether the session can still be attached to requests.
// A small skew keeps us from racing the server-side expiry.
func (s Session) Usable(now time.Time) bool {
	if !s.Valid || s.Token == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt.Add(-30 * time.Second))
}
