package auth

import "time"

// Session is the local authenticated session established after a
// successful provision. The record is cached server-side keyed by ID; only
// the ID travels in the browser cookie.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Sub       string    `json:"sub"`
	Iss       string    `json:"iss"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	CSRFToken string `json:"csrf_token"`
}

// Valid reports whether the session has not expired.
func (s *Session) Valid() bool {
	return time.Now().Before(s.ExpiresAt)
}
