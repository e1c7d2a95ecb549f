package session

import (
	"context"
	"errors"
	"time"
)

// MaxAge is the lifetime of a session and of the cookies that carry it.
const MaxAge = 30 * 24 * time.Hour

var ErrInvalidSession = errors.New("session: missing session_id or user_id")

// Session is the server-side record behind a session cookie.
// It stores identity pointers and display data only.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"` // references users.id
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Image     string    `json:"image,omitempty"`
	Provider  string    `json:"provider"`
	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // absolute expiry time
}

// Expired reports whether the session is past its absolute expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
