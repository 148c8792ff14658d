// Package session defines server-side session state used to identify
// callers across HTTP requests and channel connections.
//
// A session is looked up from a cookie by [Authenticator], which plugs into
// the auth chain. Store implementations live in the memory and postgres
// subpackages.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Session is the server-side state behind a session cookie.
type Session struct {
	ID          string
	Subject     string
	TenantID    string
	ServiceTier string

	// LoggedIn is false once the user has logged out. The session is kept so
	// the caller stays recognizable, but it no longer authenticates.
	LoggedIn bool

	Data      map[string]string
	CreatedAt time.Time

	// ExpiresAt is the zero time for sessions that never expire.
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	// Get returns the session with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Save creates or replaces a session.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting an unknown session returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// NewID returns a fresh random session ID.
func NewID() string {
	return uuid.NewString()
}

// New creates a logged-in session for subject that expires after ttl.
// A zero ttl creates a session without expiry.
func New(subject string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        NewID(),
		Subject:   subject,
		LoggedIn:  true,
		Data:      map[string]string{},
		CreatedAt: now,
	}
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
	return s
}
