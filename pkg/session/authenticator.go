package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/debug"
)

// DefaultCookieName is the cookie carrying the session ID.
const DefaultCookieName = "weft_sid"

// Authenticator resolves the session cookie to an identity.
type Authenticator struct {
	store  Store
	cookie string
}

// NewAuthenticator creates an Authenticator reading cookieName
// (DefaultCookieName when empty) and looking sessions up in store.
func NewAuthenticator(store Store, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Authenticator{store: store, cookie: cookieName}
}

// Authenticate returns Abstain without a session cookie or for an anonymous
// session, No for an unknown or expired session, and Yes otherwise. A logged
// out session yields an identity marked LoggedOut.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	c, err := r.Cookie(a.cookie)
	if err != nil || c.Value == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	s, err := a.store.Get(ctx, c.Value)
	if errors.Is(err, ErrNotFound) {
		debug.Log(debug.Session, "unknown session", "cookie", a.cookie)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)}
	}
	if err != nil {
		slog.Error("session lookup failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: err}
	}
	if s.Subject == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: Identity(s)}
}

// Identity converts a session into the identity attached to requests.
func Identity(s *Session) *auth.Identity {
	id := &auth.Identity{
		Subject:     s.Subject,
		ServiceTier: s.ServiceTier,
		Metadata:    map[string]string{"session_id": s.ID},
		LoggedOut:   !s.LoggedIn,
	}
	if s.TenantID != "" {
		id.Metadata["tenant_id"] = s.TenantID
	}
	return id
}

// Cookie builds the cookie that binds a client to s.
func (a *Authenticator) Cookie(s *Session, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     a.cookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !s.ExpiresAt.IsZero() {
		c.Expires = s.ExpiresAt
	}
	return c
}
