package auth

import "context"

// DefaultTier is the service tier of identities that do not name one.
const DefaultTier = "default"

// Identity is a caller resolved from request credentials.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// ServiceTier selects the caller's rate budget. Empty means DefaultTier.
	ServiceTier string

	// Scopes lists the authorization scopes granted.
	Scopes []string

	// Metadata carries authenticator-specific data. "tenant_id" is set by
	// every built-in authenticator that knows a tenant.
	Metadata map[string]string

	// LoggedOut marks a caller that is still recognized but has ended its
	// session. Such an identity is attached to requests but is not
	// authenticated.
	LoggedOut bool
}

// Authenticated reports whether id is a logged-in caller. A nil identity is
// not authenticated.
func (id *Identity) Authenticated() bool {
	return id != nil && id.Subject != "" && !id.LoggedOut
}

// Tier returns the service tier, or DefaultTier.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return DefaultTier
	}
	return id.ServiceTier
}

// TenantID returns the "tenant_id" metadata, or "".
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id. A nil id leaves ctx
// unchanged.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached to ctx, or nil for anonymous
// callers.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
