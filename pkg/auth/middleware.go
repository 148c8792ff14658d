package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/observability"
)

// Identify runs authn against r and returns the resolved identity, or nil
// when the request carries no usable credentials. A nil authenticator
// identifies nobody.
func Identify(ctx context.Context, authn Authenticator, r *http.Request) *Identity {
	if authn == nil {
		return nil
	}

	result := authn.Authenticate(ctx, r)
	switch result.Decision {
	case Yes:
		if result.Identity == nil || result.Identity.Subject == "" {
			slog.Error("authenticator returned identity with empty subject",
				"path", r.URL.Path,
			)
			return nil
		}
		debug.Log(debug.Auth, "identified",
			"subject", result.Identity.Subject,
			"logged_out", result.Identity.LoggedOut,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		return result.Identity
	case No:
		slog.Warn("credentials rejected, continuing anonymously",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"error", result.Err,
		)
	}
	return nil
}

// Middleware creates HTTP middleware that attaches the identity resolved by
// authn to the request context. Requests without a valid identity pass
// through anonymously. When limiter is set, identified callers over their
// tier's request budget are rejected with 429.
func Middleware(authn Authenticator, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			id := Identify(r.Context(), authn, r)
			if id == nil {
				next.ServeHTTP(w, r)
				return
			}

			if err := Limit(r.Context(), limiter, id, ScopeRequest); err != nil {
				http.Error(w, `{"error":{"type":"too_many_requests","message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Limit charges one call in scope to identity and records rejections. A nil
// limiter or a nil identity always passes.
func Limit(ctx context.Context, limiter RateLimiter, identity *Identity, scope Scope) error {
	if limiter == nil || identity == nil {
		return nil
	}
	if err := limiter.Allow(ctx, identity, scope); err != nil {
		slog.Warn("rate limit exceeded",
			"subject", identity.Subject,
			"tier", identity.Tier(),
			"scope", scope,
		)
		observability.RateLimitRejectedTotal.WithLabelValues(identity.Tier(), string(scope)).Inc()
		return err
	}
	return nil
}

// DefaultBypassEndpoints lists endpoints that skip identification.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}
