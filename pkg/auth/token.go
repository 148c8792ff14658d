package auth

import (
	"net/http"
	"strings"
)

// AccessTokenParam is the query parameter carrying a bearer token on a
// channel handshake. Browsers cannot set headers on websocket upgrades.
const AccessTokenParam = "access_token"

// BearerToken extracts a bearer token from the Authorization header, falling
// back to the access_token query parameter on websocket upgrade requests.
// ok is false when the request carries no bearer credentials at all; a
// present but empty token returns ("", true).
func BearerToken(r *http.Request) (token string, ok bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		return strings.TrimPrefix(header, "Bearer "), true
	}

	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return "", false
	}
	q := r.URL.Query()
	if !q.Has(AccessTokenParam) {
		return "", false
	}
	return q.Get(AccessTokenParam), true
}
