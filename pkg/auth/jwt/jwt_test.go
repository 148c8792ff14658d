package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/weft/pkg/auth"
)

var testKey *rsa.PrivateKey

func init() {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

const testKID = "test-key-1"

// jwksHandler serves the test public key and counts fetches.
func jwksHandler(fetchCount *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fetchCount != nil {
			fetchCount.Add(1)
		}
		pub := testKey.PublicKey
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKID,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}
}

func signToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	s, err := token.SignedString(testKey)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

// claimsWith returns a valid claim set with overrides applied. A nil
// override value deletes the claim.
func claimsWith(overrides jwtlib.MapClaims) jwtlib.MapClaims {
	claims := jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "weft",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func newTestAuthenticator(t *testing.T, override func(*Config), fetchCount *atomic.Int32) *Authenticator {
	t.Helper()
	server := httptest.NewServer(jwksHandler(fetchCount))
	t.Cleanup(server.Close)

	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "weft",
		JWKSURL:  server.URL + "/.well-known/jwks.json",
	}
	if override != nil {
		override(&cfg)
	}
	return New(cfg)
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestJWT_Decisions(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	tests := []struct {
		name   string
		claims jwtlib.MapClaims
		want   auth.AuthDecision
	}{
		{"valid", nil, auth.Yes},
		{"expired", jwtlib.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}, auth.No},
		{"wrong audience", jwtlib.MapClaims{"aud": "other"}, auth.No},
		{"wrong issuer", jwtlib.MapClaims{"iss": "https://evil.example.com"}, auth.No},
		{"missing subject", jwtlib.MapClaims{"sub": nil}, auth.No},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authn.Authenticate(context.Background(), bearerRequest(signToken(t, claimsWith(tt.claims))))
			if result.Decision != tt.want {
				t.Fatalf("Decision = %d, want %d; err=%v", result.Decision, tt.want, result.Err)
			}
		})
	}
}

func TestJWT_NoBearerToken(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	for _, header := range []string{"", "Basic dXNlcjpwYXNz"} {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if result := authn.Authenticate(context.Background(), r); result.Decision != auth.Abstain {
			t.Errorf("header %q: Decision = %d, want Abstain", header, result.Decision)
		}
	}
}

func TestJWT_InvalidToken(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	for _, token := range []string{"not-a-jwt", "", "eyJhbGciOiJSUzI1NiJ9.invalidpayload"} {
		if result := authn.Authenticate(context.Background(), bearerRequest(token)); result.Decision != auth.No {
			t.Errorf("token %q: Decision = %d, want No", token, result.Decision)
		}
	}
}

func TestJWT_IdentityClaims(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	token := signToken(t, claimsWith(jwtlib.MapClaims{
		"tenant_id": "org-456",
		"tier":      "premium",
		"scope":     "read write admin",
	}))
	result := authn.Authenticate(context.Background(), bearerRequest(token))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}

	id := result.Identity
	if id.TenantID() != "org-456" {
		t.Errorf("TenantID = %q, want %q", id.TenantID(), "org-456")
	}
	if id.ServiceTier != "premium" {
		t.Errorf("ServiceTier = %q, want %q", id.ServiceTier, "premium")
	}
	if want := []string{"read", "write", "admin"}; !reflect.DeepEqual(id.Scopes, want) {
		t.Errorf("Scopes = %v, want %v", id.Scopes, want)
	}
	if id.LoggedOut {
		t.Error("LoggedOut = true, want false without logged_in claim")
	}
}

func TestJWT_ScopesArray(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	token := signToken(t, claimsWith(jwtlib.MapClaims{"scope": []any{"read", "write"}}))
	result := authn.Authenticate(context.Background(), bearerRequest(token))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if want := []string{"read", "write"}; !reflect.DeepEqual(result.Identity.Scopes, want) {
		t.Errorf("Scopes = %v, want %v", result.Identity.Scopes, want)
	}
}

func TestJWT_LoggedInClaim(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	tests := []struct {
		name          string
		loggedIn      any
		wantLoggedOut bool
	}{
		{"explicit false", false, true},
		{"explicit true", true, false},
		{"non-boolean", "no", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, claimsWith(jwtlib.MapClaims{"logged_in": tt.loggedIn}))
			result := authn.Authenticate(context.Background(), bearerRequest(token))
			if result.Decision != auth.Yes {
				t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
			}
			if result.Identity.LoggedOut != tt.wantLoggedOut {
				t.Errorf("LoggedOut = %v, want %v", result.Identity.LoggedOut, tt.wantLoggedOut)
			}
		})
	}
}

func TestJWT_HandshakeQueryToken(t *testing.T) {
	authn := newTestAuthenticator(t, nil, nil)

	token := signToken(t, claimsWith(nil))
	r := httptest.NewRequest("GET", "/socket?access_token="+token, nil)
	r.Header.Set("Upgrade", "websocket")

	result := authn.Authenticate(context.Background(), r)
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
}

func TestJWT_JWKSCaching(t *testing.T) {
	var fetchCount atomic.Int32
	authn := newTestAuthenticator(t, nil, &fetchCount)
	token := signToken(t, claimsWith(nil))

	for i := 0; i < 5; i++ {
		if result := authn.Authenticate(context.Background(), bearerRequest(token)); result.Decision != auth.Yes {
			t.Fatalf("request %d: Decision = %d, want Yes; err=%v", i, result.Decision, result.Err)
		}
	}

	if count := fetchCount.Load(); count != 1 {
		t.Errorf("JWKS fetch count = %d, want 1 (caching broken)", count)
	}
}

func TestJWT_CustomClaims(t *testing.T) {
	authn := newTestAuthenticator(t, func(cfg *Config) {
		cfg.UserClaim = "email"
		cfg.TenantClaim = "org_id"
		cfg.ScopesClaim = "permissions"
		cfg.Issuer = ""
		cfg.Audience = ""
	}, nil)

	token := signToken(t, claimsWith(jwtlib.MapClaims{
		"sub":         nil,
		"iss":         "https://any-issuer.example.com",
		"aud":         "any-api",
		"email":       "alice@example.com",
		"org_id":      "org-custom",
		"permissions": "read write",
	}))
	result := authn.Authenticate(context.Background(), bearerRequest(token))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice@example.com" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "alice@example.com")
	}
	if result.Identity.TenantID() != "org-custom" {
		t.Errorf("TenantID = %q, want %q", result.Identity.TenantID(), "org-custom")
	}
	if want := []string{"read", "write"}; !reflect.DeepEqual(result.Identity.Scopes, want) {
		t.Errorf("Scopes = %v, want %v", result.Identity.Scopes, want)
	}
}
