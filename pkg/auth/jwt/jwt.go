// Package jwt provides a JWT/OIDC authenticator that validates
// bearer tokens against a JWKS (JSON Web Key Set) endpoint.
//
// Tokens are taken from the Authorization header or, on channel handshakes,
// from the access_token query parameter. Claims map onto the identity's
// subject, tenant, service tier, scopes, and logged-in state.
package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables issuer validation.
	Issuer string

	// Audience is the expected aud claim. Empty disables audience validation.
	Audience string

	// JWKSURL is the URL of the JSON Web Key Set used to verify signatures.
	JWKSURL string

	// UserClaim names the claim used as the identity subject. Default: "sub".
	UserClaim string

	// TenantClaim names the claim stored as tenant_id metadata. Default: "tenant_id".
	TenantClaim string

	// TierClaim names the claim used as the service tier. Default: "tier".
	TierClaim string

	// ScopesClaim names the claim holding scopes, either a space-separated
	// string or an array. Default: "scope".
	ScopesClaim string

	// LoggedInClaim names a boolean claim; an explicit false marks the
	// identity as logged out. Default: "logged_in".
	LoggedInClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient is used to fetch the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.LoggedInClaim == "" {
		c.LoggedInClaim = "logged_in"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

var (
	errEmptyToken = errors.New("empty bearer token")
	errMissingKID = errors.New("token missing kid header")
)

// Authenticator validates JWT bearer tokens against a JWKS endpoint.
type Authenticator struct {
	config Config
	keys   *jwksCache
	parser *jwtlib.Parser
}

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys:   newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate validates the request's bearer token as a JWT.
//
// Decision outcomes:
//   - Abstain: no bearer token
//   - No: token present but invalid (expired, wrong issuer, bad signature, missing subject)
//   - Yes: valid JWT with populated Identity
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return auth.AuthResult{Decision: auth.No, Err: errEmptyToken}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(token *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, token)
	})
	if err != nil {
		debug.Log(debug.Auth, "JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	identity, err := a.identityFromClaims(claims)
	if err != nil {
		return auth.AuthResult{Decision: auth.No, Err: err}
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

func (a *Authenticator) verificationKey(ctx context.Context, token *jwtlib.Token) (*rsa.PublicKey, error) {
	if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errMissingKID
	}
	key, err := a.keys.get(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, err)
	}
	return key, nil
}

func (a *Authenticator) identityFromClaims(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject := claimString(claims, a.config.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.config.UserClaim)
	}

	identity := &auth.Identity{
		Subject:     subject,
		ServiceTier: claimString(claims, a.config.TierClaim),
		Scopes:      claimScopes(claims, a.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		identity.Metadata["tenant_id"] = tenant
	}
	if loggedIn, ok := claims[a.config.LoggedInClaim].(bool); ok && !loggedIn {
		identity.LoggedOut = true
	}
	return identity, nil
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimScopes accepts either a space-separated string or a JSON array.
func claimScopes(claims jwtlib.MapClaims, key string) []string {
	var scopes []string
	switch v := claims[key].(type) {
	case string:
		scopes = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
