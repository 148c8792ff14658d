package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_BypassEndpoint(t *testing.T) {
	called := false
	authn := &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice"}}}
	mw := Middleware(authn, nil, []string{"/healthz"})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if FromContext(r.Context()) != nil {
			t.Error("bypass endpoint should not carry an identity")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Errorf("bypass endpoint: status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_NoCredentials_PassesAnonymously(t *testing.T) {
	chain := Chain{abstain()}
	mw := Middleware(chain, nil, DefaultBypassEndpoints)

	var gotIdentity *Identity
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotIdentity = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/things", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("handler should be called for anonymous requests")
	}
	if gotIdentity != nil {
		t.Errorf("identity = %v, want nil", gotIdentity)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_ValidAuth_AttachesIdentity(t *testing.T) {
	chain := Chain{
		abstain(),
		&mockAuthn{result: AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}},
		}},
	}
	mw := Middleware(chain, nil, DefaultBypassEndpoints)

	var gotTenant string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil || id.Subject != "alice" {
			t.Error("expected identity 'alice' in context")
		}
		gotTenant = id.TenantID()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/things", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("valid auth: status = %d, want 200", rec.Code)
	}
	if gotTenant != "org-1" {
		t.Errorf("tenant = %q, want %q", gotTenant, "org-1")
	}
}

func TestMiddleware_RateLimit_Exceeded(t *testing.T) {
	chain := Chain{
		&mockAuthn{result: AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "alice", ServiceTier: "limited"},
		}},
	}

	limiter := NewInProcessLimiter(map[string]TierConfig{
		"limited": {RequestsPerMinute: 2, FramesPerMinute: 50},
	}, TierConfig{RequestsPerMinute: 100})

	mw := Middleware(chain, limiter, DefaultBypassEndpoints)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// First 2 requests should pass.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/things", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	// 3rd should be rate limited.
	req := httptest.NewRequest("POST", "/things", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("rate limited request: status = %d, want 429", rec.Code)
	}
}

func TestIdentify(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	tests := []struct {
		name    string
		authn   Authenticator
		subject string
	}{
		{"nil authenticator", nil, ""},
		{"yes", &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice"}}}, "alice"},
		{"no", &mockAuthn{result: AuthResult{Decision: No, Err: errors.New("bad key")}}, ""},
		{"abstain", &mockAuthn{result: AuthResult{Decision: Abstain}}, ""},
		{"empty subject", &mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Identify(context.Background(), tt.authn, r)
			got := ""
			if id != nil {
				got = id.Subject
			}
			if got != tt.subject {
				t.Errorf("subject = %q, want %q", got, tt.subject)
			}
		})
	}
}

func TestLimit_NilLimiterPasses(t *testing.T) {
	for i := 0; i < 100; i++ {
		if err := Limit(context.Background(), nil, &Identity{Subject: "alice"}, ScopeRequest); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
}

var _ Authenticator = (*mockAuthn)(nil)
