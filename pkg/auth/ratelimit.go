package auth

import (
	"context"
	"sync"
	"time"
)

// Scope separates the budgets one caller draws from. HTTP(S) requests and
// channel frames are counted apart, so a chatty socket does not starve the
// same caller's page loads.
type Scope string

const (
	ScopeRequest Scope = "request"
	ScopeFrame   Scope = "frame"
)

// RateLimiter decides whether identity may make one more call in scope.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity, scope Scope) error
}

// TierConfig is the per-minute budget of one service tier.
type TierConfig struct {
	// RequestsPerMinute bounds HTTP(S) requests. Zero or less is unlimited.
	RequestsPerMinute int

	// FramesPerMinute bounds inbound channel frames. Zero falls back to
	// RequestsPerMinute; less than zero is unlimited.
	FramesPerMinute int
}

func (tc TierConfig) limit(scope Scope) int {
	if scope == ScopeFrame && tc.FramesPerMinute != 0 {
		return tc.FramesPerMinute
	}
	return tc.RequestsPerMinute
}

// InProcessLimiter counts calls per subject, tier, and scope in fixed
// one-minute windows held in memory. Windows that have run out are swept
// at most once per window length, so idle callers do not accumulate.
type InProcessLimiter struct {
	tiers    map[string]TierConfig
	fallback TierConfig
	window   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	windows   map[budgetKey]*budget
	lastSweep time.Time
}

type budgetKey struct {
	subject string
	tier    string
	scope   Scope
}

type budget struct {
	start time.Time
	used  int
}

// NewInProcessLimiter creates a limiter. Tiers missing from tiers use
// fallback.
func NewInProcessLimiter(tiers map[string]TierConfig, fallback TierConfig) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:    tiers,
		fallback: fallback,
		window:   time.Minute,
		now:      time.Now,
		windows:  make(map[budgetKey]*budget),
	}
}

// Allow implements RateLimiter. Anonymous callers are never limited.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity, scope Scope) error {
	if identity == nil {
		return nil
	}
	tier := identity.Tier()
	tc, ok := l.tiers[tier]
	if !ok {
		tc = l.fallback
	}
	max := tc.limit(scope)
	if max <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}

	key := budgetKey{subject: identity.Subject, tier: tier, scope: scope}
	b := l.windows[key]
	if b == nil || now.Sub(b.start) >= l.window {
		l.windows[key] = &budget{start: now, used: 1}
		return nil
	}
	if b.used >= max {
		return ErrTooManyRequests
	}
	b.used++
	return nil
}

// Len returns the number of live budget windows.
func (l *InProcessLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// sweep must be called with l.mu held.
func (l *InProcessLimiter) sweep(now time.Time) {
	for k, b := range l.windows {
		if now.Sub(b.start) >= l.window {
			delete(l.windows, k)
		}
	}
	l.lastSweep = now
}
