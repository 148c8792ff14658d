package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is an authenticator's vote on one request.
type AuthDecision int

const (
	// Yes: the credentials identify a caller. Evaluation stops.
	Yes AuthDecision = iota

	// No: credentials are present but not valid. Evaluation stops and the
	// caller stays anonymous.
	No

	// Abstain: no credentials this authenticator understands. The next one
	// is asked.
	Abstain
)

// AuthResult is the outcome of one Authenticate call.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set only for Yes
	Err      error     // set only for No
}

// Authenticator identifies the caller behind an HTTP request or a channel
// handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	// ErrUnauthenticated is the Err of a No vote on invalid credentials.
	ErrUnauthenticated = errors.New("invalid credentials")

	// ErrTooManyRequests is returned by a RateLimiter over budget.
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks each authenticator in turn; the first Yes or No decides. When
// every member abstains the chain abstains too, so the caller is simply
// anonymous.
type Chain []Authenticator

// Authenticate implements Authenticator.
func (c Chain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}
	return AuthResult{Decision: Abstain}
}

// NewChain combines authns, skipping nil entries. It returns nil when none
// remain and the single authenticator itself when only one does.
func NewChain(authns ...Authenticator) Authenticator {
	var c Chain
	for _, a := range authns {
		if a != nil {
			c = append(c, a)
		}
	}
	switch len(c) {
	case 0:
		return nil
	case 1:
		return c[0]
	}
	return c
}
