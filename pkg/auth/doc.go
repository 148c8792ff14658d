// Package auth provides pluggable caller identification for weft.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A Chain whose members all abstain
// abstains as well, which leaves the caller anonymous.
//
// Rate budgets are kept per subject, tier, and Scope: HTTP(S) requests and
// channel frames draw from separate windows.
//
// Identification does not enforce access. Transports run the chain once per
// HTTP request and once per channel handshake and attach the resulting
// identity to the request context; route handlers decide what an anonymous
// or logged-out caller may do through Request.IsAuthenticated.
package auth
