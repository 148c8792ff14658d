package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rhuss/weft/pkg/auth"
)

// Kind identifies the transport that delivered a request.
type Kind string

const (
	KindHTTP    Kind = "http"
	KindHTTPS   Kind = "https"
	KindChannel Kind = "channel"
)

// MethodSocket is the method of every request synthesized from a channel event.
const MethodSocket = "SOCKET"

// Reserved channel event names. They are synthesized by the channel
// transport when a connection opens or closes and are never accepted from
// clients.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Dispatcher runs a request/response pair through the shared pipeline.
// Dispatch never returns an error: failures are turned into a response by
// the pipeline itself.
type Dispatcher interface {
	Dispatch(req *Request, res Response)
}

// Request is the transport-neutral request handed to the pipeline.
//
// A Request is private to one handling. Transports build a fresh value for
// every interaction and it must not be retained after Dispatch returns.
type Request struct {
	// Method is the request method after any override. Channel requests
	// always carry MethodSocket.
	Method string

	// OriginalMethod is the method as received, before method override.
	OriginalMethod string

	// URL is the request path for HTTP(S) and the event name for the channel.
	URL string

	Query  url.Values
	Header http.Header

	// Body is the decoded request body. For HTTP(S) it is filled by the body
	// decoding middleware from RawBody; for the channel it is the frame payload.
	Body    any
	RawBody []byte

	Transport  Kind
	RemoteAddr string

	// ID is the request ID (X-Request-ID for HTTP, frame id for the channel).
	ID string

	// App is the pipeline that is handling this request.
	App Dispatcher

	ctx context.Context
}

// NewRequest creates a Request bound to ctx.
func NewRequest(ctx context.Context, method, target string, transport Kind) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		Method:         method,
		OriginalMethod: method,
		URL:            target,
		Query:          url.Values{},
		Header:         http.Header{},
		Transport:      transport,
		ctx:            ctx,
	}
}

// Context returns the request context. It is never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the request context.
func (r *Request) SetContext(ctx context.Context) {
	if ctx == nil {
		panic("api: nil context")
	}
	r.ctx = ctx
}

// SetValue attaches a value to the request context, making it visible to
// every later stage of the pipeline for this request only.
func (r *Request) SetValue(key, val any) {
	r.ctx = context.WithValue(r.Context(), key, val)
}

// Value returns the value associated with key in the request context.
func (r *Request) Value(key any) any {
	return r.Context().Value(key)
}

// Identity returns the identity resolved by the transport, or nil.
func (r *Request) Identity() *auth.Identity {
	return auth.FromContext(r.Context())
}

// Lifecycle reports whether req is a connect or disconnect event
// synthesized by the channel transport.
func (r *Request) Lifecycle() bool {
	if r.Transport != KindChannel || r.Method != MethodSocket {
		return false
	}
	return r.URL == EventConnect || r.URL == EventDisconnect
}

// IsAuthenticated reports whether the request carries an identity that has
// not been marked as logged out.
func (r *Request) IsAuthenticated() bool {
	return r.Identity().Authenticated()
}
