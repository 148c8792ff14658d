package transport

import (
	"context"
	"net"
	"net/http"

	"github.com/rhuss/weft/pkg/api"
)

// Listener owns the lifecycle of one transport.
//
// Start is idempotent: once a call has succeeded, later calls return nil
// without binding anything new. A failed Start leaves the listener
// unstarted and may be retried.
type Listener interface {
	Kind() api.Kind
	Start(ctx context.Context) error
	Started() bool
	Shutdown(ctx context.Context) error
}

// Carrier is a started HTTP(S) listener that other transports can mount
// handlers on. The channel transport rides on a carrier.
type Carrier interface {
	Listener

	// Mount registers h for pattern on the carrier's mux. Patterns follow
	// http.ServeMux syntax.
	Mount(pattern string, h http.Handler)

	// Addr returns the bound address, or nil before Start.
	Addr() net.Addr
}
