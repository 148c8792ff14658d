package pipeline

import (
	"fmt"

	"github.com/rhuss/weft/pkg/api"
)

// Handler processes one request. Returning an error hands the request to
// the pipeline's error handler.
type Handler interface {
	Serve(req *api.Request, res api.Response) error
}

// HandlerFunc is an adapter that allows using an ordinary function as a Handler.
type HandlerFunc func(req *api.Request, res api.Response) error

// Serve calls f(req, res).
func (f HandlerFunc) Serve(req *api.Request, res api.Response) error {
	return f(req, res)
}

// ErrorHandler converts an error that escaped the handler chain into a
// response. It must not panic.
type ErrorHandler func(err error, req *api.Request, res api.Response)

// Middleware wraps a Handler to add cross-cutting behavior.
// The first middleware in a chain is the outermost wrapper.
type Middleware func(Handler) Handler

// Chain composes multiple middleware into a single middleware.
// Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// PanicError carries a panic recovered while a request was in the pipeline.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
