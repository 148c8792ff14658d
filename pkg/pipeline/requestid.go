package pipeline

import (
	"context"

	"github.com/rhuss/weft/pkg/api"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestID returns middleware that makes sure every request has an ID.
// An ID already set by the transport (X-Request-ID or a frame id) is kept;
// otherwise a new one is generated. The ID is also stored in the request
// context and, for HTTP responses, echoed in the X-Request-ID header.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *api.Request, res api.Response) error {
			if req.ID == "" {
				req.ID = api.NewRequestID()
			}
			req.SetValue(requestIDKey{}, req.ID)
			if hw, ok := res.(api.HeaderWriter); ok {
				hw.Header().Set("X-Request-ID", req.ID)
			}
			return next.Serve(req, res)
		})
	}
}
