package pipeline

import (
	"log/slog"
	"time"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/observability"
)

// Logging returns middleware that emits one structured log entry per
// request with transport, method, URL, status, and duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(req *api.Request, res api.Response) error {
			start := time.Now()
			err := next.Serve(req, res)

			attrs := []slog.Attr{
				slog.String("request_id", req.ID),
				slog.String("transport", string(req.Transport)),
				slog.String("method", req.Method),
				slog.String("url", req.URL),
				slog.Int("status", res.StatusCode()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(req.Context(), slog.LevelWarn, "request errored", attrs...)
			} else {
				logger.LogAttrs(req.Context(), slog.LevelInfo, "request completed", attrs...)
			}
			return err
		})
	}
}

// Metrics returns middleware that records weft_requests_total and
// weft_request_duration_seconds. A request that errored counts as 500.
func Metrics() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(req *api.Request, res api.Response) error {
			start := time.Now()
			err := next.Serve(req, res)

			status := res.StatusCode()
			if err != nil {
				status = 500
			}
			observability.ObserveRequest(string(req.Transport), req.Method, status, time.Since(start))
			return err
		})
	}
}
