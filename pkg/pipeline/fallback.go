package pipeline

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/observability"
)

// Fallback returns the terminal error handler. It logs err, including the
// stack of a recovered panic, and answers with status 500 and the fixed
// api.Failure body. Nothing about err reaches the client. When the
// response can no longer carry data the failure is only logged.
func Fallback(logger *slog.Logger) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(err error, req *api.Request, res api.Response) {
		observability.PipelineFailuresTotal.WithLabelValues(string(req.Transport)).Inc()

		attrs := []slog.Attr{
			slog.String("request_id", req.ID),
			slog.String("transport", string(req.Transport)),
			slog.String("method", req.Method),
			slog.String("url", req.URL),
			slog.String("error", err.Error()),
		}
		var pe *PanicError
		if errors.As(err, &pe) {
			attrs = append(attrs, slog.String("stack", string(pe.Stack)))
		}
		logger.LogAttrs(req.Context(), slog.LevelError, "request failed", attrs...)

		if res.Finished() {
			return
		}
		if werr := res.Status(http.StatusInternalServerError).JSON(api.Failure()); werr != nil {
			logger.LogAttrs(req.Context(), slog.LevelWarn, "writing failure response",
				slog.String("request_id", req.ID),
				slog.String("error", werr.Error()),
			)
		}
	}
}
