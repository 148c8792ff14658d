package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/transport"
)

// bridge turns native HTTP requests into api.Request / Response pairs and
// dispatches them into the pipeline. The body is read up front and decoded
// later by the pipeline's body decoder.
type bridge struct {
	kind        api.Kind
	app         api.Dispatcher
	maxBodySize int64
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r, b.maxBodySize)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", b.maxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "reading request body: "+err.Error()))
		return
	}

	req := NewRequest(r, b.kind)
	req.RawBody = raw

	res := NewResponse(w, r.Method)
	b.app.Dispatch(req, res)

	if !res.Finished() {
		debug.Log(debug.Transport, "handler sent nothing, ending response",
			"method", req.Method,
			"url", req.URL,
			"status", res.StatusCode(),
		)
		res.end()
	}
}

// NewRequest builds the pipeline request for a native HTTP request. The
// body is not read.
func NewRequest(r *http.Request, kind api.Kind) *api.Request {
	req := api.NewRequest(r.Context(), r.Method, r.URL.Path, kind)
	req.Query = r.URL.Query()
	req.Header = r.Header
	req.RemoteAddr = r.RemoteAddr
	req.ID = r.Header.Get("X-Request-ID")
	return req
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()
	return io.ReadAll(body)
}
