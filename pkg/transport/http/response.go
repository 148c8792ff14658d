package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/rhuss/weft/pkg/api"
)

// Response is the HTTP-backed response variant. The first Send or JSON
// writes the status, headers, and body and ends the exchange; later sends
// return api.ErrResponseFinished.
type Response struct {
	w      http.ResponseWriter
	method string

	mu       sync.Mutex
	status   int
	finished bool
}

var (
	_ api.Response     = (*Response)(nil)
	_ api.HeaderWriter = (*Response)(nil)
)

// NewResponse wraps w. method is the request method; HEAD responses carry
// headers only.
func NewResponse(w http.ResponseWriter, method string) *Response {
	return &Response{w: w, method: method}
}

// Status sets the status code used by the next send.
func (r *Response) Status(code int) api.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
	return r
}

// StatusCode returns the status set so far, or 0.
func (r *Response) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Header returns the response headers. Changes after the first send have
// no effect.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// Send writes data and ends the response. Strings are sent as HTML, byte
// slices as an octet stream, nil as an empty body, and anything else as
// JSON. An explicit Content-Type header wins.
func (r *Response) Send(data any) error {
	switch v := data.(type) {
	case nil:
		return r.write("", nil)
	case string:
		return r.write("text/html; charset=utf-8", []byte(v))
	case []byte:
		return r.write("application/octet-stream", v)
	default:
		return r.JSON(v)
	}
}

// JSON writes data encoded as JSON and ends the response.
func (r *Response) JSON(data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return r.write("application/json", body)
}

// Finished reports whether the response has been sent.
func (r *Response) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// end finishes a response nobody sent: the status set so far, or 204.
func (r *Response) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	status := r.status
	if status == 0 {
		status = http.StatusNoContent
	}
	r.w.WriteHeader(status)
}

func (r *Response) write(contentType string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return api.ErrResponseFinished
	}
	r.finished = true

	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	if !bodyAllowed(status) {
		r.w.WriteHeader(status)
		return nil
	}

	h := r.w.Header()
	if contentType != "" && h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	r.w.WriteHeader(status)

	if r.method == http.MethodHead || len(body) == 0 {
		return nil
	}
	if _, err := r.w.Write(body); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
