package api

import (
	"errors"
	"net/http"
)

// ErrResponseFinished is returned by Send and JSON when the response can no
// longer carry data: an HTTP response that was already sent, or a channel
// whose connection has closed.
var ErrResponseFinished = errors.New("response already finished")

// Response is the capability set pipeline code writes through. There is one
// implementation per transport: the HTTP-backed response ends the exchange
// on the first Send, while the channel-backed response emits one frame per
// Send over a connection that stays open.
type Response interface {
	// Status sets the status code and returns the same response so calls
	// can be chained. The code persists for later sends.
	Status(code int) Response

	// StatusCode returns the status set so far, or 0 if none was set.
	StatusCode() int

	// Send writes data using the transport's default encoding.
	Send(data any) error

	// JSON writes data encoded as JSON.
	JSON(data any) error

	// Finished reports whether the response can no longer carry data.
	Finished() bool
}

// HeaderWriter is implemented by responses that carry HTTP headers.
type HeaderWriter interface {
	Header() http.Header
}
