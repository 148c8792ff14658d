package channel

import (
	"sync"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/debug"
)

// Response is the channel-backed response variant. Every Send or JSON call
// emits one frame over the still-open connection; the connection is never
// closed by a send. Object payloads without a status field are tagged with
// the status set on the response.
//
// Responses to connect and disconnect drop sends once the connection has
// closed instead of failing: disconnect always runs on a closed socket, and
// a client may leave before connect handling is done.
type Response struct {
	conn      *Conn
	id        string
	lifecycle bool

	mu     sync.Mutex
	status int
}

var _ api.Response = (*Response)(nil)

// Status sets the status code for this and every later send.
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

// Send emits data as one frame. Frames are always JSON encoded, so Send
// and JSON behave the same.
func (r *Response) Send(data any) error {
	return r.emit(EventData, data)
}

// JSON emits data as one frame.
func (r *Response) JSON(data any) error {
	return r.emit(EventData, data)
}

// Finished reports whether the connection has closed.
func (r *Response) Finished() bool {
	return r.conn.Closed()
}

func (r *Response) emit(event string, data any) error {
	err := r.conn.write(outFrame{
		Event: event,
		Data:  tagStatus(data, r.StatusCode()),
		ID:    r.id,
	})
	if err != nil && r.lifecycle && r.conn.Closed() {
		debug.Log(debug.Channel, "send after close dropped", "conn_id", r.conn.id)
		return nil
	}
	return err
}
