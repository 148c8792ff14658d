// Package apitest provides an in-memory api.Response for tests.
package apitest

import (
	"net/http"
	"sync"

	"github.com/rhuss/weft/pkg/api"
)

// Sent is one recorded Send or JSON call.
type Sent struct {
	Status int
	Data   any
	JSON   bool
}

// Recorder is an api.Response that records every send. By default it
// behaves like a persistent response and accepts any number of sends; set
// OneShot to make the first send finish it, like an HTTP response.
type Recorder struct {
	OneShot bool

	mu       sync.Mutex
	status   int
	sent     []Sent
	finished bool
	header   http.Header
}

var (
	_ api.Response     = (*Recorder)(nil)
	_ api.HeaderWriter = (*Recorder)(nil)
)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{header: http.Header{}}
}

func (r *Recorder) Status(code int) api.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
	return r
}

func (r *Recorder) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Recorder) Send(data any) error { return r.record(data, false) }

func (r *Recorder) JSON(data any) error { return r.record(data, true) }

func (r *Recorder) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *Recorder) Header() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.header == nil {
		r.header = http.Header{}
	}
	return r.header
}

// Finish marks the response as unable to carry more data.
func (r *Recorder) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
}

// Sent returns a copy of the recorded sends.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) record(data any, asJSON bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return api.ErrResponseFinished
	}
	r.sent = append(r.sent, Sent{Status: r.status, Data: data, JSON: asJSON})
	if r.OneShot {
		r.finished = true
	}
	return nil
}
