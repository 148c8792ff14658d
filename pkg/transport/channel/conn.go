package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/observability"
)

type connKey struct{}

// FromContext returns the connection a channel request arrived on, or nil
// for requests from other transports.
func FromContext(ctx context.Context) *Conn {
	c, _ := ctx.Value(connKey{}).(*Conn)
	return c
}

// Conn is one open channel connection. It holds the state shared by every
// request synthesized from it: the connection ID, the identity resolved at
// the handshake, and the handshake headers. Requests only read it.
type Conn struct {
	id         string
	ws         *websocket.Conn
	identity   *auth.Identity
	header     http.Header
	remoteAddr string
	writeWait  time.Duration

	ctx context.Context

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// ID returns the connection ID.
func (c *Conn) ID() string { return c.id }

// Identity returns the identity resolved at the handshake, or nil.
func (c *Conn) Identity() *auth.Identity { return c.identity }

// RemoteAddr returns the client address of the handshake request.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Context returns the connection context. It is cancelled when the
// connection ends.
func (c *Conn) Context() context.Context { return c.ctx }

// Closed reports whether the connection can no longer carry frames.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Emit pushes a frame with an arbitrary event name to the client, outside
// of any request.
func (c *Conn) Emit(event string, data any) error {
	return c.write(outFrame{Event: event, Data: data})
}

// pair builds a fresh request/response pair for one event.
func (c *Conn) pair(ctx context.Context, event string, body any, id string) (*api.Request, *Response) {
	req := api.NewRequest(ctx, api.MethodSocket, event, api.KindChannel)
	req.Body = body
	req.Header = c.header.Clone()
	req.RemoteAddr = c.remoteAddr
	req.ID = id
	return req, &Response{conn: c, id: id, lifecycle: req.Lifecycle()}
}

func (c *Conn) write(f outFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return api.ErrResponseFinished
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.ws.WriteJSON(f); err != nil {
		c.closed.Store(true)
		return fmt.Errorf("writing frame: %w", err)
	}
	observability.ChannelFramesTotal.WithLabelValues("out").Inc()
	return nil
}

func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// close sends a close frame and releases the socket. Safe to call more
// than once and concurrently with writes.
func (c *Conn) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(code, text)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		_ = c.ws.Close()
	})
}
