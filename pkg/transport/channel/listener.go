package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/observability"
	"github.com/rhuss/weft/pkg/transport"
)

var (
	// ErrNoCarrier is returned by Start when no HTTP(S) listener has started.
	ErrNoCarrier = errors.New("no started http or https listener to attach to")

	// ErrStartInProgress is returned by Start when called again before an
	// earlier Start finished, typically from inside the pre-init function.
	ErrStartInProgress = errors.New("channel start already in progress")
)

// Config holds channel settings.
type Config struct {
	// Path is the upgrade endpoint on the carrier. Default: /socket.
	Path string

	// Origins lists allowed Origin hosts. Empty allows same-host only;
	// "*" allows any origin.
	Origins []string

	// MaxMessageBytes caps inbound frames. Default: 1 MiB.
	MaxMessageBytes int64

	// MaxInFlight caps concurrently handled frames per connection.
	// Default: 16.
	MaxInFlight int

	PingInterval time.Duration // default: 30s
	PongWait     time.Duration // default: 60s
	WriteWait    time.Duration // default: 10s
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "/socket"
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 16
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
}

// PreInitFunc runs during Start after a carrier has been chosen and before
// the upgrade handler is mounted. An error aborts Start and is returned
// unchanged.
type PreInitFunc func(ctx context.Context, carrier transport.Carrier) error

// Option configures a Listener.
type Option func(*Listener)

// WithAuthenticator sets the authenticator run once per handshake when the
// carrier has not already identified the caller.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(l *Listener) { l.authn = a }
}

// WithRateLimiter sets the limiter applied to every inbound frame from an
// identified caller.
func WithRateLimiter(rl auth.RateLimiter) Option {
	return func(l *Listener) { l.limiter = rl }
}

// WithPreInit sets the pre-init callback.
func WithPreInit(fn PreInitFunc) Option {
	return func(l *Listener) { l.preInit = fn }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) { l.logger = logger }
}

// Listener is the bidirectional channel transport. It rides on a started
// HTTP(S) carrier, upgrades connections at Config.Path, and turns every
// channel event into a request/response pair for the shared pipeline.
type Listener struct {
	cfg      Config
	app      api.Dispatcher
	carriers []transport.Carrier
	authn    auth.Authenticator
	limiter  auth.RateLimiter
	preInit  PreInitFunc
	logger   *slog.Logger

	upgrader websocket.Upgrader
	registry *transport.Registry

	mu       sync.Mutex
	carrier  transport.Carrier
	starting bool
	closing  bool
	active   sync.WaitGroup
}

var _ transport.Listener = (*Listener)(nil)

// New creates a channel listener. carriers are tried in order; the first
// one that has started is used.
func New(cfg Config, app api.Dispatcher, carriers []transport.Carrier, opts ...Option) *Listener {
	cfg.applyDefaults()
	l := &Listener{
		cfg:      cfg,
		app:      app,
		carriers: carriers,
		logger:   slog.Default(),
		registry: transport.NewRegistry(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.upgrader = websocket.Upgrader{
		CheckOrigin: l.checkOrigin,
	}
	return l
}

// Kind returns api.KindChannel.
func (l *Listener) Kind() api.Kind { return api.KindChannel }

// Start attaches the channel to the first started carrier. It fails with
// ErrNoCarrier, wrapped in *api.TransportStartError, when none has
// started. Calling Start on a started listener is a no-op; calling it while
// another Start is still in its pre-init step returns ErrStartInProgress.
//
// The pre-init function runs without the listener lock held, so it may
// call Started, Carrier, or Connections.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.carrier != nil {
		l.mu.Unlock()
		debug.Log(debug.Channel, "listener already started")
		return nil
	}
	if l.starting {
		l.mu.Unlock()
		return ErrStartInProgress
	}
	carrier := l.pickCarrier()
	if carrier == nil {
		l.mu.Unlock()
		return &api.TransportStartError{Kind: api.KindChannel, Err: ErrNoCarrier}
	}
	l.starting = true
	l.mu.Unlock()

	if l.preInit != nil {
		if err := l.preInit(ctx, carrier); err != nil {
			l.mu.Lock()
			l.starting = false
			l.mu.Unlock()
			return err
		}
	}

	carrier.Mount(l.cfg.Path, l)

	l.mu.Lock()
	l.carrier = carrier
	l.starting = false
	l.mu.Unlock()

	addr := ""
	if a := carrier.Addr(); a != nil {
		addr = a.String()
	}
	l.logger.Info("transport started",
		slog.String("kind", string(api.KindChannel)),
		slog.String("carrier", string(carrier.Kind())),
		slog.String("addr", addr),
		slog.String("path", l.cfg.Path),
	)
	return nil
}

// Started reports whether Start has succeeded.
func (l *Listener) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.carrier != nil
}

// Carrier returns the carrier the channel is attached to, or nil.
func (l *Listener) Carrier() transport.Carrier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.carrier
}

// Connections returns the number of open connections.
func (l *Listener) Connections() int {
	return l.registry.Len()
}

// Shutdown closes every connection with a going-away close frame and
// waits for their disconnect handling to finish, or for ctx to end. New
// upgrades are refused afterwards.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()

	n := l.registry.CancelAll()
	if n > 0 {
		l.logger.Info("closing channel connections", slog.Int("count", n))
	}

	done := make(chan struct{})
	go func() {
		l.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pickCarrier must be called with l.mu held.
func (l *Listener) pickCarrier() transport.Carrier {
	for _, c := range l.carriers {
		if c != nil && c.Started() {
			return c
		}
	}
	return nil
}

func (l *Listener) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if len(l.cfg.Origins) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range l.cfg.Origins {
		if allowed == "*" || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	l.active.Add(1)
	l.mu.Unlock()
	defer l.active.Done()

	identity := auth.FromContext(r.Context())
	if identity == nil {
		identity = auth.Identify(r.Context(), l.authn, r)
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the client.
		debug.Log(debug.Channel, "upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &Conn{
		id:         uuid.NewString(),
		ws:         ws,
		identity:   identity,
		header:     r.Header.Clone(),
		remoteAddr: r.RemoteAddr,
		writeWait:  l.cfg.WriteWait,
	}
	if identity != nil {
		ctx = auth.WithIdentity(ctx, identity)
	}
	ctx = context.WithValue(ctx, connKey{}, c)
	c.ctx = ctx

	if !l.registry.Register(c.id, cancel) {
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer l.registry.Remove(c.id)

	observability.ChannelConnections.Inc()
	defer observability.ChannelConnections.Dec()

	l.logger.Info("channel connected",
		slog.String("conn_id", c.id),
		slog.String("remote_addr", c.remoteAddr),
		slog.Bool("authenticated", identity.Authenticated()),
	)

	l.serve(ctx, c)
	c.close(websocket.CloseNormalClosure, "")

	// Disconnect handlers run after the socket is gone, so they get a
	// context that outlives the connection. Anything they send is dropped.
	l.dispatch(context.WithoutCancel(ctx), c, api.EventDisconnect, nil, "")
	l.logger.Info("channel disconnected", slog.String("conn_id", c.id))
}

// serve dispatches connect, then reads frames until the connection ends.
// It returns once every in-flight frame has been handled.
func (l *Listener) serve(ctx context.Context, c *Conn) {
	stopped := make(chan struct{})
	defer close(stopped)

	// Close the socket when the connection is cancelled (shutdown) and
	// keep it alive with pings otherwise.
	go func() {
		ticker := time.NewTicker(l.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.close(websocket.CloseGoingAway, "server shutting down")
				return
			case <-stopped:
				c.close(websocket.CloseNormalClosure, "")
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					debug.Log(debug.Channel, "ping failed", "conn_id", c.id, "error", err)
					c.close(websocket.CloseGoingAway, "ping failed")
					return
				}
			}
		}
	}()

	l.dispatch(ctx, c, api.EventConnect, nil, "")

	c.ws.SetReadLimit(l.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	})

	var g errgroup.Group
	g.SetLimit(l.cfg.MaxInFlight)
	defer func() { _ = g.Wait() }()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				l.logger.Warn("channel read failed", slog.String("conn_id", c.id), slog.String("error", err.Error()))
			} else {
				debug.Log(debug.Channel, "read loop ended", "conn_id", c.id, "error", err)
			}
			return
		}
		observability.ChannelFramesTotal.WithLabelValues("in").Inc()
		debug.Frame(c.id, "in", data)
		_ = c.ws.SetReadDeadline(time.Now().Add(l.cfg.PongWait))

		frame, err := DecodeFrame(data)
		if err != nil {
			l.reject(c, frame.ID, api.NewInvalidRequestError("event", err.Error()), http.StatusBadRequest)
			continue
		}
		body, err := frame.Payload()
		if err != nil {
			l.reject(c, frame.ID, api.NewInvalidRequestError("data", err.Error()), http.StatusBadRequest)
			continue
		}
		if err := auth.Limit(ctx, l.limiter, c.identity, auth.ScopeFrame); err != nil {
			l.reject(c, frame.ID, api.NewTooManyRequestsError("rate limit exceeded"), http.StatusTooManyRequests)
			continue
		}

		debug.Log(debug.Channel, "frame received", "conn_id", c.id, "event", frame.Event, "id", frame.ID)
		g.Go(func() error {
			l.dispatch(ctx, c, frame.Event, body, frame.ID)
			return nil
		})
	}
}

// dispatch runs one synthesized pair through the pipeline.
func (l *Listener) dispatch(ctx context.Context, c *Conn, event string, body any, id string) {
	req, res := c.pair(ctx, event, body, id)
	l.app.Dispatch(req, res)
}

// reject answers a frame that never reaches the pipeline.
func (l *Listener) reject(c *Conn, id string, apiErr *api.APIError, status int) {
	debug.Log(debug.Channel, "frame rejected", "conn_id", c.id, "id", id, "status", status, "error", apiErr.Message)
	err := c.write(outFrame{
		Event: EventError,
		Data:  tagStatus(api.ErrorResponse{Error: apiErr}, status),
		ID:    id,
	})
	if err != nil {
		debug.Log(debug.Channel, "writing rejection failed", "conn_id", c.id, "error", err)
	}
}
