package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/observability"
	"github.com/rhuss/weft/pkg/transport"
)

// Default ports and certificate paths.
const (
	DefaultHTTPPort  = 8080
	DefaultHTTPSPort = 443
	DefaultSSLKey    = "./certs/client.key"
	DefaultSSLCert   = "./certs/client.crt"

	// EnvPort is the platform-provided port consulted when no HTTP port is
	// configured.
	EnvPort = "PORT"
)

// Config holds configuration for one HTTP or HTTPS listener.
type Config struct {
	// Kind is api.KindHTTP or api.KindHTTPS.
	Kind api.Kind

	// Addr is an explicit host:port. When set, Host and Port are ignored.
	Addr string
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodySize  int64

	// SSLKey and SSLCert are PEM file paths, read at Start (HTTPS only).
	SSLKey  string
	SSLCert string
}

// DefaultConfig returns the default configuration for kind.
func DefaultConfig(kind api.Kind) Config {
	cfg := Config{
		Kind:         kind,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxBodySize:  10 << 20, // 10 MB
	}
	if kind == api.KindHTTPS {
		cfg.SSLKey = DefaultSSLKey
		cfg.SSLCert = DefaultSSLCert
	}
	return cfg
}

// Option configures a Listener.
type Option func(*Listener)

// WithAuthenticator sets the authenticator used to identify callers.
// Identification never rejects a request.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(l *Listener) { l.authn = a }
}

// WithRateLimiter sets the limiter applied to identified callers.
func WithRateLimiter(rl auth.RateLimiter) Option {
	return func(l *Listener) { l.limiter = rl }
}

// WithMetricsPath mounts the Prometheus handler at path. Empty disables it.
func WithMetricsPath(path string) Option {
	return func(l *Listener) { l.metricsPath = path }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) { l.logger = logger }
}

// Listener is an HTTP or HTTPS transport. It forwards every request to the
// shared pipeline and doubles as a carrier for the channel transport.
type Listener struct {
	cfg         Config
	app         api.Dispatcher
	authn       auth.Authenticator
	limiter     auth.RateLimiter
	metricsPath string
	logger      *slog.Logger

	// listen binds the socket. Replaced in tests.
	listen func(network, addr string) (net.Listener, error)

	mux *http.ServeMux

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	closed bool
}

var _ transport.Carrier = (*Listener)(nil)

// New creates a listener that dispatches into app. Nothing is bound until
// Start.
func New(cfg Config, app api.Dispatcher, opts ...Option) *Listener {
	if cfg.Kind == "" {
		cfg.Kind = api.KindHTTP
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig(cfg.Kind).MaxBodySize
	}
	l := &Listener{
		cfg:    cfg,
		app:    app,
		logger: slog.Default(),
		listen: net.Listen,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.mux.Handle("/", &bridge{
		kind:        cfg.Kind,
		app:         app,
		maxBodySize: cfg.MaxBodySize,
	})
	if l.metricsPath != "" {
		l.mux.Handle(l.metricsPath, observability.Handler())
	}
	return l
}

// Kind returns api.KindHTTP or api.KindHTTPS.
func (l *Listener) Kind() api.Kind { return l.cfg.Kind }

// Start binds the listening socket and begins serving in the background.
// Bind and certificate failures are returned as *api.TransportStartError.
// Calling Start on a started listener is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		debug.Log(debug.Transport, "listener already started", "kind", l.cfg.Kind)
		return nil
	}

	addr := l.address()
	if l.closed {
		return &api.TransportStartError{Kind: l.cfg.Kind, Addr: addr, Err: http.ErrServerClosed}
	}

	var tlsConfig *tls.Config
	if l.cfg.Kind == api.KindHTTPS {
		cfg, err := l.tlsConfig()
		if err != nil {
			return &api.TransportStartError{Kind: l.cfg.Kind, Addr: addr, Err: err}
		}
		tlsConfig = cfg
	}

	ln, err := l.listen("tcp", addr)
	if err != nil {
		return &api.TransportStartError{Kind: l.cfg.Kind, Addr: addr, Err: err}
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	// Requests outlive the caller's deadline; only its values carry over.
	base := context.WithoutCancel(ctx)
	srv := &http.Server{
		Handler:      l.Handler(),
		ReadTimeout:  l.cfg.ReadTimeout,
		WriteTimeout: l.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
		ErrorLog:     slog.NewLogLogger(l.logger.Handler(), slog.LevelWarn),
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("listener stopped", "kind", l.cfg.Kind, "error", err)
		}
	}()

	l.server = srv
	l.ln = ln
	l.logger.Info("transport started",
		slog.String("kind", string(l.cfg.Kind)),
		slog.String("addr", ln.Addr().String()),
	)
	return nil
}

// Started reports whether Start has succeeded.
func (l *Listener) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.server != nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Mount registers h on the listener's mux. Mount may be called before or
// after Start.
func (l *Listener) Mount(pattern string, h http.Handler) {
	l.mux.Handle(pattern, h)
	debug.Log(debug.Transport, "handler mounted", "kind", l.cfg.Kind, "pattern", pattern)
}

// Handler returns the complete handler stack: tracing, listener metrics,
// identification, then the mux.
func (l *Listener) Handler() http.Handler {
	bypass := append([]string(nil), auth.DefaultBypassEndpoints...)
	if l.metricsPath != "" {
		bypass = append(bypass, l.metricsPath)
	}

	var h http.Handler = l.mux
	h = auth.Middleware(l.authn, l.limiter, bypass)(h)
	h = observability.MetricsMiddleware(string(l.cfg.Kind))(h)
	return otelhttp.NewHandler(h, "weft."+string(l.cfg.Kind))
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx is done. A listener that was never started shuts down
// trivially. A shut down listener cannot be started again.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.closed = true
	l.mu.Unlock()

	if srv == nil {
		return nil
	}
	l.logger.Info("shutting down listener", slog.String("kind", string(l.cfg.Kind)))
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down %s listener: %w", l.cfg.Kind, err)
	}
	return nil
}

// address resolves the bind address. HTTP falls back to $PORT and then
// DefaultHTTPPort; HTTPS falls back to DefaultHTTPSPort.
func (l *Listener) address() string {
	if l.cfg.Addr != "" {
		return l.cfg.Addr
	}
	port := l.cfg.Port
	if port == 0 {
		switch l.cfg.Kind {
		case api.KindHTTPS:
			port = DefaultHTTPSPort
		default:
			port = DefaultHTTPPort
			if v, ok := os.LookupEnv(EnvPort); ok {
				if p, err := strconv.Atoi(v); err == nil && p >= 0 {
					port = p
				} else {
					l.logger.Warn("ignoring malformed port", "env", EnvPort, "value", v)
				}
			}
		}
	}
	return net.JoinHostPort(l.cfg.Host, strconv.Itoa(port))
}

// tlsConfig loads the key pair and asks clients for a certificate without
// requiring or verifying one.
func (l *Listener) tlsConfig() (*tls.Config, error) {
	certPath, keyPath := l.cfg.SSLCert, l.cfg.SSLKey
	if certPath == "" {
		certPath = DefaultSSLCert
	}
	if keyPath == "" {
		keyPath = DefaultSSLKey
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading key pair: %w", err)
	}
	debug.Log(debug.Transport, "loaded key pair", "cert", certPath, "key", keyPath)
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequestClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
