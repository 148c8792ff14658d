package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/auth"
	"github.com/rhuss/weft/pkg/config"
	"github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/hook"
	"github.com/rhuss/weft/pkg/observability"
	"github.com/rhuss/weft/pkg/pipeline"
	"github.com/rhuss/weft/pkg/transport"
	"github.com/rhuss/weft/pkg/transport/channel"
	transporthttp "github.com/rhuss/weft/pkg/transport/http"
)

// ErrInitialized is returned by a second call to Initialize.
var ErrInitialized = errors.New("web surface already initialized")

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// WithAuthenticator sets the authenticator used by every transport to
// identify callers.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Surface) { s.authn = a }
}

// WithRateLimiter sets the limiter applied to identified callers.
func WithRateLimiter(rl auth.RateLimiter) Option {
	return func(s *Surface) { s.limiter = rl }
}

// WithListener replaces the listener built from configuration for kind.
// Whether it is started is still decided by the kind's enabled flag. A
// replacement HTTP(S) listener is offered to the channel only if it is a
// transport.Carrier.
func WithListener(kind api.Kind, l transport.Listener) Option {
	return func(s *Surface) { s.overrides[kind] = l }
}

// Surface is the web-facing surface: one pipeline shared by the HTTP,
// HTTPS, and channel transports. It is constructed explicitly and owned
// by the caller.
type Surface struct {
	cfg       config.Config
	bus       *hook.Bus
	logger    *slog.Logger
	authn     auth.Authenticator
	limiter   auth.RateLimiter
	pipeline  *pipeline.Pipeline
	overrides map[api.Kind]transport.Listener
	listeners map[api.Kind]transport.Listener

	mu          sync.Mutex
	initialized bool
}

// New creates a surface for cfg. Hooks fire on bus; a nil bus gets a
// private one. Nothing is started until Initialize.
func New(cfg config.Config, bus *hook.Bus, opts ...Option) *Surface {
	if bus == nil {
		bus = hook.New()
	}
	s := &Surface{
		cfg:       cfg,
		bus:       bus,
		logger:    slog.Default(),
		overrides: make(map[api.Kind]transport.Listener),
		listeners: make(map[api.Kind]transport.Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline = pipeline.New(pipeline.WithLogger(s.logger))
	s.buildListeners()
	return s
}

// Config returns the configuration the surface was built with.
func (s *Surface) Config() config.Config { return s.cfg }

// Bus returns the hook bus.
func (s *Surface) Bus() *hook.Bus { return s.bus }

// Pipeline returns the shared pipeline.
func (s *Surface) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Listener returns the listener for kind, or nil.
func (s *Surface) Listener(kind api.Kind) transport.Listener { return s.listeners[kind] }

func (s *Surface) buildListeners() {
	metricsPath := ""
	if s.cfg.Observability.Metrics.Enabled {
		metricsPath = s.cfg.Observability.Metrics.Path
	}
	httpOpts := []transporthttp.Option{
		transporthttp.WithAuthenticator(s.authn),
		transporthttp.WithRateLimiter(s.limiter),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithLogger(s.logger),
	}

	for _, kind := range []api.Kind{api.KindHTTP, api.KindHTTPS} {
		if l, ok := s.overrides[kind]; ok {
			s.listeners[kind] = l
			continue
		}
		cfg := transporthttp.DefaultConfig(kind)
		cfg.Host = s.cfg.Server.Host
		cfg.ReadTimeout = s.cfg.Server.ReadTimeout
		cfg.WriteTimeout = s.cfg.Server.WriteTimeout
		cfg.MaxBodySize = s.cfg.Server.MaxBodySize
		if kind == api.KindHTTP {
			cfg.Port = s.cfg.HTTP.Port
		} else {
			cfg.Port = s.cfg.HTTPS.Port
			cfg.SSLKey = s.cfg.HTTPS.SSLKey
			cfg.SSLCert = s.cfg.HTTPS.SSLCert
		}
		s.listeners[kind] = transporthttp.New(cfg, s.pipeline, httpOpts...)
	}

	if l, ok := s.overrides[api.KindChannel]; ok {
		s.listeners[api.KindChannel] = l
		return
	}

	// The channel prefers HTTPS. Only enabled listeners can carry it.
	var carriers []transport.Carrier
	if s.cfg.HTTPS.Enabled {
		if c, ok := s.listeners[api.KindHTTPS].(transport.Carrier); ok {
			carriers = append(carriers, c)
		}
	}
	if s.cfg.HTTP.Enabled {
		if c, ok := s.listeners[api.KindHTTP].(transport.Carrier); ok {
			carriers = append(carriers, c)
		}
	}
	s.listeners[api.KindChannel] = channel.New(channel.Config{
		Path:            s.cfg.Socket.Path,
		Origins:         s.cfg.Socket.Origins,
		MaxMessageBytes: s.cfg.Socket.MaxMessageBytes,
	}, s.pipeline, carriers,
		channel.WithAuthenticator(s.authn),
		channel.WithRateLimiter(s.limiter),
		channel.WithLogger(s.logger),
		channel.WithPreInit(func(ctx context.Context, carrier transport.Carrier) error {
			return s.bus.Fire(ctx, HookSocketPreInit, &SocketEvent{Surface: s, Carrier: carrier})
		}),
	)
}

type phase struct {
	name string
	run  func(ctx context.Context) error
}

// Initialize brings the surface up. Phases run strictly one after another:
//
//  1. fire web.pre-init
//  2. pipeline setup: built-in middleware, the web.routing.init
//     middleware, web.routing (StageSetup), then the terminal error handler
//  3. fire web.routing (StageSurface) and seal the pipeline
//  4. start the enabled transports: HTTP, then HTTPS, then the channel
//  5. fire web.post-init
//
// The first failing phase ends initialization and its error is returned
// unchanged; later phases never run. ctx is checked between phases.
// Initialize can only be called once.
func (s *Surface) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return ErrInitialized
	}
	s.initialized = true
	s.mu.Unlock()

	phases := []phase{
		{"pre-init", func(ctx context.Context) error {
			return s.bus.Fire(ctx, HookPreInit, &SurfaceEvent{Surface: s})
		}},
		{"pipeline", s.setupPipeline},
		{"routing", func(ctx context.Context) error {
			if err := s.bus.Fire(ctx, HookRouting, &RoutingEvent{Surface: s, Pipeline: s.pipeline, Stage: StageSurface}); err != nil {
				return err
			}
			s.pipeline.Seal()
			return nil
		}},
	}
	enabled := map[api.Kind]bool{
		api.KindHTTP:    s.cfg.HTTP.Enabled,
		api.KindHTTPS:   s.cfg.HTTPS.Enabled,
		api.KindChannel: s.cfg.Socket.Enabled,
	}
	for _, kind := range []api.Kind{api.KindHTTP, api.KindHTTPS, api.KindChannel} {
		if !enabled[kind] {
			continue
		}
		l := s.listeners[kind]
		phases = append(phases, phase{"start-" + string(kind), l.Start})
	}
	phases = append(phases, phase{"post-init", func(ctx context.Context) error {
		return s.bus.Fire(ctx, HookPostInit, &SurfaceEvent{Surface: s})
	}})

	start := time.Now()
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("initialization cancelled", slog.String("phase", p.name))
			return err
		}
		if err := s.runPhase(ctx, p); err != nil {
			return err
		}
	}
	s.logger.Info("web surface ready",
		slog.Duration("duration", time.Since(start)),
		slog.Int("routes", len(s.pipeline.Routes())),
	)
	return nil
}

func (s *Surface) runPhase(ctx context.Context, p phase) error {
	debug.Log(debug.Pipeline, "init phase starting", "phase", p.name)
	start := time.Now()
	err := p.run(ctx)
	elapsed := time.Since(start)
	observability.InitPhaseDuration.WithLabelValues(p.name).Observe(elapsed.Seconds())
	if err != nil {
		s.logger.Error("init phase failed",
			slog.String("phase", p.name),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Info("init phase complete",
		slog.String("phase", p.name),
		slog.Duration("duration", elapsed),
	)
	return nil
}

func (s *Surface) setupPipeline(ctx context.Context) error {
	err := s.pipeline.Use(
		pipeline.RequestID(),
		pipeline.Logging(s.logger),
		pipeline.Metrics(),
		pipeline.BodyDecoder(),
		pipeline.MethodOverride(),
		s.routingInit(),
	)
	if err != nil {
		return err
	}
	if err := s.bus.Fire(ctx, HookRouting, &RoutingEvent{Surface: s, Pipeline: s.pipeline, Stage: StageSetup}); err != nil {
		return err
	}
	return s.pipeline.Catch(pipeline.Fallback(s.logger))
}

// routingInit fires web.routing.init for every request. A listener error
// fails the request.
func (s *Surface) routingInit() pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return pipeline.HandlerFunc(func(req *api.Request, res api.Response) error {
			if err := s.bus.Fire(req.Context(), HookRoutingInit, &RequestEvent{Surface: s, Request: req, Response: res}); err != nil {
				return err
			}
			return next.Serve(req, res)
		})
	}
}

// Shutdown closes channel connections, then stops the HTTP and HTTPS
// listeners concurrently, waiting for in-flight requests until ctx ends.
// Listeners that never started shut down trivially.
func (s *Surface) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web surface")

	var errs []error
	if l := s.listeners[api.KindChannel]; l != nil {
		if err := l.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	var g errgroup.Group
	for _, kind := range []api.Kind{api.KindHTTP, api.KindHTTPS} {
		l := s.listeners[kind]
		if l == nil {
			continue
		}
		g.Go(func() error { return l.Shutdown(ctx) })
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
