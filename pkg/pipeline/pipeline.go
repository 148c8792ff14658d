package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/rhuss/weft/pkg/api"
	weftdebug "github.com/rhuss/weft/pkg/debug"
)

// AnyMethod registers a route for every method.
const AnyMethod = "*"

// ErrSealed is returned when the pipeline is modified after Seal.
var ErrSealed = errors.New("pipeline is sealed")

// Pipeline is the shared middleware stack and router.
type Pipeline struct {
	mu      sync.RWMutex
	layers  []Middleware
	routes  map[string]map[string]Handler // path -> method -> handler
	catch   ErrorHandler
	sealed  bool
	handler Handler // composed on Seal
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the default error handler.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		routes: make(map[string]map[string]Handler),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use appends middleware to the stack. Middleware added later runs closer
// to the router.
func (p *Pipeline) Use(mw ...Middleware) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return ErrSealed
	}
	p.layers = append(p.layers, mw...)
	return nil
}

// Handle registers h for method and path. Method matching is
// case-insensitive; AnyMethod matches every method. Registering the same
// method and path twice is an error.
func (p *Pipeline) Handle(method, path string, h Handler) error {
	if h == nil {
		return fmt.Errorf("pipeline: nil handler for %s %s", method, path)
	}
	method = strings.ToUpper(method)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return ErrSealed
	}
	byMethod, ok := p.routes[path]
	if !ok {
		byMethod = make(map[string]Handler)
		p.routes[path] = byMethod
	}
	if _, dup := byMethod[method]; dup {
		return fmt.Errorf("pipeline: route %s %s already registered", method, path)
	}
	byMethod[method] = h
	weftdebug.Log(weftdebug.Pipeline, "route registered", "method", method, "path", path)
	return nil
}

// HandleFunc registers a function as the handler for method and path.
func (p *Pipeline) HandleFunc(method, path string, f func(req *api.Request, res api.Response) error) error {
	return p.Handle(method, path, HandlerFunc(f))
}

// Catch sets the terminal error handler. Without one, Fallback with the
// pipeline's logger is used.
func (p *Pipeline) Catch(h ErrorHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return ErrSealed
	}
	p.catch = h
	return nil
}

// Seal freezes the middleware stack and routes. Calling Seal again is a no-op.
func (p *Pipeline) Seal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return
	}
	p.handler = p.compose()
	if p.catch == nil {
		p.catch = Fallback(p.logger)
	}
	p.sealed = true
}

// Sealed reports whether Seal has been called.
func (p *Pipeline) Sealed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sealed
}

// Routes returns the registered routes as "METHOD path" strings, sorted.
func (p *Pipeline) Routes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for path, byMethod := range p.routes {
		for method := range byMethod {
			out = append(out, method+" "+path)
		}
	}
	sort.Strings(out)
	return out
}

// Dispatch runs req and res through the middleware stack and router.
// Errors and panics are handed to the error handler, so Dispatch never
// fails and never panics.
func (p *Pipeline) Dispatch(req *api.Request, res api.Response) {
	if req.App == nil {
		req.App = p
	}

	h, catch := p.snapshot()
	err := serve(h, req, res)
	if err == nil {
		return
	}
	p.recoverCatch(catch, err, req, res)
}

func (p *Pipeline) snapshot() (Handler, ErrorHandler) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sealed {
		return p.handler, p.catch
	}
	catch := p.catch
	if catch == nil {
		catch = Fallback(p.logger)
	}
	return p.compose(), catch
}

// compose must be called with p.mu held.
func (p *Pipeline) compose() Handler {
	return Chain(p.layers...)(HandlerFunc(p.route))
}

func serve(h Handler, req *api.Request, res api.Response) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return h.Serve(req, res)
}

func (p *Pipeline) recoverCatch(catch ErrorHandler, err error, req *api.Request, res api.Response) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("error handler panicked",
				slog.Any("panic", v),
				slog.String("original_error", err.Error()),
				slog.String("request_id", req.ID),
			)
		}
	}()
	catch(err, req, res)
}

// route is the innermost handler. Unknown paths get 404, known paths with
// an unregistered method get 405. Unrouted channel lifecycle events are
// answered with nothing.
func (p *Pipeline) route(req *api.Request, res api.Response) error {
	p.mu.RLock()
	byMethod, ok := p.routes[req.URL]
	var h Handler
	if ok {
		h = byMethod[strings.ToUpper(req.Method)]
		if h == nil {
			h = byMethod[AnyMethod]
		}
	}
	p.mu.RUnlock()

	if h != nil {
		return h.Serve(req, res)
	}
	if req.Lifecycle() {
		// Applications opt in to connect and disconnect by routing them.
		return nil
	}
	if !ok {
		return res.Status(http.StatusNotFound).JSON(api.ErrorResponse{
			Error: api.NewNotFoundError(fmt.Sprintf("no route for %s", req.URL)),
		})
	}
	if hw, ok := res.(api.HeaderWriter); ok {
		hw.Header().Set("Allow", allowed(byMethod))
	}
	return res.Status(http.StatusMethodNotAllowed).JSON(api.ErrorResponse{
		Error: api.NewMethodNotAllowedError(fmt.Sprintf("method %s not allowed for %s", req.Method, req.URL)),
	})
}

func allowed(byMethod map[string]Handler) string {
	methods := make([]string, 0, len(byMethod))
	for m := range byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
