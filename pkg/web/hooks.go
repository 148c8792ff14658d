package web

import (
	"context"
	"fmt"

	"github.com/rhuss/weft/pkg/api"
	"github.com/rhuss/weft/pkg/hook"
	"github.com/rhuss/weft/pkg/pipeline"
	"github.com/rhuss/weft/pkg/transport"
)

// Hook names, in the order they first fire during Initialize.
const (
	HookPreInit       = "web.pre-init"
	HookRoutingInit   = "web.routing.init"
	HookRouting       = "web.routing"
	HookSocketPreInit = "web.socket.pre-init"
	HookPostInit      = "web.post-init"
)

// RoutingStage tells web.routing listeners which firing they are in.
type RoutingStage string

const (
	// StageSetup fires inside pipeline setup, after the built-in middleware
	// and before the terminal error handler is attached. Application routes
	// are registered here.
	StageSetup RoutingStage = "setup"

	// StageSurface fires once setup is complete, right before the pipeline
	// is sealed. Listeners see the finished route table.
	StageSurface RoutingStage = "surface"
)

// SurfaceEvent is the payload of web.pre-init and web.post-init.
type SurfaceEvent struct {
	Surface *Surface
}

// RoutingEvent is the payload of web.routing.
type RoutingEvent struct {
	Surface  *Surface
	Pipeline *pipeline.Pipeline
	Stage    RoutingStage
}

// RequestEvent is the payload of web.routing.init, fired for every request
// before routing. Listeners may attach values with Request.SetValue.
type RequestEvent struct {
	Surface  *Surface
	Request  *api.Request
	Response api.Response
}

// SocketEvent is the payload of web.socket.pre-init. Carrier is the
// listener the channel is about to attach to.
type SocketEvent struct {
	Surface *Surface
	Carrier transport.Carrier
}

// OnPreInit registers fn on web.pre-init.
func OnPreInit(bus *hook.Bus, fn func(context.Context, *SurfaceEvent) error) {
	on(bus, HookPreInit, fn)
}

// OnRoutingInit registers fn on web.routing.init.
func OnRoutingInit(bus *hook.Bus, fn func(context.Context, *RequestEvent) error) {
	on(bus, HookRoutingInit, fn)
}

// OnRouting registers fn on web.routing. fn runs for both stages.
func OnRouting(bus *hook.Bus, fn func(context.Context, *RoutingEvent) error) {
	on(bus, HookRouting, fn)
}

// OnSocketPreInit registers fn on web.socket.pre-init.
func OnSocketPreInit(bus *hook.Bus, fn func(context.Context, *SocketEvent) error) {
	on(bus, HookSocketPreInit, fn)
}

// OnPostInit registers fn on web.post-init.
func OnPostInit(bus *hook.Bus, fn func(context.Context, *SurfaceEvent) error) {
	on(bus, HookPostInit, fn)
}

func on[T any](bus *hook.Bus, name string, fn func(context.Context, T) error) {
	bus.On(name, func(ctx context.Context, payload any) error {
		p, ok := payload.(T)
		if !ok {
			return fmt.Errorf("hook %s: unexpected payload %T", name, payload)
		}
		return fn(ctx, p)
	})
}
