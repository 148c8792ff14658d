// Package web brings up the web surface: one shared pipeline served over
// HTTP, HTTPS, and a bidirectional channel.
//
// [Surface.Initialize] runs an ordered queue of phases, each gated by hooks
// on the surface's bus. Listeners registered with [OnRouting] see two
// firings of web.routing: [StageSetup], where application routes are
// registered, and [StageSurface], once the pipeline is complete and about
// to be sealed.
//
//	bus := hook.New()
//	web.OnRouting(bus, func(ctx context.Context, ev *web.RoutingEvent) error {
//		if ev.Stage != web.StageSetup {
//			return nil
//		}
//		return ev.Pipeline.HandleFunc(http.MethodGet, "/healthz", health)
//	})
//	surface := web.New(cfg, bus)
//	if err := surface.Initialize(ctx); err != nil {
//		return err
//	}
package web
