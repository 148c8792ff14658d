// Package hook implements named extension points. Listeners registered on a
// hook run sequentially in registration order when the hook fires, and the
// first listener error aborts the firing.
package hook

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	weftdebug "github.com/rhuss/weft/pkg/debug"
	"github.com/rhuss/weft/pkg/observability"
)

// Listener handles one firing of a hook. Returning an error aborts the
// firing; listeners registered after it do not run.
type Listener func(ctx context.Context, payload any) error

// PanicError is returned by Fire when a listener panics.
type PanicError struct {
	Hook  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hook %s: listener panicked: %v", e.Hook, e.Value)
}

// Bus holds the listeners of every hook. The zero value is ready to use.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// On appends l to the listeners of hook.
func (b *Bus) On(hook string, l Listener) {
	if l == nil {
		panic("hook: nil listener for " + hook)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[string][]Listener)
	}
	b.listeners[hook] = append(b.listeners[hook], l)
}

// Listeners returns the number of listeners registered on hook.
func (b *Bus) Listeners(hook string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[hook])
}

// Fire runs the listeners of hook in registration order and returns the
// first error exactly as the listener returned it. Listeners registered
// while a firing is in progress take effect from the next firing. The
// context is checked before each listener; a cancelled context aborts the
// firing with ctx.Err(). Firing a hook without listeners succeeds.
func (b *Bus) Fire(ctx context.Context, hook string, payload any) error {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[hook]...)
	b.mu.RUnlock()

	start := time.Now()
	for i, l := range listeners {
		if err := ctx.Err(); err != nil {
			observability.HookFiresTotal.WithLabelValues(hook, "cancelled").Inc()
			return err
		}
		if err := call(ctx, hook, l, payload); err != nil {
			observability.HookFiresTotal.WithLabelValues(hook, "error").Inc()
			weftdebug.Log(weftdebug.Hooks, "listener failed",
				"hook", hook,
				"listener", i,
				"error", err,
			)
			return err
		}
	}

	observability.HookFiresTotal.WithLabelValues(hook, "ok").Inc()
	weftdebug.Trace(weftdebug.Hooks, "fired",
		"hook", hook,
		"listeners", len(listeners),
		"duration", time.Since(start),
	)
	return nil
}

func call(ctx context.Context, hook string, l Listener, payload any) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Hook: hook, Value: v, Stack: debug.Stack()}
		}
	}()
	return l(ctx, payload)
}
