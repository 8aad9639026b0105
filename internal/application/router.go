package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/azzmodious/jarvis/internal/domain"
)

// Action is one configured reaction to an event: an outbound webhook call
// or an external process invocation.
type Action interface {
	Invoke(ctx context.Context, evt domain.Event) error
	Name() string
}

// Router maps event names to their configured actions. The table is built
// once during startup and is read-only while the pipeline runs.
type Router struct {
	actions map[string][]Action
	logger  *slog.Logger

	mu   sync.Mutex
	tail chan struct{}
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		actions: make(map[string][]Action),
		logger:  logger,
	}
}

func (r *Router) Register(event string, action Action) {
	r.actions[event] = append(r.actions[event], action)
}

// Dispatch invokes every action bound to the event's name, in registration
// order, off the caller's goroutine so a slow script or webhook can never
// stall the capture loop or an HTTP response. Events run in submission
// order: each dispatch waits for the previous one to finish its actions
// before starting, so a startup event reaches its webhook queue before the
// transcript that followed it. A failing action is logged and never
// prevents the remaining actions from running. Names with no actions are
// no-ops.
func (r *Router) Dispatch(ctx context.Context, evt domain.Event) {
	actions := r.actions[evt.Name]
	if len(actions) == 0 {
		return
	}

	// Actions outlive the triggering request or capture iteration.
	ctx = context.WithoutCancel(ctx)

	r.mu.Lock()
	prev := r.tail
	done := make(chan struct{})
	r.tail = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		for _, action := range actions {
			if err := action.Invoke(ctx, evt); err != nil {
				r.logger.Error("event action failed",
					"event", evt.Name,
					"action", action.Name(),
					"error", err,
				)
			}
		}
	}()
}
