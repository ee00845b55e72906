package behavior

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Observer is told about dispatched signals and failed flows.
type Observer interface {
	BehaviorSignal(signal string)
	BehaviorFailed(behaviorID string)
}

// Executor resolves behavior ids and runs the flows matching a signal.
// Unknown behaviors and behaviors without a matching flow are ignored.
// A failing flow is logged and never affects other flows or the caller.
type Executor struct {
	library  atomic.Pointer[Library]
	actions  Actions
	observer Observer
}

// NewExecutor creates an executor running flows against actions.
func NewExecutor(lib *Library, actions Actions) *Executor {
	x := &Executor{actions: actions}
	if lib == nil {
		lib = NewLibrary()
	}
	x.library.Store(lib)
	return x
}

// SetObserver sets the signal observer. Not safe to call concurrently with Dispatch.
func (x *Executor) SetObserver(o Observer) {
	x.observer = o
}

// SetLibrary swaps the behavior library. Safe for concurrent use.
func (x *Executor) SetLibrary(lib *Library) {
	if lib == nil {
		lib = NewLibrary()
	}
	x.library.Store(lib)
}

// Library returns the current library.
func (x *Executor) Library() *Library {
	return x.library.Load()
}

// Dispatch runs the flows of target.BehaviorID triggered by sig.
func (x *Executor) Dispatch(sig Signal, target Target) {
	if target.BehaviorID == "" {
		return
	}
	b, ok := x.library.Load().Resolve(target.BehaviorID)
	if !ok {
		slog.Debug("behavior not found", "behavior", target.BehaviorID, "mark", target.Mark)
		return
	}

	flows := b.Matching(sig)
	if len(flows) == 0 {
		return
	}
	if x.observer != nil {
		x.observer.BehaviorSignal(sig.String())
	}

	owner := target.Owner
	if owner.IsNil() {
		owner = target.Entity
	}
	ctx := &Context{
		Signal:     sig,
		BehaviorID: b.ID,
		Mark:       target.Mark,
		Owner:      owner,
		Target:     target.Entity,
		Actions:    x.actions,
	}

	for _, flow := range flows {
		if err := x.run(flow, ctx); err != nil {
			if x.observer != nil {
				x.observer.BehaviorFailed(b.ID)
			}
			slog.Warn("behavior flow failed",
				"behavior", b.ID,
				"signal", sig,
				"mark", target.Mark,
				"entity", target.Entity,
				"error", err)
		}
	}
}

func (x *Executor) run(flow Flow, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return flow.Run(ctx)
}
