package behavior

import (
	"errors"
	"time"

	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/model"
)

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownTrigger    = errors.New("unknown trigger")
	ErrDuplicateBehavior = errors.New("duplicate behavior")
	ErrInvalidParam      = errors.New("invalid parameter")
)

// Actions is the registry surface a behavior can act on.
type Actions interface {
	ApplyModifier(id model.EntityID, typ modifier.Type, source string, value float64, duration time.Duration)
	RemoveModifier(id model.EntityID, typ modifier.Type, source string) bool
	Multiplier(id model.EntityID, typ modifier.Type) float64
	ApplyMark(id model.EntityID, name string, seconds float64, behaviorID string, owner model.EntityID, group string)
	RemoveMark(id model.EntityID, name string) bool
	HasMark(id model.EntityID, name string) bool
	SetNamedOverlay(id model.EntityID, kind model.AttributeKind, name string, value float64, op model.Operation, seconds int) bool
}

// Context is handed to every flow run.
// Owner falls back to Target for ownerless marks.
type Context struct {
	Signal     Signal
	BehaviorID string
	Mark       string
	Owner      model.EntityID
	Target     model.EntityID
	Actions    Actions
}

// Flow is one trigger-bound sequence of work inside a behavior.
type Flow interface {
	Trigger() Signal
	Run(ctx *Context) error
}

// Behavior is a named set of flows attached to marks by id.
type Behavior struct {
	ID    string
	Flows []Flow
}

// Matching returns the flows triggered by sig, in declaration order.
func (b *Behavior) Matching(sig Signal) []Flow {
	var out []Flow
	for _, f := range b.Flows {
		if f.Trigger() == sig {
			out = append(out, f)
		}
	}
	return out
}

// StepFlow runs a fixed list of actions in order, stopping at the first error.
type StepFlow struct {
	trigger Signal
	steps   []Action
}

// NewStepFlow creates a flow from already constructed actions.
func NewStepFlow(trigger Signal, steps ...Action) *StepFlow {
	return &StepFlow{trigger: trigger, steps: steps}
}

func (f *StepFlow) Trigger() Signal { return f.trigger }

func (f *StepFlow) Run(ctx *Context) error {
	for _, step := range f.steps {
		if err := step.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FuncFlow adapts a function to Flow. Mostly useful in tests and embedding code.
type FuncFlow struct {
	On Signal
	Fn func(ctx *Context) error
}

func (f FuncFlow) Trigger() Signal        { return f.On }
func (f FuncFlow) Run(ctx *Context) error { return f.Fn(ctx) }
