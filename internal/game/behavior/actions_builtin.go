package behavior

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/model"
)

func init() {
	RegisterAction("apply_modifier", newApplyModifierAction)
	RegisterAction("remove_modifier", newRemoveModifierAction)
	RegisterAction("apply_mark", newApplyMarkAction)
	RegisterAction("remove_mark", newRemoveMarkAction)
	RegisterAction("set_overlay", newSetOverlayAction)
	RegisterAction("log", newLogAction)
}

// ApplyModifierAction adds a numeric contribution.
// Params: type, source (defaults to the behavior id), value, duration, on.
type ApplyModifierAction struct {
	subject  Subject
	typ      modifier.Type
	source   string
	value    float64
	duration time.Duration
}

func newApplyModifierAction(raw map[string]string) (Action, error) {
	p := params(raw)
	a := &ApplyModifierAction{source: strings.TrimSpace(p["source"])}

	var err error
	if a.subject, err = p.subject(); err != nil {
		return nil, err
	}
	typName, err := p.required("type")
	if err != nil {
		return nil, err
	}
	if a.typ, err = modifier.ParseType(typName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	if a.value, err = p.float("value", 0); err != nil {
		return nil, err
	}
	if a.duration, err = p.duration("duration"); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ApplyModifierAction) Name() string { return "apply_modifier" }

func (a *ApplyModifierAction) Run(ctx *Context) error {
	ctx.Actions.ApplyModifier(a.subject.resolve(ctx), a.typ, sourceOr(a.source, ctx), a.value, a.duration)
	return nil
}

// RemoveModifierAction removes one source's contribution.
// Params: type, source (defaults to the behavior id), on.
type RemoveModifierAction struct {
	subject Subject
	typ     modifier.Type
	source  string
}

func newRemoveModifierAction(raw map[string]string) (Action, error) {
	p := params(raw)
	a := &RemoveModifierAction{source: strings.TrimSpace(p["source"])}

	var err error
	if a.subject, err = p.subject(); err != nil {
		return nil, err
	}
	typName, err := p.required("type")
	if err != nil {
		return nil, err
	}
	if a.typ, err = modifier.ParseType(typName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return a, nil
}

func (a *RemoveModifierAction) Name() string { return "remove_modifier" }

func (a *RemoveModifierAction) Run(ctx *Context) error {
	ctx.Actions.RemoveModifier(a.subject.resolve(ctx), a.typ, sourceOr(a.source, ctx))
	return nil
}

// ApplyMarkAction places a mark owned by the context owner.
// Params: mark, duration (seconds), behavior, group, on.
type ApplyMarkAction struct {
	subject    Subject
	mark       string
	seconds    float64
	behaviorID string
	group      string
}

func newApplyMarkAction(raw map[string]string) (Action, error) {
	p := params(raw)
	a := &ApplyMarkAction{
		behaviorID: strings.TrimSpace(p["behavior"]),
		group:      strings.TrimSpace(p["group"]),
	}

	var err error
	if a.subject, err = p.subject(); err != nil {
		return nil, err
	}
	if a.mark, err = p.required("mark"); err != nil {
		return nil, err
	}
	if a.seconds, err = p.float("duration", 0); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ApplyMarkAction) Name() string { return "apply_mark" }

func (a *ApplyMarkAction) Run(ctx *Context) error {
	ctx.Actions.ApplyMark(a.subject.resolve(ctx), a.mark, a.seconds, a.behaviorID, ctx.Owner, a.group)
	return nil
}

// RemoveMarkAction removes a mark. Params: mark, on.
type RemoveMarkAction struct {
	subject Subject
	mark    string
}

func newRemoveMarkAction(raw map[string]string) (Action, error) {
	p := params(raw)
	a := &RemoveMarkAction{}

	var err error
	if a.subject, err = p.subject(); err != nil {
		return nil, err
	}
	if a.mark, err = p.required("mark"); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *RemoveMarkAction) Name() string { return "remove_mark" }

func (a *RemoveMarkAction) Run(ctx *Context) error {
	ctx.Actions.RemoveMark(a.subject.resolve(ctx), a.mark)
	return nil
}

// SetOverlayAction installs a named attribute overlay.
// Params: attribute, name, value, op, duration (whole seconds), on.
type SetOverlayAction struct {
	subject Subject
	kind    model.AttributeKind
	name    string
	value   float64
	op      model.Operation
	seconds int
}

func newSetOverlayAction(raw map[string]string) (Action, error) {
	p := params(raw)
	a := &SetOverlayAction{op: model.OpAddScalar}

	var err error
	if a.subject, err = p.subject(); err != nil {
		return nil, err
	}
	attr, err := p.required("attribute")
	if err != nil {
		return nil, err
	}
	if a.kind, err = model.ParseAttributeKind(attr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	if a.name, err = p.required("name"); err != nil {
		return nil, err
	}
	if a.value, err = p.float("value", 0); err != nil {
		return nil, err
	}
	if op := strings.TrimSpace(p["op"]); op != "" {
		if a.op, err = model.ParseOperation(op); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
		}
	}
	if a.seconds, err = p.int("duration", 0); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SetOverlayAction) Name() string { return "set_overlay" }

func (a *SetOverlayAction) Run(ctx *Context) error {
	id := a.subject.resolve(ctx)
	if !ctx.Actions.SetNamedOverlay(id, a.kind, a.name, a.value, a.op, a.seconds) {
		slog.Debug("overlay not applied", "behavior", ctx.BehaviorID, "entity", id, "attribute", a.kind, "name", a.name)
	}
	return nil
}

// LogAction writes a debug line. Params: message.
type LogAction struct {
	message string
}

func newLogAction(raw map[string]string) (Action, error) {
	return &LogAction{message: raw["message"]}, nil
}

func (a *LogAction) Name() string { return "log" }

func (a *LogAction) Run(ctx *Context) error {
	slog.Info(a.message,
		"behavior", ctx.BehaviorID,
		"signal", ctx.Signal,
		"mark", ctx.Mark,
		"target", ctx.Target)
	return nil
}

func sourceOr(source string, ctx *Context) string {
	if source != "" {
		return source
	}
	return ctx.BehaviorID
}
