// Package registry composes the modifier, mark and overlay stores into the
// single surface the damage and ability pipeline talks to.
package registry

import (
	"log/slog"
	"time"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/config"
	"github.com/udisondev/sigils/internal/game/behavior"
	"github.com/udisondev/sigils/internal/game/combat"
	"github.com/udisondev/sigils/internal/game/intercept"
	"github.com/udisondev/sigils/internal/game/mark"
	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/game/notify"
	"github.com/udisondev/sigils/internal/game/overlay"
	"github.com/udisondev/sigils/internal/metrics"
	"github.com/udisondev/sigils/internal/model"
)

// Entities resolves entities for the registry. *world.World implements it.
type Entities interface {
	Get(id model.EntityID) (*model.Entity, bool)
	Exists(id model.EntityID) bool
}

// Options wires a Registry. Entities is required; everything else has a
// usable default.
type Options struct {
	Clock    clock.Clock
	Entities Entities
	Config   *config.Registry // nil means config.DefaultRegistry()

	// Behaviors backs the default executor. Ignored when Dispatcher is set.
	Behaviors *behavior.Library
	// Dispatcher replaces the behavior executor, e.g. with a recorder in tests.
	Dispatcher mark.Dispatcher

	Notifier     notify.Notifier
	Interceptors *intercept.Manager
	Metrics      *metrics.Registry
}

// Registry is the process-scoped owner of modifiers, marks, overlays and
// the notification suppression set. Safe for concurrent use.
type Registry struct {
	entities Entities
	cfg      config.Registry
	notifier notify.Notifier
	metrics  *metrics.Registry

	suppressed   notify.Suppressions
	interceptors *intercept.Manager
	executor     *behavior.Executor

	modifiers *modifier.Store
	marks     *mark.Store
	overlays  *overlay.Store
	damage    *combat.Calculator
}

var _ behavior.Actions = (*Registry)(nil)

// New builds a registry. It panics if opts.Entities is nil.
func New(opts Options) *Registry {
	if opts.Entities == nil {
		panic("registry: nil Entities")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	cfg := config.DefaultRegistry()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Interceptors == nil {
		opts.Interceptors = intercept.NewManager()
	}

	r := &Registry{
		entities:     opts.Entities,
		cfg:          cfg,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		interceptors: opts.Interceptors,
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		r.executor = behavior.NewExecutor(opts.Behaviors, r)
		r.executor.SetObserver(opts.Metrics)
		dispatcher = r.executor
	}

	r.modifiers = modifier.NewStore(opts.Clock)
	r.marks = mark.NewStore(opts.Clock,
		mark.WithPolicies(cfg),
		mark.WithDispatcher(dispatcher),
		mark.WithObserver(opts.Metrics))
	r.overlays = overlay.NewStore(opts.Clock, opts.Entities,
		overlay.WithGate(opts.Interceptors),
		overlay.WithObserver(opts.Metrics))
	r.damage = combat.NewCalculator(r.modifiers, cfg.Caps())
	return r
}

// Executor returns the behavior executor, or nil when a custom
// dispatcher was supplied.
func (r *Registry) Executor() *behavior.Executor { return r.executor }

// Interceptors returns the overlay interception hook.
func (r *Registry) Interceptors() *intercept.Manager { return r.interceptors }

// ---- modifiers ----

// ApplyModifier adds or replaces the (type, source) contribution on id.
// duration <= 0 makes it permanent. A real change (not a refresh) notifies
// the player when the type's notifications are enabled.
func (r *Registry) ApplyModifier(id model.EntityID, typ modifier.Type, source string, value float64, duration time.Duration) {
	changed := r.modifiers.Apply(id, typ, source, value, duration)
	r.metrics.ModifierApplied(typ.String())
	if changed && r.cfg.Notifications.Enabled(typ) {
		r.notify(id, notify.ModifierNotice(typ, source, value, duration))
	}
}

// Multiplier returns the aggregate multiplier of typ on id; 1.0 is no effect.
func (r *Registry) Multiplier(id model.EntityID, typ modifier.Type) float64 {
	return r.modifiers.Multiplier(id, typ)
}

// RemoveModifier drops one (type, source) contribution.
func (r *Registry) RemoveModifier(id model.EntityID, typ modifier.Type, source string) bool {
	return r.modifiers.Remove(id, typ, source)
}

// RemoveModifierSource drops source from every type on id.
func (r *Registry) RemoveModifierSource(id model.EntityID, source string) int {
	return r.modifiers.RemoveSource(id, source)
}

// ActiveModifiers lists live contributions of id by type and source.
func (r *Registry) ActiveModifiers(id model.EntityID) map[modifier.Type]map[string]modifier.ActiveModifier {
	return r.modifiers.Active(id)
}

// Damage runs incoming damage through the multipliers of victim and the
// configured caps.
func (r *Registry) Damage(victim model.EntityID, damage float64) combat.Result {
	return r.damage.Apply(victim, damage)
}

// ---- marks ----

// ApplyMark creates or re-applies a mark. seconds <= 0 makes it permanent.
// behaviorID, owner and group are optional.
func (r *Registry) ApplyMark(id model.EntityID, name string, seconds float64, behaviorID string, owner model.EntityID, group string) {
	r.marks.Apply(mark.ApplyRequest{
		Entity:     id,
		Name:       name,
		Duration:   seconds,
		BehaviorID: behaviorID,
		Owner:      owner,
		Group:      group,
	})
}

func (r *Registry) HasMark(id model.EntityID, name string) bool {
	return r.marks.Has(id, name)
}

// RemoveMark removes the mark, firing its on-expire flow.
func (r *Registry) RemoveMark(id model.EntityID, name string) bool {
	return r.marks.Remove(id, name)
}

// Marks returns live mark names of id, sorted.
func (r *Registry) Marks(id model.EntityID) []string {
	return r.marks.Marks(id)
}

// MarkInfo returns a snapshot of the live marks of id.
func (r *Registry) MarkInfo(id model.EntityID) []mark.Info {
	return r.marks.Info(id)
}

// RemainingDuration returns seconds left on the mark: -1 when permanent,
// 0 when absent or expired.
func (r *Registry) RemainingDuration(id model.EntityID, name string) float64 {
	return r.marks.Remaining(id, name)
}

// IsMarkedBy reports whether attacker owns any live mark on target.
func (r *Registry) IsMarkedBy(target, attacker model.EntityID) bool {
	return r.marks.IsMarkedBy(target, attacker)
}

// ---- overlays ----

// SetNamedOverlay installs a uniquely named attribute modifier, replacing
// a previous one under the same name. seconds > 0 schedules its removal.
// Returns false if the entity lacks the attribute or the change was vetoed.
func (r *Registry) SetNamedOverlay(id model.EntityID, kind model.AttributeKind, name string, value float64, op model.Operation, seconds int) bool {
	ok := r.overlays.Set(overlay.SetRequest{
		Entity:    id,
		Attribute: kind,
		Name:      name,
		Value:     value,
		Op:        op,
		Duration:  seconds,
	})
	if !ok {
		return false
	}
	if r.cfg.Notifications.Overlays {
		if n, show := notify.OverlayNotice(kind, value); show {
			r.notify(id, n)
		}
	}
	return true
}

// SetPersistentOverlay installs an overlay that never expires and sends
// no notice.
func (r *Registry) SetPersistentOverlay(id model.EntityID, kind model.AttributeKind, name string, value float64, op model.Operation) bool {
	return r.overlays.Set(overlay.SetRequest{
		Entity:     id,
		Attribute:  kind,
		Name:       name,
		Value:      value,
		Op:         op,
		Persistent: true,
	})
}

func (r *Registry) RemoveNamedOverlay(id model.EntityID, kind model.AttributeKind, name string) bool {
	return r.overlays.Remove(id, kind, name)
}

func (r *Registry) RemovePersistentOverlay(id model.EntityID, kind model.AttributeKind, name string) bool {
	return r.overlays.RemovePersistent(id, kind, name)
}

func (r *Registry) HasNamedOverlay(id model.EntityID, kind model.AttributeKind, name string) bool {
	return r.overlays.Has(id, kind, name)
}

// ScrubAllOverlays removes every overlay this registry installed on id.
func (r *Registry) ScrubAllOverlays(id model.EntityID) int {
	return r.overlays.Scrub(id)
}

// ActiveOverlays returns tracked overlay names of id by attribute.
func (r *Registry) ActiveOverlays(id model.EntityID) map[model.AttributeKind][]string {
	return r.overlays.Active(id)
}

// ---- notifications ----

// ToggleNotifications flips muting for id. Returns true when now muted.
func (r *Registry) ToggleNotifications(id model.EntityID) bool {
	return r.suppressed.Toggle(id)
}

func (r *Registry) SetNotificationsMuted(id model.EntityID, muted bool) {
	r.suppressed.Set(id, muted)
}

func (r *Registry) NotificationsMuted(id model.EntityID) bool {
	return r.suppressed.Suppressed(id)
}

// notify sends n to id if id is a player that has not muted notices.
func (r *Registry) notify(id model.EntityID, n notify.Notice) {
	if r.suppressed.Suppressed(id) {
		return
	}
	e, ok := r.entities.Get(id)
	if !ok || !e.IsPlayer() {
		return
	}
	r.notifier.Notify(id, n)
	r.metrics.Notification(n.Kind.String())
}

// ---- lifecycle ----

// RemoveEntity tears down every piece of state held for id, interceptors
// included. Called synchronously from entity removal (despawn, quit).
// The notification mute of id is kept.
func (r *Registry) RemoveEntity(id model.EntityID) {
	r.teardown(id, "removed")
	r.interceptors.UnregisterAll(id)
}

// EntityDied tears down the effect state of id on death. Interceptors stay
// registered until the entity is removed; the notification mute is kept.
func (r *Registry) EntityDied(id model.EntityID) {
	r.teardown(id, "died")
}

// teardown runs marks first so on-expire flows still see the entity;
// anything those flows add back for id is dropped by the later steps.
func (r *Registry) teardown(id model.EntityID, reason string) {
	marks := r.marks.Clear(id)
	r.modifiers.RemoveEntity(id)
	timers := r.overlays.Forget(id)
	scrubbed := r.overlays.Scrub(id)
	late := r.marks.Drop(id)

	slog.Debug("entity state removed",
		"entity", id,
		"reason", reason,
		"marks", marks+late,
		"overlay_timers", timers,
		"overlays_scrubbed", scrubbed)
}

// Tracked reports whether any store still holds state for id.
func (r *Registry) Tracked(id model.EntityID) bool {
	return r.marks.Len(id) > 0 || r.modifiers.Len(id) > 0 || len(r.overlays.Active(id)) > 0
}

// Shutdown clears every store and cancels all overlay timers.
// No signals are fired.
func (r *Registry) Shutdown() {
	r.marks.ClearAll()
	r.modifiers.Clear()
	r.overlays.Clear()
	r.suppressed.Clear()
	slog.Info("registry shut down")
}
