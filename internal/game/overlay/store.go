// Package overlay installs uniquely named attribute modifiers on entities
// and removes them when their duration runs out.
package overlay

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/game/intercept"
	"github.com/udisondev/sigils/internal/model"
)

const (
	// AttrPrefix prefixes keys of timed and permanent overlays.
	AttrPrefix = "sigils_attr"
	// PersistPrefix prefixes keys of persistent overlays.
	PersistPrefix = "sigils_persist"
)

// Key returns the attribute modifier key of a named overlay.
func Key(name string, persistent bool) string {
	prefix := AttrPrefix
	if persistent {
		prefix = PersistPrefix
	}
	return prefix + "_" + sanitize(name)
}

// sanitize lowercases name and replaces anything outside [a-z0-9_] with '_'.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(name))
}

// EntityResolver looks up live or dying entities.
type EntityResolver interface {
	Get(id model.EntityID) (*model.Entity, bool)
}

// Gate approves or vetoes a proposed overlay change.
type Gate interface {
	Allow(e intercept.Event) bool
}

// Observer is told about overlay outcomes. Used for metrics.
type Observer interface {
	OverlaySet()
	OverlayVetoed()
	OverlayExpired()
}

// SetRequest describes one setNamedOverlay call.
// Duration is in whole seconds; <= 0 means no auto-removal.
// Persistent overlays use a stable key and never auto-expire.
type SetRequest struct {
	Entity     model.EntityID
	Attribute  model.AttributeKind
	Name       string
	Value      float64
	Op         model.Operation
	Duration   int
	Persistent bool
}

type slot struct {
	kind model.AttributeKind
	key  string
}

// handle tracks one installed overlay. timer is nil when it never expires.
type handle struct {
	name  string
	inst  *model.AttributeInstance
	timer clock.Timer
}

// Store keeps the auto-removal timer arena for named overlays.
//
// Thread-safe: one mutex guards the arena. Replacing or cancelling a timer
// and forgetting its handle happen under that mutex, and a timer that fires
// after its handle was replaced finds a different handle and does nothing.
type Store struct {
	clock    clock.Clock
	entities EntityResolver
	gate     Gate
	observer Observer

	mu    sync.Mutex
	arena map[model.EntityID]map[slot]*handle
}

// Option configures a Store.
type Option func(*Store)

// WithGate sets the interception hook.
func WithGate(g Gate) Option {
	return func(s *Store) { s.gate = g }
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// NewStore creates an overlay store resolving entities through entities.
func NewStore(clk clock.Clock, entities EntityResolver, opts ...Option) *Store {
	s := &Store{
		clock:    clk,
		entities: entities,
		arena:    make(map[model.EntityID]map[slot]*handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set installs the overlay, replacing any overlay with the same
// (attribute, name) and rescheduling its removal. Returns false when the
// entity lacks the attribute or the gate vetoes the change.
func (s *Store) Set(req SetRequest) bool {
	if strings.TrimSpace(req.Name) == "" {
		return false
	}
	inst := s.instance(req.Entity, req.Attribute)
	if inst == nil {
		return false
	}

	if s.gate != nil && !s.gate.Allow(intercept.Event{
		Target:    req.Entity,
		Attribute: req.Attribute,
		Operation: req.Op,
		Value:     req.Value,
		Name:      req.Name,
	}) {
		slog.Debug("overlay vetoed", "entity", req.Entity, "attribute", req.Attribute, "name", req.Name)
		if s.observer != nil {
			s.observer.OverlayVetoed()
		}
		return false
	}

	key := Key(req.Name, req.Persistent)
	sl := slot{kind: req.Attribute, key: key}
	h := &handle{name: req.Name, inst: inst}

	s.mu.Lock()
	inst.AddModifier(model.AttributeModifier{Key: key, Value: req.Value, Op: req.Op})

	slots := s.arena[req.Entity]
	if slots == nil {
		slots = make(map[slot]*handle)
		s.arena[req.Entity] = slots
	}
	if old := slots[sl]; old != nil && old.timer != nil {
		old.timer.Stop()
	}
	if req.Duration > 0 && !req.Persistent {
		id := req.Entity
		h.timer = s.clock.AfterFunc(time.Duration(req.Duration)*time.Second, func() {
			s.expire(id, sl, h)
		})
	}
	slots[sl] = h
	s.mu.Unlock()

	slog.Debug("overlay set",
		"entity", req.Entity,
		"attribute", req.Attribute,
		"name", req.Name,
		"value", req.Value,
		"op", req.Op,
		"duration", req.Duration)
	if s.observer != nil {
		s.observer.OverlaySet()
	}
	return true
}

func (s *Store) expire(id model.EntityID, sl slot, h *handle) {
	s.mu.Lock()
	slots := s.arena[id]
	if slots == nil || slots[sl] != h {
		s.mu.Unlock()
		return
	}
	delete(slots, sl)
	if len(slots) == 0 {
		delete(s.arena, id)
	}
	h.inst.RemoveModifier(sl.key)
	s.mu.Unlock()

	slog.Debug("overlay expired", "entity", id, "attribute", sl.kind, "name", h.name)
	if s.observer != nil {
		s.observer.OverlayExpired()
	}
}

// Remove deletes the overlay and cancels its pending removal.
func (s *Store) Remove(id model.EntityID, kind model.AttributeKind, name string) bool {
	return s.remove(id, kind, Key(name, false))
}

// RemovePersistent deletes a persistent overlay.
func (s *Store) RemovePersistent(id model.EntityID, kind model.AttributeKind, name string) bool {
	return s.remove(id, kind, Key(name, true))
}

func (s *Store) remove(id model.EntityID, kind model.AttributeKind, key string) bool {
	sl := slot{kind: kind, key: key}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	if slots := s.arena[id]; slots != nil {
		if h := slots[sl]; h != nil {
			if h.timer != nil {
				h.timer.Stop()
			}
			removed = h.inst.RemoveModifier(key)
			delete(slots, sl)
			if len(slots) == 0 {
				delete(s.arena, id)
			}
		}
	}
	if inst := s.instance(id, kind); inst != nil && inst.RemoveModifier(key) {
		removed = true
	}
	return removed
}

// Has reports whether the entity's attribute currently carries the overlay.
func (s *Store) Has(id model.EntityID, kind model.AttributeKind, name string) bool {
	inst := s.instance(id, kind)
	return inst != nil && inst.HasModifier(Key(name, false))
}

// HasPersistent reports whether a persistent overlay is installed.
func (s *Store) HasPersistent(id model.EntityID, kind model.AttributeKind, name string) bool {
	inst := s.instance(id, kind)
	return inst != nil && inst.HasModifier(Key(name, true))
}

// Scrub removes every overlay-owned modifier from every attribute of id,
// tracked or not. Returns the number of modifiers removed.
func (s *Store) Scrub(id model.EntityID) int {
	e, ok := s.entities.Get(id)
	if !ok {
		return 0
	}

	removed := 0
	for _, kind := range model.AllAttributeKinds() {
		inst := e.Attribute(kind)
		if inst == nil {
			continue
		}
		for _, key := range inst.Keys() {
			if strings.HasPrefix(key, AttrPrefix) || strings.HasPrefix(key, PersistPrefix) {
				if inst.RemoveModifier(key) {
					removed++
				}
			}
		}
	}
	return removed
}

// Forget cancels every pending timer of id and drops its tracking.
// Installed modifiers are left alone; see Scrub.
func (s *Store) Forget(id model.EntityID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forgetLocked(id)
}

func (s *Store) forgetLocked(id model.EntityID) int {
	slots := s.arena[id]
	for _, h := range slots {
		if h.timer != nil {
			h.timer.Stop()
		}
	}
	delete(s.arena, id)
	return len(slots)
}

// Purge drops tracking for entities for which exists returns false,
// cancelling their timers first. Returns the number of entities dropped.
func (s *Store) Purge(exists func(model.EntityID) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id := range s.arena {
		if exists(id) {
			continue
		}
		s.forgetLocked(id)
		dropped++
	}
	return dropped
}

// Active returns tracked overlay names of id by attribute, sorted.
func (s *Store) Active(id model.EntityID) map[model.AttributeKind][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.AttributeKind][]string)
	for sl, h := range s.arena[id] {
		out[sl.kind] = append(out[sl.kind], h.name)
	}
	for kind := range out {
		sort.Strings(out[kind])
	}
	return out
}

// TimerCount returns the number of pending auto-removal timers.
func (s *Store) TimerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, slots := range s.arena {
		for _, h := range slots {
			if h.timer != nil {
				n++
			}
		}
	}
	return n
}

// EntityCount returns the number of entities with tracked overlays.
func (s *Store) EntityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arena)
}

// Clear cancels every timer and drops all tracking.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.arena {
		s.forgetLocked(id)
	}
}

func (s *Store) instance(id model.EntityID, kind model.AttributeKind) *model.AttributeInstance {
	e, ok := s.entities.Get(id)
	if !ok {
		return nil
	}
	return e.Attribute(kind)
}
