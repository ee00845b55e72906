package mark

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/game/behavior"
	"github.com/udisondev/sigils/internal/model"
)

// Dispatcher delivers lifecycle signals to the behavior attached to a mark.
type Dispatcher interface {
	Dispatch(sig behavior.Signal, target behavior.Target)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(sig behavior.Signal, target behavior.Target)

func (f DispatcherFunc) Dispatch(sig behavior.Signal, target behavior.Target) {
	f(sig, target)
}

// Observer is told about mark creation and removal. Used for metrics.
type Observer interface {
	MarkApplied(name string)
	MarkExpired(name string)
}

// ApplyRequest describes one applyMark call.
// Duration is in seconds; <= 0 means permanent.
// Owner and Group are optional (NilEntityID / "").
type ApplyRequest struct {
	Entity     model.EntityID
	Name       string
	Duration   float64
	BehaviorID string
	Owner      model.EntityID
	Group      string
}

// Info is a read-only view of a live mark.
type Info struct {
	Name       string
	ExpiresAt  time.Time // zero for permanent marks
	Owner      model.EntityID
	BehaviorID string
	Group      string
}

func (i Info) Permanent() bool {
	return i.ExpiresAt.IsZero()
}

// TickStats describes one fast pass.
type TickStats struct {
	Ticked          int // on-tick signals sent
	Expired         int // marks removed as expired
	DroppedEntities int // entities that were gone, dropped without signals
}

type entry struct {
	expiresAt     time.Time
	behaviorID    string
	owner         model.EntityID
	group         string
	staticApplied bool
}

func (e *entry) permanent() bool {
	return e.expiresAt.IsZero()
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type entityMarks struct {
	mu      sync.Mutex
	marks   map[string]*entry
	removed bool
}

type pendingSignal struct {
	sig    behavior.Signal
	target behavior.Target
}

// Store tracks named marks per entity.
//
// Thread-safe. Signals are dispatched after the entity lock is released,
// so behaviors may call back into the store.
type Store struct {
	clock      clock.Clock
	policies   PolicySource
	dispatcher Dispatcher
	observer   Observer

	entities sync.Map // map[model.EntityID]*entityMarks
}

// Option configures a Store.
type Option func(*Store)

// WithPolicies sets the stacking policy source.
func WithPolicies(p PolicySource) Option {
	return func(s *Store) { s.policies = p }
}

// WithDispatcher sets the behavior signal dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Store) { s.dispatcher = d }
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// NewStore creates an empty mark store.
func NewStore(clk clock.Clock, opts ...Option) *Store {
	s := &Store{
		clock:    clk,
		policies: StaticPolicy(DefaultPolicy()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Canonical returns the stored form of a mark name.
func Canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Apply creates the mark or re-applies it according to the mark's policy.
// Returns true when a new entry was created.
func (s *Store) Apply(req ApplyRequest) bool {
	name := Canonical(req.Name)
	if name == "" {
		return false
	}

	now := s.clock.Now()
	policy := s.policies.MarkPolicy(name)

	var (
		pending []pendingSignal
		created bool
	)
	for {
		e := s.loadOrCreate(req.Entity)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		existing, ok := e.marks[name]
		if ok && existing.expired(now) {
			delete(e.marks, name)
			pending = s.appendExpire(pending, req.Entity, name, existing)
			ok = false
		}

		if ok {
			reapply(existing, req, policy, now)
		} else {
			ent := &entry{
				expiresAt:  deadline(now, req.Duration),
				behaviorID: req.BehaviorID,
				owner:      req.Owner,
				group:      req.Group,
			}
			if ent.behaviorID != "" {
				pending = append(pending, pendingSignal{sig: behavior.SignalApply, target: target(req.Entity, name, ent)})
				ent.staticApplied = true
			}
			e.marks[name] = ent
			created = true
		}
		e.mu.Unlock()
		break
	}

	if created {
		slog.Debug("mark applied",
			"entity", req.Entity,
			"mark", name,
			"duration", req.Duration,
			"behavior", req.BehaviorID,
			"group", req.Group)
		if s.observer != nil {
			s.observer.MarkApplied(name)
		}
	}

	s.dispatch(pending)
	return created
}

// reapply mutates an existing live entry.
func reapply(ent *entry, req ApplyRequest, policy Policy, now time.Time) {
	switch {
	case !policy.StackingEnabled || req.Duration <= 0:
		ent.expiresAt = deadline(now, req.Duration)
	case req.Group != "" && req.Group == ent.group:
		ent.expiresAt = deadline(now, min(req.Duration, policy.MaxDuration))
	case ent.permanent():
		// Accrual has nothing to extend.
	default:
		remaining := ent.expiresAt.Sub(now).Seconds()
		ent.expiresAt = deadline(now, min(remaining+policy.StackIncrement, policy.MaxDuration))
	}

	if policy.StackingEnabled && req.Duration > 0 && req.Group != "" {
		ent.group = req.Group
	}
	if !req.Owner.IsNil() {
		ent.owner = req.Owner
	}
}

// deadline converts seconds from now into an expiry; zero means permanent.
func deadline(now time.Time, seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds * float64(time.Second)))
}

// Has reports whether the mark is present and unexpired.
func (s *Store) Has(id model.EntityID, name string) bool {
	name = Canonical(name)
	found := false
	s.read(id, func(marks map[string]*entry) {
		_, found = marks[name]
	})
	return found
}

// Marks returns the names of live marks on id, sorted.
func (s *Store) Marks(id model.EntityID) []string {
	var names []string
	s.read(id, func(marks map[string]*entry) {
		names = make([]string, 0, len(marks))
		for name := range marks {
			names = append(names, name)
		}
	})
	sort.Strings(names)
	return names
}

// Info returns details of live marks on id, sorted by name.
func (s *Store) Info(id model.EntityID) []Info {
	var infos []Info
	s.read(id, func(marks map[string]*entry) {
		infos = make([]Info, 0, len(marks))
		for name, ent := range marks {
			infos = append(infos, Info{
				Name:       name,
				ExpiresAt:  ent.expiresAt,
				Owner:      ent.owner,
				BehaviorID: ent.behaviorID,
				Group:      ent.group,
			})
		}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// IsMarkedBy reports whether any live mark on target is owned by attacker.
func (s *Store) IsMarkedBy(target, attacker model.EntityID) bool {
	if attacker.IsNil() {
		return false
	}
	found := false
	s.read(target, func(marks map[string]*entry) {
		for _, ent := range marks {
			if ent.owner == attacker {
				found = true
				return
			}
		}
	})
	return found
}

// Remaining returns seconds left on the mark: -1 when permanent,
// 0 when absent or expired.
func (s *Store) Remaining(id model.EntityID, name string) float64 {
	name = Canonical(name)
	now := s.clock.Now()
	remaining := 0.0
	s.read(id, func(marks map[string]*entry) {
		ent, ok := marks[name]
		switch {
		case !ok:
		case ent.permanent():
			remaining = -1
		default:
			remaining = ent.expiresAt.Sub(now).Seconds()
		}
	})
	return remaining
}

// Remove deletes the mark, firing on-expire exactly like natural expiry.
func (s *Store) Remove(id model.EntityID, name string) bool {
	name = Canonical(name)
	e := s.load(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	ent, ok := e.marks[name]
	if ok {
		delete(e.marks, name)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	s.dispatch(s.appendExpire(nil, id, name, ent))
	return true
}

// Clear removes every mark on id, firing on-expire for each.
func (s *Store) Clear(id model.EntityID) int {
	marks := s.detach(id)
	var pending []pendingSignal
	for _, name := range sortedNames(marks) {
		pending = s.appendExpire(pending, id, name, marks[name])
	}
	s.dispatch(pending)
	return len(marks)
}

// Drop removes every mark on id without firing signals.
func (s *Store) Drop(id model.EntityID) int {
	return len(s.detach(id))
}

// Tick runs one fast pass. Entities for which exists returns false are
// dropped without signals; expired marks fire on-expire and are removed;
// live marks with a behavior fire on-tick.
func (s *Store) Tick(exists func(model.EntityID) bool) TickStats {
	var stats TickStats
	now := s.clock.Now()

	s.entities.Range(func(key, value any) bool {
		id := key.(model.EntityID)
		e := value.(*entityMarks)

		if exists != nil && !exists(id) {
			e.mu.Lock()
			if !e.removed {
				e.removed = true
				s.entities.CompareAndDelete(id, e)
				stats.DroppedEntities++
			}
			e.mu.Unlock()
			return true
		}

		var pending []pendingSignal
		e.mu.Lock()
		for _, name := range sortedNames(e.marks) {
			ent := e.marks[name]
			if ent.expired(now) {
				delete(e.marks, name)
				pending = s.appendExpire(pending, id, name, ent)
				stats.Expired++
				continue
			}
			if ent.behaviorID != "" {
				pending = append(pending, pendingSignal{sig: behavior.SignalTick, target: target(id, name, ent)})
				stats.Ticked++
			}
		}
		if len(e.marks) == 0 && !e.removed {
			e.removed = true
			s.entities.CompareAndDelete(id, e)
		}
		e.mu.Unlock()

		s.dispatch(pending)
		return true
	})

	return stats
}

// ClearAll drops every mark of every entity without signals.
func (s *Store) ClearAll() {
	s.entities.Range(func(key, _ any) bool {
		s.detach(key.(model.EntityID))
		return true
	})
}

// Len returns the number of stored marks on id, expired ones included.
func (s *Store) Len(id model.EntityID) int {
	e := s.load(id)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.marks)
}

// EntityCount returns the number of tracked entities (O(n)).
func (s *Store) EntityCount() int {
	n := 0
	s.entities.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// read evicts expired marks of id, then calls fn with the live map under lock.
func (s *Store) read(id model.EntityID, fn func(marks map[string]*entry)) {
	e := s.load(id)
	if e == nil {
		return
	}

	now := s.clock.Now()
	var pending []pendingSignal

	e.mu.Lock()
	for _, name := range sortedNames(e.marks) {
		if ent := e.marks[name]; ent.expired(now) {
			delete(e.marks, name)
			pending = s.appendExpire(pending, id, name, ent)
		}
	}
	fn(e.marks)
	e.mu.Unlock()

	s.dispatch(pending)
}

func (s *Store) detach(id model.EntityID) map[string]*entry {
	value, ok := s.entities.Load(id)
	if !ok {
		return nil
	}
	e := value.(*entityMarks)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil
	}
	e.removed = true
	s.entities.CompareAndDelete(id, e)

	marks := e.marks
	e.marks = make(map[string]*entry)
	return marks
}

// appendExpire records the removal of ent and queues its on-expire signal.
func (s *Store) appendExpire(pending []pendingSignal, id model.EntityID, name string, ent *entry) []pendingSignal {
	if s.observer != nil {
		s.observer.MarkExpired(name)
	}
	slog.Debug("mark expired", "entity", id, "mark", name)
	if ent.behaviorID == "" {
		return pending
	}
	return append(pending, pendingSignal{sig: behavior.SignalExpire, target: target(id, name, ent)})
}

func (s *Store) dispatch(pending []pendingSignal) {
	if s.dispatcher == nil {
		return
	}
	for _, p := range pending {
		s.dispatcher.Dispatch(p.sig, p.target)
	}
}

func (s *Store) load(id model.EntityID) *entityMarks {
	value, ok := s.entities.Load(id)
	if !ok {
		return nil
	}
	return value.(*entityMarks)
}

func (s *Store) loadOrCreate(id model.EntityID) *entityMarks {
	if e := s.load(id); e != nil {
		return e
	}
	value, _ := s.entities.LoadOrStore(id, &entityMarks{marks: make(map[string]*entry)})
	return value.(*entityMarks)
}

func target(id model.EntityID, name string, ent *entry) behavior.Target {
	return behavior.Target{
		Entity:     id,
		Mark:       name,
		BehaviorID: ent.behaviorID,
		Owner:      ent.owner,
	}
}

func sortedNames(marks map[string]*entry) []string {
	names := make([]string, 0, len(marks))
	for name := range marks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
