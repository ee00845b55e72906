package modifier

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/model"
)

// RefreshEpsilon is the largest value change still treated as a refresh.
const RefreshEpsilon = 0.001

// Modifier is one source's contribution. Zero ExpiresAt means permanent.
type Modifier struct {
	Source    string
	Value     float64
	ExpiresAt time.Time
}

func (m Modifier) Permanent() bool {
	return m.ExpiresAt.IsZero()
}

// Expired reports whether m has expired at now. Expiry is inclusive.
func (m Modifier) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// ActiveModifier is an inspection snapshot. RemainingSeconds is -1 for permanent entries.
type ActiveModifier struct {
	Value            float64
	RemainingSeconds float64
}

// PurgeStats describes one slow pass over the store.
type PurgeStats struct {
	Expired         int // sources evicted
	DroppedEntities int // entity containers released
}

// aggregate is a cached multiplier. It stays valid until the earliest
// expiry among the summed sources (zero = no expiring source).
type aggregate struct {
	value      float64
	validUntil time.Time
}

func (a *aggregate) validAt(now time.Time) bool {
	return a.validUntil.IsZero() || now.Before(a.validUntil)
}

type sourceSet struct {
	typ     Type
	sources map[string]Modifier
	cached  atomic.Pointer[aggregate]
}

// evict drops expired sources. Caller holds the entity lock.
func (s *sourceSet) evict(now time.Time) int {
	evicted := 0
	for name, m := range s.sources {
		if m.Expired(now) {
			delete(s.sources, name)
			evicted++
		}
	}
	if evicted > 0 {
		s.cached.Store(nil)
	}
	return evicted
}

// recompute evicts expired sources and caches a fresh aggregate.
// Caller holds the entity lock.
func (s *sourceSet) recompute(now time.Time) *aggregate {
	var (
		sum        float64
		validUntil time.Time
	)
	for name, m := range s.sources {
		if m.Expired(now) {
			delete(s.sources, name)
			continue
		}
		sum += m.Value
		if !m.Permanent() && (validUntil.IsZero() || m.ExpiresAt.Before(validUntil)) {
			validUntil = m.ExpiresAt
		}
	}
	agg := &aggregate{value: s.typ.Aggregate(sum), validUntil: validUntil}
	s.cached.Store(agg)
	return agg
}

// entityModifiers holds one entity's source sets.
// sets are published atomically so cache hits never take mu.
type entityModifiers struct {
	mu      sync.Mutex
	sets    [typeCount]atomic.Pointer[sourceSet]
	removed bool // container detached from the store, writers must retry
}

// Store tracks per-entity, per-type named numeric contributions.
//
// Thread-safe: entities live in a sync.Map, each entity container has its
// own mutex, cached aggregates are read without locking.
type Store struct {
	clock    clock.Clock
	entities sync.Map // map[model.EntityID]*entityModifiers
}

// NewStore creates an empty store reading time from clk.
func NewStore(clk clock.Clock) *Store {
	return &Store{clock: clk}
}

// Apply upserts the contribution of source to (id, typ).
// duration <= 0 means permanent. Returns false when the call only
// refreshed an unexpired entry with a materially identical value.
func (s *Store) Apply(id model.EntityID, typ Type, source string, value float64, duration time.Duration) bool {
	if !typ.Valid() {
		return false
	}

	now := s.clock.Now()
	var expiresAt time.Time
	if duration > 0 {
		expiresAt = now.Add(duration)
	}

	for {
		e := s.loadOrCreate(id)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		set := e.sets[typ].Load()
		if set == nil {
			set = &sourceSet{typ: typ, sources: make(map[string]Modifier)}
			e.sets[typ].Store(set)
		}

		prev, existed := set.sources[source]
		refresh := existed && !prev.Expired(now) && math.Abs(prev.Value-value) < RefreshEpsilon

		set.sources[source] = Modifier{Source: source, Value: value, ExpiresAt: expiresAt}
		set.cached.Store(nil)
		e.mu.Unlock()

		slog.Debug("modifier applied",
			"entity", id,
			"type", typ,
			"source", source,
			"value", value,
			"duration", duration,
			"refresh", refresh)

		return !refresh
	}
}

// Multiplier returns the aggregate multiplier for (id, typ); 1.0 when nothing applies.
func (s *Store) Multiplier(id model.EntityID, typ Type) float64 {
	if !typ.Valid() {
		return 1.0
	}
	e := s.load(id)
	if e == nil {
		return 1.0
	}
	set := e.sets[typ].Load()
	if set == nil {
		return 1.0
	}

	now := s.clock.Now()
	if agg := set.cached.Load(); agg != nil && agg.validAt(now) {
		return agg.value
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// set may have been dropped by a purge while we waited for the lock.
	if e.sets[typ].Load() != set {
		return 1.0
	}
	if agg := set.cached.Load(); agg != nil && agg.validAt(now) {
		return agg.value
	}
	return set.recompute(now).value
}

// Has reports whether (id, typ) has at least one unexpired source.
func (s *Store) Has(id model.EntityID, typ Type) bool {
	if !typ.Valid() {
		return false
	}
	e := s.load(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.sets[typ].Load()
	if set == nil {
		return false
	}
	set.evict(s.clock.Now())
	return len(set.sources) > 0
}

// Remove drops one source of one type. Idempotent.
func (s *Store) Remove(id model.EntityID, typ Type, source string) bool {
	if !typ.Valid() {
		return false
	}
	e := s.load(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return removeSource(e, typ, source)
}

// RemoveSource drops source from every type of id. Idempotent.
func (s *Store) RemoveSource(id model.EntityID, source string) int {
	e := s.load(id)
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for _, typ := range Types() {
		if removeSource(e, typ, source) {
			removed++
		}
	}
	return removed
}

func removeSource(e *entityModifiers, typ Type, source string) bool {
	set := e.sets[typ].Load()
	if set == nil {
		return false
	}
	if _, ok := set.sources[source]; !ok {
		return false
	}
	delete(set.sources, source)
	set.cached.Store(nil)
	return true
}

// Active returns unexpired contributions of id grouped by type.
// Expired entries found on the way are evicted.
func (s *Store) Active(id model.EntityID) map[Type]map[string]ActiveModifier {
	out := make(map[Type]map[string]ActiveModifier)
	e := s.load(id)
	if e == nil {
		return out
	}

	now := s.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, typ := range Types() {
		set := e.sets[typ].Load()
		if set == nil {
			continue
		}
		set.evict(now)
		if len(set.sources) == 0 {
			continue
		}

		byType := make(map[string]ActiveModifier, len(set.sources))
		for name, m := range set.sources {
			remaining := -1.0
			if !m.Permanent() {
				remaining = m.ExpiresAt.Sub(now).Seconds()
			}
			byType[name] = ActiveModifier{Value: m.Value, RemainingSeconds: remaining}
		}
		out[typ] = byType
	}
	return out
}

// Purge evicts expired sources from every entity and releases empty
// containers. Live sources are never touched, so results do not change.
func (s *Store) Purge() PurgeStats {
	var stats PurgeStats
	now := s.clock.Now()

	s.entities.Range(func(key, value any) bool {
		id := key.(model.EntityID)
		e := value.(*entityModifiers)

		e.mu.Lock()
		empty := true
		for typ := range e.sets {
			set := e.sets[typ].Load()
			if set == nil {
				continue
			}
			stats.Expired += set.evict(now)
			if len(set.sources) == 0 {
				e.sets[typ].Store(nil)
				continue
			}
			empty = false
		}
		if empty && !e.removed {
			e.removed = true
			s.entities.CompareAndDelete(id, e)
			stats.DroppedEntities++
		}
		e.mu.Unlock()
		return true
	})

	return stats
}

// RemoveEntity drops every contribution of id.
func (s *Store) RemoveEntity(id model.EntityID) bool {
	value, ok := s.entities.Load(id)
	if !ok {
		return false
	}
	return s.detach(id, value.(*entityModifiers))
}

// Clear drops every entity.
func (s *Store) Clear() {
	s.entities.Range(func(key, value any) bool {
		s.detach(key.(model.EntityID), value.(*entityModifiers))
		return true
	})
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

// Len returns the number of stored sources for id, expired ones included
// until the next read or purge.
func (s *Store) Len(id model.EntityID) int {
	e := s.load(id)
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for typ := range e.sets {
		if set := e.sets[typ].Load(); set != nil {
			n += len(set.sources)
		}
	}
	return n
}

func (s *Store) detach(id model.EntityID, e *entityModifiers) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return false
	}
	e.removed = true
	s.entities.CompareAndDelete(id, e)
	return true
}

func (s *Store) load(id model.EntityID) *entityModifiers {
	value, ok := s.entities.Load(id)
	if !ok {
		return nil
	}
	return value.(*entityModifiers)
}

func (s *Store) loadOrCreate(id model.EntityID) *entityModifiers {
	if e := s.load(id); e != nil {
		return e
	}
	value, _ := s.entities.LoadOrStore(id, &entityModifiers{})
	return value.(*entityModifiers)
}
