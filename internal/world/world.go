package world

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/udisondev/sigils/internal/model"
)

// Listener is called synchronously on an entity lifecycle event.
type Listener func(id model.EntityID)

// World tracks live entities and publishes their lifecycle events.
//
// Thread-safe: entities live in a sync.Map; listeners are guarded by mu.
type World struct {
	entities sync.Map // map[model.EntityID]*model.Entity
	count    atomic.Int32

	mu       sync.RWMutex
	onRemove []Listener
	onDeath  []Listener
}

// New creates an empty world.
func New() *World {
	return &World{}
}

// Add registers entity. Returns error if an entity with the same id exists.
func (w *World) Add(e *model.Entity) error {
	if _, loaded := w.entities.LoadOrStore(e.ID(), e); loaded {
		return fmt.Errorf("entity %s already in world", e.ID())
	}
	w.count.Add(1)
	return nil
}

// Spawn creates an entity of kind and adds it.
func (w *World) Spawn(name string, kind model.Kind) *model.Entity {
	for {
		e := model.NewEntity(model.NewEntityID(), name, kind)
		if err := w.Add(e); err == nil {
			return e
		}
	}
}

// Get returns entity by id, dead or alive.
func (w *World) Get(id model.EntityID) (*model.Entity, bool) {
	value, ok := w.entities.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*model.Entity), true
}

// Exists reports whether id is present and alive.
func (w *World) Exists(id model.EntityID) bool {
	e, ok := w.Get(id)
	return ok && e.IsAlive()
}

// Remove deletes the entity and notifies removal listeners.
// Listeners run before Remove returns, after the entity is gone.
func (w *World) Remove(id model.EntityID) bool {
	if _, ok := w.entities.LoadAndDelete(id); !ok {
		return false
	}
	w.count.Add(-1)

	slog.Debug("entity removed", "entity", id)
	w.notify(&w.onRemove, id)
	return true
}

// Kill marks the entity dead and notifies death listeners.
// The entity stays resolvable (dead) until Remove, so listeners can still
// inspect it. Returns false if unknown or already dead.
func (w *World) Kill(id model.EntityID) bool {
	e, ok := w.Get(id)
	if !ok || !e.Kill() {
		return false
	}

	slog.Debug("entity died", "entity", id, "name", e.Name())
	w.notify(&w.onDeath, id)
	return true
}

// OnRemove subscribes fn to removal (despawn, quit).
func (w *World) OnRemove(fn Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRemove = append(w.onRemove, fn)
}

// OnDeath subscribes fn to death. A dead entity that is later removed
// fires OnRemove as well.
func (w *World) OnDeath(fn Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDeath = append(w.onDeath, fn)
}

// Count returns the number of entities in the world (O(1)).
func (w *World) Count() int {
	return int(w.count.Load())
}

// Range calls fn for every entity until fn returns false.
func (w *World) Range(fn func(e *model.Entity) bool) {
	w.entities.Range(func(_, value any) bool {
		return fn(value.(*model.Entity))
	})
}

func (w *World) notify(set *[]Listener, id model.EntityID) {
	w.mu.RLock()
	listeners := make([]Listener, len(*set))
	copy(listeners, *set)
	w.mu.RUnlock()

	for _, fn := range listeners {
		fn(id)
	}
}
