// Package intercept lets policy code veto attribute overlay changes
// before they are applied.
package intercept

import (
	"sort"
	"sync"

	"github.com/udisondev/sigils/internal/model"
)

// Event is a proposed overlay change. Interceptors may cancel it.
type Event struct {
	Target    model.EntityID
	Attribute model.AttributeKind
	Operation model.Operation
	Value     float64
	Name      string

	cancelled bool
}

func (e *Event) Cancel()         { e.cancelled = true }
func (e *Event) Cancelled() bool { return e.cancelled }

// Interceptor inspects proposed changes. Higher priority runs first.
type Interceptor interface {
	Priority() int
	Active() bool
	Intercept(e *Event)
}

// Func adapts a function to Interceptor. Always active.
type Func struct {
	Prio int
	Fn   func(e *Event)
}

func (f *Func) Priority() int      { return f.Prio }
func (f *Func) Active() bool       { return true }
func (f *Func) Intercept(e *Event) { f.Fn(e) }

// Manager holds interceptors per target entity.
//
// Thread-safe: protected by sync.RWMutex. Interceptors are called
// without the lock held.
type Manager struct {
	mu      sync.RWMutex
	targets map[model.EntityID][]Interceptor
}

func NewManager() *Manager {
	return &Manager{targets: make(map[model.EntityID][]Interceptor)}
}

// Register adds in for target, keeping the list sorted by priority (highest first).
// Interceptors of equal priority run in registration order.
func (m *Manager) Register(target model.EntityID, in Interceptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy on write: Fire iterates snapshots without the lock.
	old := m.targets[target]
	list := make([]Interceptor, 0, len(old)+1)
	list = append(list, old...)
	list = append(list, in)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority() > list[j].Priority()
	})
	m.targets[target] = list
}

// Unregister removes in from target. Returns false if it was not registered.
func (m *Manager) Unregister(target model.EntityID, in Interceptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.targets[target]
	for i, cur := range list {
		if cur != in {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(m.targets, target)
		} else {
			m.targets[target] = list
		}
		return true
	}
	return false
}

// UnregisterAll drops every interceptor of target.
func (m *Manager) UnregisterAll(target model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, target)
}

// Count returns the number of interceptors registered for target.
func (m *Manager) Count(target model.EntityID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.targets[target])
}

// Fire passes e through the active interceptors of its target,
// stopping once one cancels it.
func (m *Manager) Fire(e *Event) *Event {
	m.mu.RLock()
	list := m.targets[e.Target]
	m.mu.RUnlock()

	for _, in := range list {
		if !in.Active() {
			continue
		}
		in.Intercept(e)
		if e.Cancelled() {
			break
		}
	}
	return e
}

// Allow reports whether the proposed change survives interception.
func (m *Manager) Allow(e Event) bool {
	return !m.Fire(&e).Cancelled()
}
