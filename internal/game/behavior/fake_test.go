package behavior

import (
	"fmt"
	"sync"
	"time"

	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/model"
)

// fakeActions records every host call as a formatted line.
type fakeActions struct {
	mu    sync.Mutex
	calls []string
	marks map[string]bool

	onApplyMark func(id model.EntityID, name string)
}

func newFakeActions() *fakeActions {
	return &fakeActions{marks: make(map[string]bool)}
}

func (f *fakeActions) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeActions) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeActions) ApplyModifier(id model.EntityID, typ modifier.Type, source string, value float64, d time.Duration) {
	f.record("apply_modifier %s %s %s %.2f %s", id, typ, source, value, d)
}

func (f *fakeActions) RemoveModifier(id model.EntityID, typ modifier.Type, source string) bool {
	f.record("remove_modifier %s %s %s", id, typ, source)
	return true
}

func (f *fakeActions) Multiplier(id model.EntityID, typ modifier.Type) float64 {
	return 0.5
}

func (f *fakeActions) ApplyMark(id model.EntityID, name string, seconds float64, behaviorID string, owner model.EntityID, group string) {
	f.record("apply_mark %s %s %.1f %s %s %s", id, name, seconds, behaviorID, owner, group)
	f.mu.Lock()
	f.marks[name] = true
	hook := f.onApplyMark
	f.mu.Unlock()
	if hook != nil {
		hook(id, name)
	}
}

func (f *fakeActions) RemoveMark(id model.EntityID, name string) bool {
	f.record("remove_mark %s %s", id, name)
	f.mu.Lock()
	defer f.mu.Unlock()
	had := f.marks[name]
	delete(f.marks, name)
	return had
}

func (f *fakeActions) HasMark(id model.EntityID, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[name]
}

func (f *fakeActions) SetNamedOverlay(id model.EntityID, kind model.AttributeKind, name string, value float64, op model.Operation, seconds int) bool {
	f.record("set_overlay %s %s %s %.2f %s %d", id, kind, name, value, op, seconds)
	return true
}
