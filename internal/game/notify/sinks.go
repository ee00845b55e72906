package notify

import (
	"log/slog"
	"sync"

	"github.com/udisondev/sigils/internal/model"
)

// LogNotifier writes notices to slog. Used when no client transport is attached.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to logger (slog.Default() if nil).
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(target model.EntityID, notice Notice) {
	n.logger.Info("notice", "entity", target, "kind", notice.Kind, "text", notice.Text)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(model.EntityID, Notice) {}

// Sent is one recorded delivery.
type Sent struct {
	Target model.EntityID
	Notice Notice
}

// Recorder keeps every notice in memory.
//
// Thread-safe: protected by sync.Mutex.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Notify(target model.EntityID, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{Target: target, Notice: n})
}

// All returns a copy of every recorded delivery in order.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// For returns notices sent to target in order.
func (r *Recorder) For(target model.EntityID) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notice
	for _, s := range r.sent {
		if s.Target == target {
			out = append(out, s.Notice)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// Suppressions is the set of entities that muted notices.
// Owned by a registry instance; the zero value is ready to use.
type Suppressions struct {
	set sync.Map // map[model.EntityID]struct{}
}

// Toggle flips muting for id and returns the new state (true = muted).
func (s *Suppressions) Toggle(id model.EntityID) bool {
	if _, loaded := s.set.LoadAndDelete(id); loaded {
		return false
	}
	s.set.Store(id, struct{}{})
	return true
}

// Set mutes or unmutes id.
func (s *Suppressions) Set(id model.EntityID, muted bool) {
	if muted {
		s.set.Store(id, struct{}{})
		return
	}
	s.set.Delete(id)
}

func (s *Suppressions) Suppressed(id model.EntityID) bool {
	_, ok := s.set.Load(id)
	return ok
}

// Clear unmutes everyone.
func (s *Suppressions) Clear() {
	s.set.Clear()
}
