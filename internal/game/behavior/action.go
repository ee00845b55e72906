package behavior

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/sigils/internal/model"
)

// Action is a single step of a StepFlow.
type Action interface {
	Name() string
	Run(ctx *Context) error
}

// ActionFactory builds an action from its YAML params.
type ActionFactory func(params map[string]string) (Action, error)

var (
	actionMu       sync.RWMutex
	actionRegistry = map[string]ActionFactory{}
)

// RegisterAction registers an action factory by name.
// Built-in actions register themselves in init().
func RegisterAction(name string, factory ActionFactory) {
	actionMu.Lock()
	defer actionMu.Unlock()
	actionRegistry[strings.ToLower(name)] = factory
}

// NewAction creates an action by name using the registered factory.
func NewAction(name string, params map[string]string) (Action, error) {
	actionMu.RLock()
	factory, ok := actionRegistry[strings.ToLower(name)]
	actionMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	action, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", name, err)
	}
	return action, nil
}

// ActionNames returns registered action names, sorted.
func ActionNames() []string {
	actionMu.RLock()
	defer actionMu.RUnlock()

	names := make([]string, 0, len(actionRegistry))
	for name := range actionRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// params wraps step parameters with typed accessors.
type params map[string]string

func (p params) required(key string) (string, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidParam, key)
	}
	return v, nil
}

func (p params) float(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(p[key])
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidParam, key, err)
	}
	return v, nil
}

func (p params) int(key string, def int) (int, error) {
	raw := strings.TrimSpace(p[key])
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidParam, key, err)
	}
	return v, nil
}

// duration accepts Go duration strings ("5s", "1500ms") or plain milliseconds.
func (p params) duration(key string) (time.Duration, error) {
	raw := strings.TrimSpace(p[key])
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidParam, key, err)
	}
	return d, nil
}

// Subject selects which entity of the context an action affects.
type Subject uint8

const (
	SubjectTarget Subject = iota // the marked entity
	SubjectOwner                 // whoever applied the mark
)

func (p params) subject() (Subject, error) {
	switch strings.ToLower(strings.TrimSpace(p["on"])) {
	case "", "target", "self":
		return SubjectTarget, nil
	case "owner", "caster":
		return SubjectOwner, nil
	default:
		return 0, fmt.Errorf("%w: \"on\" must be target or owner, got %q", ErrInvalidParam, p["on"])
	}
}

func (s Subject) resolve(ctx *Context) model.EntityID {
	if s == SubjectOwner {
		return ctx.Owner
	}
	return ctx.Target
}
