package behavior

import (
	"fmt"
	"strings"

	"github.com/udisondev/sigils/internal/model"
)

// Signal is a mark lifecycle transition delivered to an attached behavior.
type Signal uint8

const (
	SignalApply  Signal = iota // once, when the mark is created
	SignalTick                 // every fast sweep while the mark is alive
	SignalExpire               // once, when the mark goes away by any path
)

func (s Signal) String() string {
	switch s {
	case SignalApply:
		return "EFFECT_STATIC"
	case SignalTick:
		return "TICK"
	case SignalExpire:
		return "EXPIRE"
	default:
		return fmt.Sprintf("SIGNAL(%d)", uint8(s))
	}
}

// ParseSignal parses a flow trigger name, case-insensitively.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EFFECT_STATIC", "STATIC", "APPLY", "ON_APPLY":
		return SignalApply, nil
	case "TICK", "ON_TICK":
		return SignalTick, nil
	case "EXPIRE", "ON_EXPIRE":
		return SignalExpire, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTrigger, s)
	}
}

// Target identifies the mark a signal is about.
// Owner is NilEntityID for ownerless marks.
type Target struct {
	Entity     model.EntityID
	Mark       string
	BehaviorID string
	Owner      model.EntityID
}
