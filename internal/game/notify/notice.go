package notify

import (
	"fmt"
	"math"
	"time"

	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/model"
)

// Kind classifies a notice shown to the affected player.
type Kind uint8

const (
	Vulnerable Kind = iota // takes more damage
	Protected              // takes less damage
	Buff                   // attribute raised
	Debuff                 // attribute lowered
)

func (k Kind) String() string {
	switch k {
	case Vulnerable:
		return "VULNERABLE"
	case Protected:
		return "PROTECTED"
	case Buff:
		return "BUFF"
	case Debuff:
		return "DEBUFF"
	default:
		return fmt.Sprintf("NOTICE(%d)", uint8(k))
	}
}

// Notice is a one-line message for the target of a change.
type Notice struct {
	Kind Kind
	Text string
}

// ModifierNotice formats the notice for a new or changed damage modifier:
//
//	VULNERABLE! +25% damage taken (curse, 5s)
//	PROTECTED! -30% damage taken (ward)
func ModifierNotice(typ modifier.Type, source string, value float64, duration time.Duration) Notice {
	var suffix string
	if duration > 0 {
		suffix = fmt.Sprintf(", %.0fs", duration.Seconds())
	}

	pct := fmt.Sprintf("%.0f", value*100)
	if typ == modifier.Amplification {
		return Notice{Kind: Vulnerable, Text: fmt.Sprintf("VULNERABLE! +%s%% damage taken (%s%s)", pct, source, suffix)}
	}
	return Notice{Kind: Protected, Text: fmt.Sprintf("PROTECTED! -%s%% damage taken (%s%s)", pct, source, suffix)}
}

// OverlayNotice formats the buff/debuff notice for an attribute overlay.
// Returns false for a zero value, which changes nothing worth telling.
func OverlayNotice(kind model.AttributeKind, value float64) (Notice, bool) {
	switch {
	case value > 0:
		return Notice{Kind: Buff, Text: fmt.Sprintf("BUFF! +%.0f%% %s", value*100, kind.DisplayName())}, true
	case value < 0:
		return Notice{Kind: Debuff, Text: fmt.Sprintf("DEBUFF! -%.0f%% %s", math.Abs(value)*100, kind.DisplayName())}, true
	default:
		return Notice{}, false
	}
}
