package modifier

import (
	"fmt"
	"strings"
)

// Type is a numeric-effect category. Contributions of the same type sum
// as percentages and are turned into one multiplier by Aggregate.
type Type uint8

const (
	Amplification   Type = iota // damage taken increased
	Reduction                   // damage taken reduced
	ChargeReduction             // reduction from charge abilities

	typeCount = iota
)

// Types returns every modifier type.
func Types() []Type {
	return []Type{Amplification, Reduction, ChargeReduction}
}

func (t Type) Valid() bool {
	return t < typeCount
}

func (t Type) String() string {
	switch t {
	case Amplification:
		return "DAMAGE_AMPLIFICATION"
	case Reduction:
		return "DAMAGE_REDUCTION"
	case ChargeReduction:
		return "CHARGE_DR"
	default:
		return fmt.Sprintf("MODIFIER(%d)", uint8(t))
	}
}

// ParseType accepts the canonical names plus the short aliases
// AMPLIFICATION, REDUCTION and CHARGE_REDUCTION (case-insensitive).
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DAMAGE_AMPLIFICATION", "AMPLIFICATION", "AMP":
		return Amplification, nil
	case "DAMAGE_REDUCTION", "REDUCTION", "DR":
		return Reduction, nil
	case "CHARGE_DR", "CHARGE_REDUCTION":
		return ChargeReduction, nil
	default:
		return 0, fmt.Errorf("unknown modifier type %q", s)
	}
}

// Aggregate converts the sum of contributions into a multiplier.
// Amplification never drops below 1.0; reductions never go negative.
func (t Type) Aggregate(sum float64) float64 {
	switch t {
	case Amplification:
		return max(1.0, 1.0+sum)
	case Reduction, ChargeReduction:
		return max(0.0, 1.0-sum)
	default:
		return 1.0
	}
}
