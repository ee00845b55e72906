package mark

// Policy controls how re-applying an existing mark changes its expiry.
type Policy struct {
	StackingEnabled bool
	StackIncrement  float64 // seconds added on cross-group re-application
	MaxDuration     float64 // seconds; cap for refresh and accrual
}

// DefaultPolicy is used when no PolicySource is configured. Its cap
// matches the per-mark default of the config file, so a mark behaves the
// same whether or not it has a policy entry.
func DefaultPolicy() Policy {
	return Policy{
		StackingEnabled: true,
		StackIncrement:  1.0,
		MaxDuration:     3.0,
	}
}

// PolicySource resolves the stacking policy for a canonical mark name.
type PolicySource interface {
	MarkPolicy(name string) Policy
}

// StaticPolicy applies one policy to every mark.
type StaticPolicy Policy

func (p StaticPolicy) MarkPolicy(string) Policy {
	return Policy(p)
}
