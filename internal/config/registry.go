package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/sigils/internal/game/combat"
	"github.com/udisondev/sigils/internal/game/mark"
	"github.com/udisondev/sigils/internal/game/modifier"
)

// Sweep holds the periodic pass intervals.
type Sweep struct {
	Fast time.Duration `yaml:"fast" env:"FAST"` // marks: expire + tick (default: 100ms)
	Slow time.Duration `yaml:"slow" env:"SLOW"` // modifiers + overlay timers (default: 10s)
}

// MarkDefaults is the policy applied to marks without their own entry.
type MarkDefaults struct {
	StackingEnabled bool    `yaml:"stacking_enabled" env:"STACKING_ENABLED"`
	StackIncrement  float64 `yaml:"stack_increment" env:"STACK_INCREMENT"` // seconds
	MaxDuration     float64 `yaml:"max_duration" env:"MAX_DURATION"`       // seconds
}

// MarkPolicy overrides defaults for one mark. Unset fields fall back
// to MarkDefaults individually.
type MarkPolicy struct {
	StackingEnabled *bool    `yaml:"stacking_enabled"`
	StackIncrement  *float64 `yaml:"stack_increment"`
	MaxDuration     *float64 `yaml:"max_duration"`
}

// Marks configures mark stacking.
type Marks struct {
	Defaults MarkDefaults          `yaml:"defaults" envPrefix:"DEFAULTS_"`
	Policies map[string]MarkPolicy `yaml:"policies"` // keyed by canonical mark name
}

// Notifications toggles "effect changed" notices per modifier type.
type Notifications struct {
	Amplification   bool `yaml:"amplification" env:"AMPLIFICATION"`
	Reduction       bool `yaml:"reduction" env:"REDUCTION"`
	ChargeReduction bool `yaml:"charge_reduction" env:"CHARGE_REDUCTION"`
	Overlays        bool `yaml:"overlays" env:"OVERLAYS"`
}

// Enabled reports whether changes of typ notify the player.
func (n Notifications) Enabled(typ modifier.Type) bool {
	switch typ {
	case modifier.Amplification:
		return n.Amplification
	case modifier.Reduction:
		return n.Reduction
	case modifier.ChargeReduction:
		return n.ChargeReduction
	default:
		return false
	}
}

// Combat holds the per-hit damage caps.
type Combat struct {
	SoftCapEnabled   bool    `yaml:"soft_cap_enabled" env:"SOFT_CAP_ENABLED"`
	SoftCapThreshold float64 `yaml:"soft_cap_threshold" env:"SOFT_CAP_THRESHOLD"`
	SoftCapFalloff   float64 `yaml:"soft_cap_falloff" env:"SOFT_CAP_FALLOFF"`
	MaxDamagePerHit  float64 `yaml:"max_damage_per_hit" env:"MAX_DAMAGE_PER_HIT"` // <= 0 disables
}

// Registry holds all configuration of the sigils daemon.
type Registry struct {
	LogLevel      string `yaml:"log_level" env:"SIGILS_LOG_LEVEL"`
	MetricsAddr   string `yaml:"metrics_addr" env:"SIGILS_METRICS_ADDR"` // empty disables /metrics
	BehaviorsFile string `yaml:"behaviors_file" env:"SIGILS_BEHAVIORS_FILE"`

	Sweep         Sweep         `yaml:"sweep" envPrefix:"SIGILS_SWEEP_"`
	Marks         Marks         `yaml:"marks" envPrefix:"SIGILS_MARKS_"`
	Notifications Notifications `yaml:"notifications" envPrefix:"SIGILS_NOTIFY_"`
	Combat        Combat        `yaml:"combat" envPrefix:"SIGILS_COMBAT_"`
}

// DefaultRegistry returns Registry config with sensible defaults.
func DefaultRegistry() Registry {
	def := mark.DefaultPolicy()
	caps := combat.DefaultCaps()
	return Registry{
		LogLevel:      "info",
		MetricsAddr:   ":9102",
		BehaviorsFile: "config/behaviors.yaml",
		Sweep: Sweep{
			Fast: 100 * time.Millisecond,
			Slow: 10 * time.Second,
		},
		Marks: Marks{
			Defaults: MarkDefaults{
				StackingEnabled: def.StackingEnabled,
				StackIncrement:  def.StackIncrement,
				MaxDuration:     def.MaxDuration,
			},
		},
		Notifications: Notifications{
			Amplification: true,
			Reduction:     true,
			Overlays:      true,
		},
		Combat: Combat{
			SoftCapEnabled:   caps.SoftCapEnabled,
			SoftCapThreshold: caps.SoftCapThreshold,
			SoftCapFalloff:   caps.SoftCapFalloff,
			MaxDamagePerHit:  caps.MaxDamagePerHit,
		},
	}
}

// LoadRegistry loads registry config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadRegistry(path string) (Registry, error) {
	cfg := DefaultRegistry()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.canonicalize()
	return cfg, nil
}

// Load reads the file named by SIGILS_CONFIG, applies environment
// overrides and validates the result.
func Load() (Registry, string, error) {
	path := Path()
	cfg, err := LoadRegistry(path)
	if err != nil {
		return cfg, path, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, path, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, path, nil
}

func (r *Registry) canonicalize() {
	if len(r.Marks.Policies) == 0 {
		return
	}
	out := make(map[string]MarkPolicy, len(r.Marks.Policies))
	for name, p := range r.Marks.Policies {
		out[mark.Canonical(name)] = p
	}
	r.Marks.Policies = out
}

// MarkPolicy resolves the stacking policy of name field by field.
func (r Registry) MarkPolicy(name string) mark.Policy {
	d := r.Marks.Defaults
	p := mark.Policy{
		StackingEnabled: d.StackingEnabled,
		StackIncrement:  d.StackIncrement,
		MaxDuration:     d.MaxDuration,
	}

	o, ok := r.Marks.Policies[mark.Canonical(name)]
	if !ok {
		return p
	}
	if o.StackingEnabled != nil {
		p.StackingEnabled = *o.StackingEnabled
	}
	if o.StackIncrement != nil {
		p.StackIncrement = *o.StackIncrement
	}
	if o.MaxDuration != nil {
		p.MaxDuration = *o.MaxDuration
	}
	return p
}

// Caps returns the combat caps.
func (r Registry) Caps() combat.Caps {
	return combat.Caps{
		SoftCapEnabled:   r.Combat.SoftCapEnabled,
		SoftCapThreshold: r.Combat.SoftCapThreshold,
		SoftCapFalloff:   r.Combat.SoftCapFalloff,
		MaxDamagePerHit:  r.Combat.MaxDamagePerHit,
	}
}

// Level parses LogLevel. Unknown values yield an error and slog.LevelInfo.
func (r Registry) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(r.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", r.LogLevel, err)
	}
	return lvl, nil
}

// Validate reports every invalid setting at once.
func (r Registry) Validate() error {
	var errs []error
	if _, err := r.Level(); err != nil {
		errs = append(errs, err)
	}
	if r.Sweep.Fast <= 0 {
		errs = append(errs, fmt.Errorf("sweep.fast must be positive, got %s", r.Sweep.Fast))
	}
	if r.Sweep.Slow <= 0 {
		errs = append(errs, fmt.Errorf("sweep.slow must be positive, got %s", r.Sweep.Slow))
	}
	if r.Marks.Defaults.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("marks.defaults.max_duration must be positive, got %g", r.Marks.Defaults.MaxDuration))
	}
	if r.Marks.Defaults.StackIncrement < 0 {
		errs = append(errs, fmt.Errorf("marks.defaults.stack_increment must not be negative, got %g", r.Marks.Defaults.StackIncrement))
	}
	for _, name := range slices.Sorted(maps.Keys(r.Marks.Policies)) {
		p := r.MarkPolicy(name)
		if p.MaxDuration <= 0 {
			errs = append(errs, fmt.Errorf("marks.policies.%s.max_duration must be positive, got %g", name, p.MaxDuration))
		}
		if p.StackIncrement < 0 {
			errs = append(errs, fmt.Errorf("marks.policies.%s.stack_increment must not be negative, got %g", name, p.StackIncrement))
		}
	}
	if r.Combat.SoftCapFalloff < 0 || r.Combat.SoftCapFalloff > 1 {
		errs = append(errs, fmt.Errorf("combat.soft_cap_falloff must be within [0, 1], got %g", r.Combat.SoftCapFalloff))
	}
	return errors.Join(errs...)
}
