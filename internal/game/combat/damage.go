package combat

import (
	"log/slog"

	"github.com/udisondev/sigils/internal/game/modifier"
	"github.com/udisondev/sigils/internal/model"
)

// Multipliers is the read side of the modifier store.
type Multipliers interface {
	Multiplier(id model.EntityID, typ modifier.Type) float64
}

// Caps bounds a single hit after modifiers are applied.
type Caps struct {
	SoftCapEnabled   bool
	SoftCapThreshold float64 // damage above this is scaled by SoftCapFalloff
	SoftCapFalloff   float64
	MaxDamagePerHit  float64 // <= 0 disables the hard cap
}

// DefaultCaps returns soft cap 20 with 0.5 falloff and a hard cap of 20.
func DefaultCaps() Caps {
	return Caps{
		SoftCapEnabled:   true,
		SoftCapThreshold: 20,
		SoftCapFalloff:   0.5,
		MaxDamagePerHit:  20,
	}
}

// Result is the outcome of one damage calculation.
type Result struct {
	Base            float64
	Damage          float64
	Amplification   float64
	Reduction       float64
	ChargeReduction float64
	SoftCapped      bool
	HardCapped      bool
}

// Modified reports whether any multiplier differed from 1.
func (r Result) Modified() bool {
	return r.Amplification != 1 || r.Reduction != 1 || r.ChargeReduction != 1
}

// Calculator layers registry multipliers and caps over incoming damage.
//
// Order: amplification, then reduction × charge reduction, then soft cap,
// hard cap and a floor at zero.
type Calculator struct {
	source Multipliers
	caps   Caps
}

func NewCalculator(source Multipliers, caps Caps) *Calculator {
	return &Calculator{source: source, caps: caps}
}

// Caps returns the configured caps.
func (c *Calculator) Caps() Caps {
	return c.caps
}

// Apply computes the damage victim takes from a hit of damage.
func (c *Calculator) Apply(victim model.EntityID, damage float64) Result {
	r := Result{
		Base:            damage,
		Amplification:   c.source.Multiplier(victim, modifier.Amplification),
		Reduction:       c.source.Multiplier(victim, modifier.Reduction),
		ChargeReduction: c.source.Multiplier(victim, modifier.ChargeReduction),
	}

	damage *= r.Amplification
	damage *= r.Reduction * r.ChargeReduction

	if c.caps.SoftCapEnabled && damage > c.caps.SoftCapThreshold {
		excess := damage - c.caps.SoftCapThreshold
		damage = c.caps.SoftCapThreshold + excess*c.caps.SoftCapFalloff
		r.SoftCapped = true
	}

	if c.caps.MaxDamagePerHit > 0 && damage > c.caps.MaxDamagePerHit {
		damage = c.caps.MaxDamagePerHit
		r.HardCapped = true
	}

	r.Damage = max(0, damage)

	if r.Modified() {
		slog.Debug("damage modified",
			"victim", victim,
			"base", r.Base,
			"damage", r.Damage,
			"amp", r.Amplification,
			"dr", r.Reduction,
			"charge_dr", r.ChargeReduction,
			"soft_capped", r.SoftCapped,
			"hard_capped", r.HardCapped)
	}
	return r
}
