package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AttributeKind identifies a modifiable entity attribute.
type AttributeKind uint8

const (
	AttrMovementSpeed AttributeKind = iota
	AttrMaxHealth
	AttrAttackDamage
	AttrAttackSpeed
	AttrArmor
	AttrArmorToughness
	AttrKnockbackResistance
)

var attributeNames = [...]string{
	AttrMovementSpeed:       "MOVEMENT_SPEED",
	AttrMaxHealth:           "MAX_HEALTH",
	AttrAttackDamage:        "ATTACK_DAMAGE",
	AttrAttackSpeed:         "ATTACK_SPEED",
	AttrArmor:               "ARMOR",
	AttrArmorToughness:      "ARMOR_TOUGHNESS",
	AttrKnockbackResistance: "KNOCKBACK_RESISTANCE",
}

var attributeDisplayNames = [...]string{
	AttrMovementSpeed:       "Movement Speed",
	AttrMaxHealth:           "Max Health",
	AttrAttackDamage:        "Attack Damage",
	AttrAttackSpeed:         "Attack Speed",
	AttrArmor:               "Armor",
	AttrArmorToughness:      "Armor Toughness",
	AttrKnockbackResistance: "Knockback Resistance",
}

// AllAttributeKinds returns every attribute kind in declaration order.
func AllAttributeKinds() []AttributeKind {
	kinds := make([]AttributeKind, len(attributeNames))
	for i := range attributeNames {
		kinds[i] = AttributeKind(i)
	}
	return kinds
}

func (k AttributeKind) String() string {
	if int(k) < len(attributeNames) {
		return attributeNames[k]
	}
	return fmt.Sprintf("ATTRIBUTE(%d)", uint8(k))
}

// DisplayName returns the human readable attribute name used in notices.
func (k AttributeKind) DisplayName() string {
	if int(k) < len(attributeDisplayNames) {
		return attributeDisplayNames[k]
	}
	return strings.ToLower(strings.ReplaceAll(k.String(), "_", " "))
}

// ParseAttributeKind parses "MOVEMENT_SPEED", "movement_speed" or "generic.movement_speed".
func ParseAttributeKind(s string) (AttributeKind, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "GENERIC.")
	for i, name := range attributeNames {
		if name == norm {
			return AttributeKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown attribute %q", s)
}

// Operation defines how a modifier value combines with the base value.
type Operation uint8

const (
	OpAddNumber      Operation = iota // base + v
	OpAddScalar                       // × (1 + Σv)
	OpMultiplyScalar                  // × Π(1 + v)
)

func (o Operation) String() string {
	switch o {
	case OpAddNumber:
		return "ADD_NUMBER"
	case OpAddScalar:
		return "ADD_SCALAR"
	case OpMultiplyScalar:
		return "MULTIPLY_SCALAR_1"
	default:
		return fmt.Sprintf("OPERATION(%d)", uint8(o))
	}
}

// ParseOperation parses an operation name. Accepts short forms ADD, SCALAR, MUL.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADD_NUMBER", "ADD":
		return OpAddNumber, nil
	case "ADD_SCALAR", "SCALAR":
		return OpAddScalar, nil
	case "MULTIPLY_SCALAR_1", "MULTIPLY", "MUL":
		return OpMultiplyScalar, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// AttributeModifier is a keyed adjustment installed on an AttributeInstance.
type AttributeModifier struct {
	Key   string
	Value float64
	Op    Operation
}

// AttributeInstance holds a base value and keyed modifiers.
// A key identifies at most one modifier: adding under an existing key replaces it.
//
// Thread-safe: protected by sync.RWMutex.
type AttributeInstance struct {
	mu        sync.RWMutex
	kind      AttributeKind
	base      float64
	modifiers map[string]AttributeModifier
}

// NewAttributeInstance creates an instance with no modifiers.
func NewAttributeInstance(kind AttributeKind, base float64) *AttributeInstance {
	return &AttributeInstance{
		kind:      kind,
		base:      base,
		modifiers: make(map[string]AttributeModifier),
	}
}

func (a *AttributeInstance) Kind() AttributeKind { return a.kind }

func (a *AttributeInstance) Base() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.base
}

func (a *AttributeInstance) SetBase(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = v
}

// AddModifier installs mod, replacing any modifier with the same key.
func (a *AttributeInstance) AddModifier(mod AttributeModifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modifiers[mod.Key] = mod
}

// RemoveModifier removes the modifier under key. Returns false if absent.
func (a *AttributeInstance) RemoveModifier(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.modifiers[key]; !ok {
		return false
	}
	delete(a.modifiers, key)
	return true
}

func (a *AttributeInstance) HasModifier(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.modifiers[key]
	return ok
}

func (a *AttributeInstance) Modifier(key string) (AttributeModifier, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mod, ok := a.modifiers[key]
	return mod, ok
}

// Keys returns installed modifier keys, sorted.
func (a *AttributeInstance) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	keys := make([]string, 0, len(a.modifiers))
	for k := range a.modifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the effective value:
// (base + Σadd) × (1 + Σscalar) × Π(1 + mul).
func (a *AttributeInstance) Value() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	add := 0.0
	scalar := 0.0
	mul := 1.0
	for _, mod := range a.modifiers {
		switch mod.Op {
		case OpAddNumber:
			add += mod.Value
		case OpAddScalar:
			scalar += mod.Value
		case OpMultiplyScalar:
			mul *= 1 + mod.Value
		}
	}
	return (a.base + add) * (1 + scalar) * mul
}
