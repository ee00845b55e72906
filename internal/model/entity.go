package model

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// EntityID — стабильный идентификатор живой сущности (игрок, монстр, NPC).
// Используется как ключ верхнего уровня во всех хранилищах реестра.
type EntityID uuid.UUID

// NilEntityID is the zero id. Used as "no owner".
var NilEntityID = EntityID(uuid.Nil)

// NewEntityID returns a random id.
func NewEntityID() EntityID {
	return EntityID(uuid.New())
}

// ParseEntityID parses the canonical UUID text form.
func ParseEntityID(s string) (EntityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilEntityID, fmt.Errorf("parsing entity id %q: %w", s, err)
	}
	return EntityID(u), nil
}

func (id EntityID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero id.
func (id EntityID) IsNil() bool {
	return id == NilEntityID
}

// Kind classifies an entity. Only players observe notifications.
type Kind uint8

const (
	KindPlayer Kind = iota
	KindMonster
	KindNpc
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindMonster:
		return "monster"
	case KindNpc:
		return "npc"
	default:
		return "unknown"
	}
}

// Entity — живая цель эффектов.
// Набор атрибутов фиксируется при создании и зависит от Kind;
// значения атрибутов потокобезопасны (см. AttributeInstance).
type Entity struct {
	id         EntityID
	name       string
	kind       Kind
	attributes map[AttributeKind]*AttributeInstance

	dead atomic.Bool
}

// NewEntity создаёт сущность с базовыми атрибутами для её Kind.
func NewEntity(id EntityID, name string, kind Kind) *Entity {
	e := &Entity{
		id:         id,
		name:       name,
		kind:       kind,
		attributes: make(map[AttributeKind]*AttributeInstance),
	}
	for attr, base := range baseAttributes(kind) {
		e.attributes[attr] = NewAttributeInstance(attr, base)
	}
	return e
}

func (e *Entity) ID() EntityID { return e.id }
func (e *Entity) Name() string { return e.name }
func (e *Entity) Kind() Kind   { return e.kind }

// IsPlayer reports whether the entity can receive notifications.
func (e *Entity) IsPlayer() bool {
	return e.kind == KindPlayer
}

// IsAlive returns false after Kill.
func (e *Entity) IsAlive() bool {
	return !e.dead.Load()
}

// Kill marks the entity dead. Returns false if it was already dead.
func (e *Entity) Kill() bool {
	return e.dead.CompareAndSwap(false, true)
}

// Attribute returns the entity's instance of kind, or nil if this
// entity class has no such attribute.
func (e *Entity) Attribute(kind AttributeKind) *AttributeInstance {
	return e.attributes[kind]
}

// baseAttributes returns the attribute set and base values per entity kind.
func baseAttributes(kind Kind) map[AttributeKind]float64 {
	switch kind {
	case KindPlayer:
		return map[AttributeKind]float64{
			AttrMovementSpeed:       0.1,
			AttrMaxHealth:           20,
			AttrAttackDamage:        1,
			AttrAttackSpeed:         4,
			AttrArmor:               0,
			AttrArmorToughness:      0,
			AttrKnockbackResistance: 0,
		}
	case KindMonster:
		return map[AttributeKind]float64{
			AttrMovementSpeed:       0.23,
			AttrMaxHealth:           20,
			AttrAttackDamage:        3,
			AttrArmor:               2,
			AttrArmorToughness:      0,
			AttrKnockbackResistance: 0,
		}
	default:
		return map[AttributeKind]float64{
			AttrMovementSpeed: 0.5,
			AttrMaxHealth:     20,
		}
	}
}
