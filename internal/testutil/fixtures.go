package testutil

import (
	"testing"
	"time"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/model"
	"github.com/udisondev/sigils/internal/world"
)

// Epoch — стартовое время всех ручных часов в тестах.
var Epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// Clock returns a manual clock set to Epoch.
func Clock() *clock.Manual {
	return clock.NewManual(Epoch)
}

// Scene is a world with one entity of each class, driven by a manual clock.
type Scene struct {
	Clock   *clock.Manual
	World   *world.World
	Player  *model.Entity
	Monster *model.Entity
	Npc     *model.Entity
}

// NewScene builds a fresh scene for t.
func NewScene(t testing.TB) *Scene {
	t.Helper()

	w := world.New()
	return &Scene{
		Clock:   Clock(),
		World:   w,
		Player:  w.Spawn("Alice", model.KindPlayer),
		Monster: w.Spawn("Skeleton", model.KindMonster),
		Npc:     w.Spawn("Merchant", model.KindNpc),
	}
}

// Advance moves the scene clock by d, firing due timers.
func (s *Scene) Advance(d time.Duration) {
	s.Clock.Advance(d)
}
