package mark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/game/behavior"
	"github.com/udisondev/sigils/internal/model"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type recorded struct {
	sig    behavior.Signal
	target behavior.Target
}

type recorder struct {
	signals []recorded
}

func (r *recorder) Dispatch(sig behavior.Signal, t behavior.Target) {
	r.signals = append(r.signals, recorded{sig: sig, target: t})
}

func (r *recorder) count(sig behavior.Signal) int {
	n := 0
	for _, s := range r.signals {
		if s.sig == sig {
			n++
		}
	}
	return n
}

type policyMap map[string]Policy

func (p policyMap) MarkPolicy(name string) Policy {
	if pol, ok := p[name]; ok {
		return pol
	}
	return DefaultPolicy()
}

func newStore(opts ...Option) (*Store, *clock.Manual, *recorder) {
	clk := clock.NewManual(epoch)
	rec := &recorder{}
	opts = append([]Option{WithDispatcher(rec)}, opts...)
	return NewStore(clk, opts...), clk, rec
}

func TestStore_ApplyCanonicalizesName(t *testing.T) {
	s, _, _ := newStore()
	e := model.NewEntityID()

	assert.True(t, s.Apply(ApplyRequest{Entity: e, Name: "burn", Duration: 3}))
	assert.False(t, s.Apply(ApplyRequest{Entity: e, Name: "Burn", Duration: 3}), "same mark, no second entry")

	assert.True(t, s.Has(e, "BURN"))
	assert.True(t, s.Has(e, "burn"))
	assert.Equal(t, []string{"BURN"}, s.Marks(e))
	assert.Equal(t, 1, s.Len(e))
}

func TestStore_EmptyNameIgnored(t *testing.T) {
	s, _, _ := newStore()
	e := model.NewEntityID()

	assert.False(t, s.Apply(ApplyRequest{Entity: e, Name: "  ", Duration: 3}))
	assert.Equal(t, 0, s.EntityCount())
}

func TestStore_ApplySignalFiresOnceAtCreation(t *testing.T) {
	s, _, rec := newStore()
	e := model.NewEntityID()
	owner := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "burn", Duration: 3, BehaviorID: "burn_dot", Owner: owner})
	s.Apply(ApplyRequest{Entity: e, Name: "burn", Duration: 3, BehaviorID: "burn_dot", Owner: owner})

	require.Len(t, rec.signals, 1)
	assert.Equal(t, behavior.SignalApply, rec.signals[0].sig)
	assert.Equal(t, behavior.Target{Entity: e, Mark: "BURN", BehaviorID: "burn_dot", Owner: owner}, rec.signals[0].target)
}

func TestStore_SameGroupRefresh(t *testing.T) {
	s, clk, _ := newStore()
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 3, Group: "fire-sigil"})
	clk.Advance(time.Second)
	require.InDelta(t, 2.0, s.Remaining(e, "BURN"), 1e-9)

	clk.Advance(500 * time.Millisecond)
	s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 2, Group: "fire-sigil"})

	assert.InDelta(t, 2.0, s.Remaining(e, "BURN"), 1e-9, "refresh resets, does not accrue")
}

func TestStore_SameGroupRefreshClampedToMax(t *testing.T) {
	s, _, _ := newStore(WithPolicies(policyMap{
		"BURN": {StackingEnabled: true, StackIncrement: 1, MaxDuration: 2},
	}))
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 1, Group: "g"})
	s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 10, Group: "g"})

	assert.InDelta(t, 2.0, s.Remaining(e, "BURN"), 1e-9)
}

func TestStore_CrossGroupAccrual(t *testing.T) {
	s, clk, _ := newStore(WithPolicies(policyMap{
		"SLOWED": {StackingEnabled: true, StackIncrement: 2, MaxDuration: 6},
	}))
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "SLOWED", Duration: 4, Group: "ice-trap"})
	clk.Advance(time.Second)
	remaining := s.Remaining(e, "SLOWED")
	require.InDelta(t, 3.0, remaining, 1e-9)

	s.Apply(ApplyRequest{Entity: e, Name: "SLOWED", Duration: 4, Group: "frost-rune"})
	assert.InDelta(t, min(remaining+2, 6), s.Remaining(e, "SLOWED"), 1e-9)
}

func TestStore_StackingNeverExceedsMax(t *testing.T) {
	s, clk, _ := newStore(WithPolicies(policyMap{
		"SLOWED": {StackingEnabled: true, StackIncrement: 2, MaxDuration: 6},
	}))
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "SLOWED", Duration: 4, Group: "a"})
	groups := []string{"b", "c", "d", "e", "f", "g", "h"}
	for i, g := range groups {
		s.Apply(ApplyRequest{Entity: e, Name: "SLOWED", Duration: 4, Group: g})
		assert.LessOrEqual(t, s.Remaining(e, "SLOWED"), 6.0, "application %d", i)
		clk.Advance(100 * time.Millisecond)
	}
}

func TestStore_StackingDisabledOverwrites(t *testing.T) {
	s, clk, _ := newStore(WithPolicies(StaticPolicy{StackingEnabled: false, StackIncrement: 5, MaxDuration: 2}))
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "ROOT", Duration: 10, Group: "a"})
	clk.Advance(time.Second)
	s.Apply(ApplyRequest{Entity: e, Name: "ROOT", Duration: 7, Group: "b"})

	assert.InDelta(t, 7.0, s.Remaining(e, "ROOT"), 1e-9, "overwrite ignores max duration")
}

func TestStore_PermanentMarks(t *testing.T) {
	s, clk, _ := newStore()
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "CURSED", Duration: 0})
	clk.Advance(time.Hour)
	assert.Equal(t, -1.0, s.Remaining(e, "CURSED"))

	s.Apply(ApplyRequest{Entity: e, Name: "CURSED", Duration: 2, Group: "other"})
	assert.Equal(t, -1.0, s.Remaining(e, "CURSED"), "accrual keeps a permanent mark permanent")

	s.Apply(ApplyRequest{Entity: e, Name: "TIMED", Duration: 2})
	s.Apply(ApplyRequest{Entity: e, Name: "TIMED", Duration: -1})
	assert.Equal(t, -1.0, s.Remaining(e, "TIMED"), "non-positive re-apply overwrites to permanent")
}

func TestStore_RemainingAbsent(t *testing.T) {
	s, _, _ := newStore()
	assert.Equal(t, 0.0, s.Remaining(model.NewEntityID(), "NOPE"))
}

func TestStore_OwnerUpdatedOnEveryCall(t *testing.T) {
	s, _, _ := newStore()
	e := model.NewEntityID()
	first := model.NewEntityID()
	second := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "HUNTED", Duration: 3, Owner: first, Group: "g"})
	assert.True(t, s.IsMarkedBy(e, first))

	s.Apply(ApplyRequest{Entity: e, Name: "HUNTED", Duration: 3, Owner: second, Group: "g"})
	assert.False(t, s.IsMarkedBy(e, first))
	assert.True(t, s.IsMarkedBy(e, second))

	s.Apply(ApplyRequest{Entity: e, Name: "HUNTED", Duration: 3})
	assert.True(t, s.IsMarkedBy(e, second), "nil owner keeps the previous owner")

	assert.False(t, s.IsMarkedBy(e, model.NilEntityID))
}

func TestStore_ExpireRemoveSymmetry(t *testing.T) {
	tests := []struct {
		name  string
		end   func(s *Store, clk *clock.Manual, e model.EntityID)
		check func(s *Store, e model.EntityID) bool
	}{
		{
			name: "natural expiry via Has",
			end:  func(_ *Store, clk *clock.Manual, _ model.EntityID) { clk.Advance(3 * time.Second) },
			check: func(s *Store, e model.EntityID) bool {
				return s.Has(e, "BURN")
			},
		},
		{
			name: "natural expiry via tick",
			end: func(s *Store, clk *clock.Manual, _ model.EntityID) {
				clk.Advance(3 * time.Second)
				s.Tick(nil)
			},
			check: func(s *Store, e model.EntityID) bool { return s.Has(e, "BURN") },
		},
		{
			name: "explicit removal",
			end: func(s *Store, _ *clock.Manual, e model.EntityID) {
				s.Remove(e, "burn")
			},
			check: func(s *Store, e model.EntityID) bool { return s.Has(e, "BURN") },
		},
		{
			name: "clear",
			end: func(s *Store, _ *clock.Manual, e model.EntityID) {
				s.Clear(e)
			},
			check: func(s *Store, e model.EntityID) bool { return s.Has(e, "BURN") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk, rec := newStore()
			e := model.NewEntityID()

			s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 3, BehaviorID: "burn_dot"})
			tt.end(s, clk, e)

			assert.False(t, tt.check(s, e))
			assert.False(t, s.Has(e, "BURN"))
			assert.Equal(t, 1, rec.count(behavior.SignalExpire))
		})
	}
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s, _, rec := newStore()
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 3, BehaviorID: "b"})
	assert.True(t, s.Remove(e, "BURN"))
	assert.False(t, s.Remove(e, "BURN"))
	assert.False(t, s.Remove(model.NewEntityID(), "BURN"))

	assert.Equal(t, 1, rec.count(behavior.SignalExpire))
}

func TestStore_ExpiredEntryReplacedOnApply(t *testing.T) {
	s, clk, rec := newStore()
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 1, BehaviorID: "b"})
	clk.Advance(2 * time.Second)

	assert.True(t, s.Apply(ApplyRequest{Entity: e, Name: "BURN", Duration: 5, BehaviorID: "b"}))
	require.Len(t, rec.signals, 3)
	assert.Equal(t, behavior.SignalApply, rec.signals[0].sig)
	assert.Equal(t, behavior.SignalExpire, rec.signals[1].sig)
	assert.Equal(t, behavior.SignalApply, rec.signals[2].sig)
	assert.InDelta(t, 5.0, s.Remaining(e, "BURN"), 1e-9)
}

func TestStore_Tick(t *testing.T) {
	s, clk, rec := newStore()
	alive := model.NewEntityID()
	gone := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: alive, Name: "BURN", Duration: 1, BehaviorID: "burn"})
	s.Apply(ApplyRequest{Entity: alive, Name: "PLAIN", Duration: 10})
	s.Apply(ApplyRequest{Entity: alive, Name: "POISON", Duration: 10, BehaviorID: "poison"})
	s.Apply(ApplyRequest{Entity: gone, Name: "BURN", Duration: 10, BehaviorID: "burn"})
	rec.signals = nil

	exists := func(id model.EntityID) bool { return id != gone }

	stats := s.Tick(exists)
	assert.Equal(t, TickStats{Ticked: 2, Expired: 0, DroppedEntities: 1}, stats)
	assert.Equal(t, 2, rec.count(behavior.SignalTick))
	assert.Equal(t, 0, rec.count(behavior.SignalExpire), "gone entities get no signals")
	assert.Equal(t, 1, s.EntityCount())

	clk.Advance(time.Second)
	rec.signals = nil
	stats = s.Tick(exists)
	assert.Equal(t, TickStats{Ticked: 1, Expired: 1}, stats)
	assert.Equal(t, 1, rec.count(behavior.SignalExpire))
	assert.Equal(t, []string{"PLAIN", "POISON"}, s.Marks(alive))
}

func TestStore_TickReleasesEmptyEntities(t *testing.T) {
	s, clk, _ := newStore()
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "X", Duration: 1})
	clk.Advance(time.Second)
	s.Tick(nil)

	assert.Equal(t, 0, s.EntityCount())

	s.Apply(ApplyRequest{Entity: e, Name: "Y", Duration: 1})
	assert.True(t, s.Has(e, "Y"))
}

func TestStore_DropFiresNothing(t *testing.T) {
	s, _, rec := newStore()
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "A", Duration: 3, BehaviorID: "a"})
	s.Apply(ApplyRequest{Entity: e, Name: "B", Duration: 3, BehaviorID: "b"})
	rec.signals = nil

	assert.Equal(t, 2, s.Drop(e))
	assert.Empty(t, rec.signals)
	assert.Equal(t, 0, s.Len(e))
}

func TestStore_InfoSorted(t *testing.T) {
	s, _, _ := newStore()
	e := model.NewEntityID()
	owner := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "zeta", Duration: 0})
	s.Apply(ApplyRequest{Entity: e, Name: "alpha", Duration: 2, Owner: owner, BehaviorID: "b", Group: "g"})

	infos := s.Info(e)
	require.Len(t, infos, 2)
	assert.Equal(t, "ALPHA", infos[0].Name)
	assert.Equal(t, owner, infos[0].Owner)
	assert.Equal(t, "g", infos[0].Group)
	assert.Equal(t, epoch.Add(2*time.Second), infos[0].ExpiresAt)
	assert.True(t, infos[1].Permanent())
}

func TestStore_DispatcherMayReenter(t *testing.T) {
	clk := clock.NewManual(epoch)
	var s *Store
	s = NewStore(clk, WithDispatcher(DispatcherFunc(func(sig behavior.Signal, t behavior.Target) {
		switch sig {
		case behavior.SignalApply:
			s.Apply(ApplyRequest{Entity: t.Entity, Name: "AFTERGLOW", Duration: 5})
		case behavior.SignalExpire:
			s.Remove(t.Entity, "AFTERGLOW")
		}
	})))
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "FLARE", Duration: 1, BehaviorID: "flare"})
	assert.True(t, s.Has(e, "AFTERGLOW"))

	s.Remove(e, "FLARE")
	assert.False(t, s.Has(e, "AFTERGLOW"))
}

type countingObserver struct {
	applied, expired int
}

func (o *countingObserver) MarkApplied(string) { o.applied++ }
func (o *countingObserver) MarkExpired(string) { o.expired++ }

func TestStore_Observer(t *testing.T) {
	obs := &countingObserver{}
	s, clk, _ := newStore(WithObserver(obs))
	e := model.NewEntityID()

	s.Apply(ApplyRequest{Entity: e, Name: "A", Duration: 1})
	// cross-group re-apply accrues A to 2s
	s.Apply(ApplyRequest{Entity: e, Name: "A", Duration: 1})
	s.Apply(ApplyRequest{Entity: e, Name: "B", Duration: 5})
	clk.Advance(2 * time.Second)
	s.Tick(nil)
	s.Remove(e, "B")

	assert.Equal(t, 2, obs.applied)
	assert.Equal(t, 2, obs.expired)
}

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, Policy{StackingEnabled: true, StackIncrement: 1, MaxDuration: 3}, DefaultPolicy())

	s, clk, _ := newStore()
	e := model.NewEntityID()
	s.Apply(ApplyRequest{Entity: e, Name: "X", Duration: 2.5})
	s.Apply(ApplyRequest{Entity: e, Name: "X", Duration: 2.5})

	assert.InDelta(t, 3.0, s.Remaining(e, "X"), 1e-9, "accrual clamps to the default cap")
	clk.Advance(3 * time.Second)
	assert.False(t, s.Has(e, "X"))
}
