package modifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/model"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newStore() (*Store, *clock.Manual) {
	clk := clock.NewManual(epoch)
	return NewStore(clk), clk
}

func TestType_Aggregate(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		sum  float64
		want float64
	}{
		{"amp none", Amplification, 0, 1.0},
		{"amp positive", Amplification, 0.25, 1.25},
		{"amp floored", Amplification, -0.40, 1.0},
		{"dr partial", Reduction, 0.30, 0.70},
		{"dr full negation", Reduction, 1.0, 0.0},
		{"dr never heals", Reduction, 1.5, 0.0},
		{"dr negative sum", Reduction, -0.2, 1.2},
		{"charge dr", ChargeReduction, 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.typ.Aggregate(tt.sum), 1e-9)
		})
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	got, err := ParseType(" reduction ")
	require.NoError(t, err)
	assert.Equal(t, Reduction, got)

	_, err = ParseType("HEALING")
	assert.Error(t, err)
}

func TestStore_MultiplierDefaults(t *testing.T) {
	s, _ := newStore()
	id := model.NewEntityID()

	for _, typ := range Types() {
		assert.Equal(t, 1.0, s.Multiplier(id, typ))
		assert.False(t, s.Has(id, typ))
	}
	assert.Empty(t, s.Active(id))
}

func TestStore_TwoReductionsThenExpiry(t *testing.T) {
	s, clk := newStore()
	e := model.NewEntityID()

	s.Apply(e, Reduction, "A", 0.30, 5000*time.Millisecond)
	s.Apply(e, Reduction, "B", 0.50, 5000*time.Millisecond)

	assert.InDelta(t, 0.20, s.Multiplier(e, Reduction), 1e-9)

	clk.Advance(4999 * time.Millisecond)
	assert.InDelta(t, 0.20, s.Multiplier(e, Reduction), 1e-9, "still active just before expiry")

	clk.Advance(time.Millisecond)
	assert.Equal(t, 1.0, s.Multiplier(e, Reduction), "expired at exactly the deadline")
	assert.Equal(t, 0, s.Len(e), "read evicts expired sources")
}

func TestStore_CachedValueNotServedPastExpiry(t *testing.T) {
	s, clk := newStore()
	e := model.NewEntityID()

	s.Apply(e, Amplification, "short", 0.10, time.Second)
	s.Apply(e, Amplification, "long", 0.20, 10*time.Second)

	// Prime the cache.
	assert.InDelta(t, 1.30, s.Multiplier(e, Amplification), 1e-9)
	assert.InDelta(t, 1.30, s.Multiplier(e, Amplification), 1e-9)

	clk.Advance(time.Second)
	assert.InDelta(t, 1.20, s.Multiplier(e, Amplification), 1e-9)

	clk.Advance(9 * time.Second)
	assert.Equal(t, 1.0, s.Multiplier(e, Amplification))
}

func TestStore_AdditiveAggregation(t *testing.T) {
	tests := []struct {
		name   string
		typ    Type
		values []float64
		want   float64
	}{
		{"three reductions", Reduction, []float64{0.1, 0.2, 0.3}, 0.4},
		{"reductions to zero", Reduction, []float64{0.6, 0.4}, 0.0},
		{"reductions beyond full", Reduction, []float64{0.7, 0.7}, 0.0},
		{"amplifications", Amplification, []float64{0.15, 0.05}, 1.2},
		{"negative amplification", Amplification, []float64{-0.3, 0.1}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore()
			e := model.NewEntityID()
			for i, v := range tt.values {
				s.Apply(e, tt.typ, string(rune('a'+i)), v, 0)
			}
			assert.InDelta(t, tt.want, s.Multiplier(e, tt.typ), 1e-9)
		})
	}
}

func TestStore_SameSourceReplaces(t *testing.T) {
	s, _ := newStore()
	e := model.NewEntityID()

	assert.True(t, s.Apply(e, Reduction, "shield", 0.20, time.Minute))
	assert.True(t, s.Apply(e, Reduction, "shield", 0.40, time.Minute))

	assert.InDelta(t, 0.60, s.Multiplier(e, Reduction), 1e-9)
	assert.Equal(t, 1, s.Len(e))
}

func TestStore_RefreshDetection(t *testing.T) {
	s, clk := newStore()
	e := model.NewEntityID()

	require.True(t, s.Apply(e, Amplification, "curse", 0.25, 5*time.Second))
	before := s.Multiplier(e, Amplification)

	clk.Advance(2 * time.Second)
	assert.False(t, s.Apply(e, Amplification, "curse", 0.2505, 5*time.Second), "same value within duration is a refresh")
	// the refresh still stores the new value
	assert.InDelta(t, before, s.Multiplier(e, Amplification), 0.001)
	assert.InDelta(t, 1.2505, s.Multiplier(e, Amplification), 1e-9)

	// The refresh extended the expiry.
	clk.Advance(4 * time.Second)
	assert.True(t, s.Has(e, Amplification))

	assert.True(t, s.Apply(e, Amplification, "curse", 0.30, 5*time.Second), "value change is not a refresh")

	clk.Advance(10 * time.Second)
	assert.True(t, s.Apply(e, Amplification, "curse", 0.30, 5*time.Second), "re-apply after expiry is not a refresh")
}

func TestStore_PermanentModifier(t *testing.T) {
	s, clk := newStore()
	e := model.NewEntityID()

	s.Apply(e, Reduction, "aura", 0.10, 0)
	s.Apply(e, Reduction, "talent", 0.05, -time.Second)

	clk.Advance(24 * time.Hour)
	assert.InDelta(t, 0.85, s.Multiplier(e, Reduction), 1e-9)

	active := s.Active(e)
	require.Contains(t, active, Reduction)
	assert.Equal(t, -1.0, active[Reduction]["aura"].RemainingSeconds)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s, _ := newStore()
	e := model.NewEntityID()

	s.Apply(e, Amplification, "mark", 0.20, time.Minute)
	s.Apply(e, Reduction, "mark", 0.50, time.Minute)
	s.Apply(e, Reduction, "other", 0.10, time.Minute)

	assert.True(t, s.Remove(e, Reduction, "other"))
	assert.False(t, s.Remove(e, Reduction, "other"))
	assert.InDelta(t, 0.50, s.Multiplier(e, Reduction), 1e-9)

	assert.Equal(t, 2, s.RemoveSource(e, "mark"))
	assert.Equal(t, 0, s.RemoveSource(e, "mark"))
	assert.Equal(t, 1.0, s.Multiplier(e, Amplification))
	assert.Equal(t, 1.0, s.Multiplier(e, Reduction))

	assert.False(t, s.Remove(model.NewEntityID(), Reduction, "x"))
}

func TestStore_ActiveReportsRemaining(t *testing.T) {
	s, clk := newStore()
	e := model.NewEntityID()

	s.Apply(e, Reduction, "a", 0.30, 5*time.Second)
	s.Apply(e, Reduction, "b", 0.10, time.Second)
	s.Apply(e, ChargeReduction, "charge", 0.50, 3*time.Second)

	clk.Advance(2 * time.Second)
	active := s.Active(e)

	require.Len(t, active, 2)
	require.Len(t, active[Reduction], 1, "expired source is not reported")
	assert.InDelta(t, 3.0, active[Reduction]["a"].RemainingSeconds, 1e-9)
	assert.InDelta(t, 0.30, active[Reduction]["a"].Value, 1e-9)
	assert.InDelta(t, 1.0, active[ChargeReduction]["charge"].RemainingSeconds, 1e-9)
}

func TestStore_Purge(t *testing.T) {
	s, clk := newStore()
	mixed := model.NewEntityID()
	permanent := model.NewEntityID()
	expiring := model.NewEntityID()

	s.Apply(mixed, Reduction, "perm", 0.10, 0)
	s.Apply(mixed, Amplification, "short", 0.10, time.Second)
	s.Apply(permanent, Reduction, "perm", 0.30, 0)
	s.Apply(expiring, Reduction, "short", 0.10, time.Second)
	require.Equal(t, 3, s.EntityCount())

	clk.Advance(2 * time.Second)
	before := s.Multiplier(permanent, Reduction)
	stats := s.Purge()

	assert.Equal(t, 2, stats.Expired)
	assert.Equal(t, 1, stats.DroppedEntities)
	assert.Equal(t, 2, s.EntityCount())
	assert.Equal(t, 1, s.Len(mixed))
	assert.InDelta(t, 0.90, s.Multiplier(mixed, Reduction), 1e-9)
	assert.Equal(t, before, s.Multiplier(permanent, Reduction), "purge never changes live results")
	assert.InDelta(t, 0.70, s.Multiplier(permanent, Reduction), 1e-9)
}

func TestStore_ApplyAfterRemoveEntity(t *testing.T) {
	s, _ := newStore()
	e := model.NewEntityID()

	s.Apply(e, Reduction, "a", 0.30, 0)
	assert.True(t, s.RemoveEntity(e))
	assert.False(t, s.RemoveEntity(e))
	assert.Equal(t, 0, s.Len(e))
	assert.Equal(t, 1.0, s.Multiplier(e, Reduction))

	s.Apply(e, Reduction, "b", 0.20, 0)
	assert.InDelta(t, 0.80, s.Multiplier(e, Reduction), 1e-9)
}

func TestStore_Clear(t *testing.T) {
	s, _ := newStore()
	for range 5 {
		s.Apply(model.NewEntityID(), Amplification, "x", 0.1, 0)
	}
	require.Equal(t, 5, s.EntityCount())

	s.Clear()
	assert.Equal(t, 0, s.EntityCount())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, _ := newStore()
	e := model.NewEntityID()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source := string(rune('a' + w))
			for i := range 200 {
				s.Apply(e, Reduction, source, 0.01, time.Duration(i)*time.Millisecond)
				_ = s.Multiplier(e, Reduction)
				if i%50 == 0 {
					s.Purge()
				}
			}
		}()
	}
	wg.Wait()

	for w := range 8 {
		s.Apply(e, Reduction, string(rune('a'+w)), 0.01, 0)
	}
	assert.InDelta(t, 0.92, s.Multiplier(e, Reduction), 1e-9)
}
