package modifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/model"
)

// BenchmarkStore_Multiplier_Cached measures the damage-path read when
// the aggregate is cached. Expected: tens of ns, zero allocations.
func BenchmarkStore_Multiplier_Cached(b *testing.B) {
	s := NewStore(clock.NewManual(time.Unix(0, 0)))
	id := model.NewEntityID()
	for i := range 8 {
		s.Apply(id, Reduction, fmt.Sprintf("src-%d", i), 0.05, time.Minute)
	}
	s.Multiplier(id, Reduction)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		_ = s.Multiplier(id, Reduction)
	}
}

// BenchmarkStore_Multiplier_Recompute measures the read right after a
// write invalidated the cache.
func BenchmarkStore_Multiplier_Recompute(b *testing.B) {
	s := NewStore(clock.NewManual(time.Unix(0, 0)))
	id := model.NewEntityID()
	for i := range 8 {
		s.Apply(id, Amplification, fmt.Sprintf("src-%d", i), 0.05, 0)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		s.Apply(id, Amplification, "src-0", float64(i%2)*0.1, 0)
		_ = s.Multiplier(id, Amplification)
	}
}

// BenchmarkStore_Multiplier_Parallel measures concurrent reads across
// many entities.
func BenchmarkStore_Multiplier_Parallel(b *testing.B) {
	s := NewStore(clock.Real{})
	ids := make([]model.EntityID, 256)
	for i := range ids {
		ids[i] = model.NewEntityID()
		s.Apply(ids[i], Reduction, "ward", 0.3, 0)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = s.Multiplier(ids[i%len(ids)], Reduction)
			i++
		}
	})
}
