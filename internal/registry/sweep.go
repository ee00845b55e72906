package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/sigils/internal/game/mark"
	"github.com/udisondev/sigils/internal/game/modifier"
)

// SlowStats describes one slow pass.
type SlowStats struct {
	Modifiers modifier.PurgeStats
	Overlays  int // entities whose overlay tracking was dropped
}

// FastPass sweeps the mark store: gone entities are dropped silently,
// expired marks fire on-expire, live marks with a behavior fire on-tick.
func (r *Registry) FastPass() mark.TickStats {
	start := time.Now()
	stats := r.marks.Tick(r.entities.Exists)

	r.metrics.ObserveSweep("fast", time.Since(start))
	r.metrics.SetTracked("marks", r.marks.EntityCount())
	return stats
}

// SlowPass purges expired modifier sources and overlay tracking of gone
// entities. Modifiers of unknown ids are left to RemoveEntity.
func (r *Registry) SlowPass() SlowStats {
	start := time.Now()
	stats := SlowStats{
		Modifiers: r.modifiers.Purge(),
		Overlays:  r.overlays.Purge(r.entities.Exists),
	}

	r.metrics.ObserveSweep("slow", time.Since(start))
	r.metrics.SetTracked("modifiers", r.modifiers.EntityCount())
	r.metrics.SetTracked("overlays", r.overlays.EntityCount())

	if stats.Modifiers.Expired > 0 || stats.Modifiers.DroppedEntities > 0 || stats.Overlays > 0 {
		slog.Debug("slow sweep",
			"expired_modifiers", stats.Modifiers.Expired,
			"dropped_modifier_entities", stats.Modifiers.DroppedEntities,
			"dropped_overlay_entities", stats.Overlays)
	}
	return stats
}

// Sweeper runs the fast and slow passes of a registry on their own tickers.
type Sweeper struct {
	reg  *Registry
	fast time.Duration
	slow time.Duration
}

// NewSweeper creates a sweeper. Intervals must be positive.
func NewSweeper(reg *Registry, fast, slow time.Duration) *Sweeper {
	return &Sweeper{reg: reg, fast: fast, slow: slow}
}

// Run blocks until ctx is cancelled. A panicking pass is logged and the
// loop keeps going.
func (s *Sweeper) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop(gctx, "fast", s.fast, func() { s.reg.FastPass() })
	})
	g.Go(func() error {
		return loop(gctx, "slow", s.slow, func() { s.reg.SlowPass() })
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	return nil
}

func loop(ctx context.Context, pass string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("%s pass: non-positive interval %s", pass, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("sweep started", "pass", pass, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep stopping", "pass", pass)
			return nil
		case <-ticker.C:
			runPass(pass, fn)
		}
	}
}

func runPass(pass string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep pass panicked", "pass", pass, "panic", r)
		}
	}()
	fn()
}
