// Command sigild hosts a registry with its sweeps and serves its metrics.
// It owns no game loop: the world starts empty, and entities and effects
// come from game code embedding internal/registry in the same process.
// Run standalone, it validates config and behaviors at startup and exposes
// the sweep and process metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/sigils/internal/clock"
	"github.com/udisondev/sigils/internal/config"
	"github.com/udisondev/sigils/internal/game/behavior"
	"github.com/udisondev/sigils/internal/game/notify"
	"github.com/udisondev/sigils/internal/metrics"
	"github.com/udisondev/sigils/internal/registry"
	"github.com/udisondev/sigils/internal/world"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfg, cfgPath, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("sigils starting", "config", cfgPath, "log_level", logLevel)

	lib, err := behavior.LoadFile(cfg.BehaviorsFile)
	if err != nil {
		return fmt.Errorf("loading behaviors: %w", err)
	}
	slog.Info("behaviors loaded", "file", cfg.BehaviorsFile, "count", lib.Len())

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// empty until the embedding game spawns entities
	w := world.New()
	reg := registry.New(registry.Options{
		Clock:     clock.Real{},
		Entities:  w,
		Config:    &cfg,
		Behaviors: lib,
		Notifier:  notify.NewLogNotifier(slog.Default()),
		Metrics:   metrics.New(promReg),
	})
	// removal and death tear down registry state before the next tick
	w.OnRemove(reg.RemoveEntity)
	w.OnDeath(reg.EntityDied)
	defer reg.Shutdown()

	g, gctx := errgroup.WithContext(ctx)

	sweeper := registry.NewSweeper(reg, cfg.Sweep.Fast, cfg.Sweep.Slow)
	g.Go(func() error {
		slog.Info("starting sweeper", "fast", cfg.Sweep.Fast, "slow", cfg.Sweep.Slow)
		if err := sweeper.Run(gctx); err != nil {
			return fmt.Errorf("sweeper: %w", err)
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(promReg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("starting metrics server", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
