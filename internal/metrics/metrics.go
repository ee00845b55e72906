// Package metrics exposes registry activity as Prometheus collectors.
//
// A nil *Registry is valid and records nothing, so stores can be built
// without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sigils"

// Registry holds all collectors of one registry instance.
type Registry struct {
	modifiersApplied *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	marksApplied     *prometheus.CounterVec
	marksExpired     *prometheus.CounterVec
	behaviorSignals  *prometheus.CounterVec
	behaviorFailures *prometheus.CounterVec
	overlays         *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	tracked          *prometheus.GaugeVec
}

// New registers the collectors on reg.
// Panics if they are already registered there, like promauto does.
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		modifiersApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modifiers_applied_total",
			Help:      "Damage modifiers applied, by type.",
		}, []string{"type"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notices sent to players, by kind.",
		}, []string{"kind"}),
		marksApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marks_applied_total",
			Help:      "Marks created, by name.",
		}, []string{"mark"}),
		marksExpired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marks_expired_total",
			Help:      "Marks expired or removed, by name.",
		}, []string{"mark"}),
		behaviorSignals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "behavior_signals_total",
			Help:      "Behavior signals dispatched, by signal.",
		}, []string{"signal"}),
		behaviorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "behavior_failures_total",
			Help:      "Behavior flows that returned an error or panicked, by behavior id.",
		}, []string{"behavior"}),
		overlays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlays_total",
			Help:      "Named attribute overlay outcomes.",
		}, []string{"outcome"}),
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweep passes.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"pass"}),
		tracked: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_entities",
			Help:      "Entities with state in a store, set after each sweep.",
		}, []string{"store"}),
	}
}

// ModifierApplied counts a damage modifier change.
func (r *Registry) ModifierApplied(typ string) {
	if r == nil {
		return
	}
	r.modifiersApplied.WithLabelValues(typ).Inc()
}

// Notification counts a notice delivered to a player.
func (r *Registry) Notification(kind string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(kind).Inc()
}

func (r *Registry) MarkApplied(name string) {
	if r == nil {
		return
	}
	r.marksApplied.WithLabelValues(name).Inc()
}

func (r *Registry) MarkExpired(name string) {
	if r == nil {
		return
	}
	r.marksExpired.WithLabelValues(name).Inc()
}

func (r *Registry) BehaviorSignal(signal string) {
	if r == nil {
		return
	}
	r.behaviorSignals.WithLabelValues(signal).Inc()
}

func (r *Registry) BehaviorFailed(behaviorID string) {
	if r == nil {
		return
	}
	r.behaviorFailures.WithLabelValues(behaviorID).Inc()
}

func (r *Registry) OverlaySet()     { r.overlay("set") }
func (r *Registry) OverlayVetoed()  { r.overlay("vetoed") }
func (r *Registry) OverlayExpired() { r.overlay("expired") }

func (r *Registry) overlay(outcome string) {
	if r == nil {
		return
	}
	r.overlays.WithLabelValues(outcome).Inc()
}

// ObserveSweep records how long one sweep pass took.
func (r *Registry) ObserveSweep(pass string, d time.Duration) {
	if r == nil {
		return
	}
	r.sweepDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// SetTracked publishes the entity count of a store.
func (r *Registry) SetTracked(store string, n int) {
	if r == nil {
		return
	}
	r.tracked.WithLabelValues(store).Set(float64(n))
}
