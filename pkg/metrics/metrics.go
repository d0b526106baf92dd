// Package metrics exposes the engine's decision points as Prometheus
// collectors. Every series is partitioned by zone; learner series also by mode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle tracker
	CyclesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "cycle",
		Name:      "completed_total",
		Help:      "Total cycles finalized with metrics",
	}, []string{"zone", "mode"})

	CyclesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "cycle",
		Name:      "dropped_total",
		Help:      "Total cycles aborted or rejected by validation",
	}, []string{"zone"})

	CyclesDisturbed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "cycle",
		Name:      "disturbed_total",
		Help:      "Total completed cycles carrying a disturbance tag",
	}, []string{"zone", "tag"})

	CycleOvershoot = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "thermotune",
		Subsystem: "cycle",
		Name:      "overshoot_celsius",
		Help:      "Overshoot of completed cycles",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2, 3},
	}, []string{"zone", "mode"})

	// Gain learner
	LearnerConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thermotune",
		Subsystem: "learner",
		Name:      "confidence",
		Help:      "Convergence confidence in [0,1]",
	}, []string{"zone", "mode"})

	LearnerGain = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thermotune",
		Subsystem: "learner",
		Name:      "gain",
		Help:      "Current PID gain by term (kp, ki, kd)",
	}, []string{"zone", "mode", "term"})

	Recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "learner",
		Name:      "recommendations_total",
		Help:      "Total gain recommendations produced",
	}, []string{"zone", "mode"})

	AutoApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "learner",
		Name:      "auto_applies_total",
		Help:      "Total gain changes applied automatically",
	}, []string{"zone", "mode"})

	AutoApplyBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "learner",
		Name:      "auto_apply_blocked_total",
		Help:      "Total auto-apply attempts blocked by a safety limit",
	}, []string{"zone", "mode"})

	ValidationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "learner",
		Name:      "validation_outcomes_total",
		Help:      "Total resolved validation windows by result",
	}, []string{"zone", "result"})

	// Compensation
	CompensationKe = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thermotune",
		Subsystem: "compensation",
		Name:      "ke",
		Help:      "Current outdoor compensation coefficient",
	}, []string{"zone"})

	CompensationConverged = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thermotune",
		Subsystem: "compensation",
		Name:      "converged",
		Help:      "1 once the compensation-first gate has converged",
	}, []string{"zone"})

	CompensationAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "compensation",
		Name:      "adjustments_total",
		Help:      "Total continuous compensation adjustments",
	}, []string{"zone"})

	// Persistence
	StateSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thermotune",
		Subsystem: "persist",
		Name:      "saves_total",
		Help:      "Total zone state writes by outcome",
	}, []string{"zone", "outcome"})
)

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// BoolGauge converts b to 0 or 1.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
