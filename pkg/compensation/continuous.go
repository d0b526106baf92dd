package compensation

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// CompensationObservation pairs a steady-state output level with the
// outdoor temperature at which it was needed.
type CompensationObservation struct {
	Timestamp           time.Time `json:"timestamp"`
	OutdoorTemp         float64   `json:"outdoor_temp"`
	SteadyOutputPercent float64   `json:"steady_output_percent"`
	IndoorTemp          float64   `json:"indoor_temp"`
	TargetTemp          float64   `json:"target_temp"`
}

// ContinuousConfig configures the continuous adjuster.
type ContinuousConfig struct {
	MaxObservations int
	MinObservations int
	MinOutdoorRange float64
	// CorrelationThreshold is the |r| beyond which Ke is nudged.
	CorrelationThreshold float64
	// Step is the fixed Ke change per adjustment.
	Step float64
	// Interval is the minimum time between adjustments.
	Interval time.Duration
	KeMin    float64
	KeMax    float64
}

// DefaultContinuousConfig returns the standard continuous-adjuster settings.
func DefaultContinuousConfig() ContinuousConfig {
	return ContinuousConfig{
		MaxObservations:      100,
		MinObservations:      12,
		MinOutdoorRange:      3.0,
		CorrelationThreshold: 0.3,
		Step:                 0.05,
		Interval:             24 * time.Hour,
		KeMin:                0.0,
		KeMax:                2.0,
	}
}

// Adjustment describes a Ke change made by the continuous adjuster.
type Adjustment struct {
	Time        time.Time `json:"time"`
	Previous    float64   `json:"previous"`
	Ke          float64   `json:"ke"`
	Correlation float64   `json:"correlation"`
	Reason      string    `json:"reason"`
}

// ContinuousState is the persisted form of a ContinuousAdjuster.
type ContinuousState struct {
	Enabled        bool                      `json:"enabled"`
	Ke             float64                   `json:"ke"`
	Observations   []CompensationObservation `json:"observations"`
	LastAdjustment *time.Time                `json:"last_adjustment,omitempty"`
}

// ContinuousAdjuster nudges Ke once the gains have converged.
//
// If steady output still rises as it gets colder (negative correlation
// between outdoor temperature and output), the integral is carrying load
// that Ke should carry: Ke goes up one step. A positive correlation means
// Ke over-compensates: Ke goes down one step. Each change clears the
// observations so the next decision is made against the new baseline.
type ContinuousAdjuster struct {
	cfg    ContinuousConfig
	logger *slog.Logger

	enabled    bool
	ke         float64
	obs        []CompensationObservation
	lastAdjust time.Time
}

// NewContinuousAdjuster creates a disabled adjuster. A nil logger uses
// slog.Default().
func NewContinuousAdjuster(cfg ContinuousConfig, logger *slog.Logger) *ContinuousAdjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContinuousAdjuster{cfg: cfg, logger: logger.With("component", "compensation_continuous")}
}

// Enable starts continuous learning from the given coefficient.
func (a *ContinuousAdjuster) Enable(ke float64) {
	if !a.enabled {
		a.logger.Info("continuous compensation learning enabled", "ke", ke)
	}
	a.enabled = true
	a.ke = clamp(ke, a.cfg.KeMin, a.cfg.KeMax)
}

// Disable stops learning and drops pending observations.
func (a *ContinuousAdjuster) Disable() {
	a.enabled = false
	a.obs = nil
}

// Enabled reports whether the adjuster is collecting observations.
func (a *ContinuousAdjuster) Enabled() bool { return a.enabled }

// Ke returns the current coefficient.
func (a *ContinuousAdjuster) Ke() float64 { return a.ke }

// ObservationCount returns the number of pending observations.
func (a *ContinuousAdjuster) ObservationCount() int { return len(a.obs) }

// AddObservation records an observation. It returns false when the adjuster
// is disabled.
func (a *ContinuousAdjuster) AddObservation(o CompensationObservation) bool {
	if !a.enabled {
		return false
	}
	a.obs = append(a.obs, o)
	if limit := a.cfg.MaxObservations; limit > 0 && len(a.obs) > limit {
		a.obs = append(a.obs[:0], a.obs[len(a.obs)-limit:]...)
	}
	return true
}

// CanAdjustWithReason reports whether the rate limit allows an adjustment
// at now, and if not, why.
func (a *ContinuousAdjuster) CanAdjustWithReason(now time.Time) (bool, string) {
	if a.lastAdjust.IsZero() {
		return true, ""
	}
	elapsed := now.Sub(a.lastAdjust)
	if elapsed >= a.cfg.Interval {
		return true, ""
	}
	return false, fmt.Sprintf("adjusted %s ago, %s remaining",
		elapsed.Round(time.Minute), (a.cfg.Interval - elapsed).Round(time.Minute))
}

// Evaluate correlates the pending observations and, when the correlation is
// strong enough and the rate limit allows, changes Ke by one step. It
// returns nil when nothing changed.
func (a *ContinuousAdjuster) Evaluate(now time.Time) *Adjustment {
	if !a.enabled || len(a.obs) < a.cfg.MinObservations {
		return nil
	}
	if ok, reason := a.CanAdjustWithReason(now); !ok {
		a.logger.Debug("compensation adjustment rate limited", "reason", reason)
		return nil
	}

	outdoor := make([]float64, len(a.obs))
	output := make([]float64, len(a.obs))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, o := range a.obs {
		outdoor[i] = o.OutdoorTemp
		output[i] = o.SteadyOutputPercent
		lo = math.Min(lo, o.OutdoorTemp)
		hi = math.Max(hi, o.OutdoorTemp)
	}
	if hi-lo < a.cfg.MinOutdoorRange {
		return nil
	}
	r, ok := Correlation(outdoor, output)
	if !ok {
		return nil
	}

	var next float64
	var reason string
	switch {
	case r < -a.cfg.CorrelationThreshold:
		next = a.ke + a.cfg.Step
		reason = "insufficient compensation"
	case r > a.cfg.CorrelationThreshold:
		next = a.ke - a.cfg.Step
		reason = "over-compensation"
	default:
		return nil
	}
	next = clamp(next, a.cfg.KeMin, a.cfg.KeMax)
	if next == a.ke {
		return nil
	}

	adj := &Adjustment{Time: now, Previous: a.ke, Ke: next, Correlation: r, Reason: reason}
	a.ke = next
	a.lastAdjust = now
	a.obs = nil
	a.logger.Info("compensation adjusted",
		"previous", adj.Previous,
		"ke", adj.Ke,
		"correlation", r,
		"reason", reason)
	return adj
}

// State returns the persistable state.
func (a *ContinuousAdjuster) State() ContinuousState {
	st := ContinuousState{
		Enabled:      a.enabled,
		Ke:           a.ke,
		Observations: append([]CompensationObservation(nil), a.obs...),
	}
	if !a.lastAdjust.IsZero() {
		at := a.lastAdjust
		st.LastAdjustment = &at
	}
	return st
}

// Restore replaces the adjuster's state.
func (a *ContinuousAdjuster) Restore(st ContinuousState) {
	a.enabled = st.Enabled
	a.ke = st.Ke
	a.obs = append([]CompensationObservation(nil), st.Observations...)
	a.lastAdjust = time.Time{}
	if st.LastAdjustment != nil {
		a.lastAdjust = *st.LastAdjustment
	}
}
