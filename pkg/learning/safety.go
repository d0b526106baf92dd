package learning

import (
	"fmt"
	"math"
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/filter"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// SafetyConfig bounds how far and how often gains may change without a human.
type SafetyConfig struct {
	// MaxLifetimeAutoApplies caps auto-applies across both modes.
	MaxLifetimeAutoApplies int
	// MaxSeasonalAutoApplies caps auto-applies within SeasonalWindow.
	MaxSeasonalAutoApplies int
	SeasonalWindow         time.Duration
	// MaxDriftPercent caps the deviation of any gain from the physics baseline.
	MaxDriftPercent float64

	// SeasonalShiftThreshold is the outdoor baseline shift (°C) that starts
	// a cooldown.
	SeasonalShiftThreshold  float64
	SeasonalShiftMinSamples int
	SeasonalShiftInterval   time.Duration
	SeasonalShiftCooldown   time.Duration
	OutdoorBaseline         filter.Config
}

// DefaultSafetyConfig returns the standard limits.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MaxLifetimeAutoApplies:  20,
		MaxSeasonalAutoApplies:  5,
		SeasonalWindow:          90 * 24 * time.Hour,
		MaxDriftPercent:         50,
		SeasonalShiftThreshold:  10,
		SeasonalShiftMinSamples: 10,
		SeasonalShiftInterval:   24 * time.Hour,
		SeasonalShiftCooldown:   7 * 24 * time.Hour,
		OutdoorBaseline:         filter.OutdoorBaselineConfig(),
	}
}

// SeasonalShiftState is the persisted form of a SeasonalShiftDetector.
type SeasonalShiftState struct {
	Baseline      float64    `json:"baseline"`
	Covariance    float64    `json:"covariance"`
	Samples       int        `json:"samples"`
	Reference     *float64   `json:"reference,omitempty"`
	LastCheck     *time.Time `json:"last_check,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// SeasonalShiftDetector follows the outdoor-temperature baseline and flags
// a change of season. Gains tuned for January are wrong for April; the
// cooldown keeps auto-apply from chasing the transition.
type SeasonalShiftDetector struct {
	cfg           SafetyConfig
	baseline      *filter.Kalman
	reference     *float64
	lastCheck     time.Time
	cooldownUntil time.Time
}

// NewSeasonalShiftDetector creates a detector.
func NewSeasonalShiftDetector(cfg SafetyConfig) *SeasonalShiftDetector {
	return &SeasonalShiftDetector{cfg: cfg, baseline: filter.NewKalman(cfg.OutdoorBaseline)}
}

// Record folds an outdoor reading into the baseline.
func (d *SeasonalShiftDetector) Record(outdoor float64) {
	if math.IsNaN(outdoor) {
		return
	}
	d.baseline.Process(outdoor)
}

// Baseline returns the current outdoor baseline estimate.
func (d *SeasonalShiftDetector) Baseline() float64 { return d.baseline.State() }

// Uncertainty is the standard deviation of the baseline estimate in °C.
func (d *SeasonalShiftDetector) Uncertainty() float64 { return d.baseline.StdDev() }

// Check compares the baseline with the reference at most once per
// SeasonalShiftInterval. A shift of at least SeasonalShiftThreshold starts
// the cooldown, moves the reference, and returns true.
func (d *SeasonalShiftDetector) Check(now time.Time) bool {
	if !d.lastCheck.IsZero() && now.Sub(d.lastCheck) < d.cfg.SeasonalShiftInterval {
		return false
	}
	if d.baseline.Observations() < d.cfg.SeasonalShiftMinSamples {
		return false
	}
	d.lastCheck = now
	current := d.baseline.State()
	if d.reference == nil {
		d.reference = &current
		return false
	}
	if math.Abs(current-*d.reference) < d.cfg.SeasonalShiftThreshold {
		return false
	}
	d.reference = &current
	d.cooldownUntil = now.Add(d.cfg.SeasonalShiftCooldown)
	return true
}

// CooldownUntil returns the end of the active cooldown, if any.
func (d *SeasonalShiftDetector) CooldownUntil(now time.Time) (time.Time, bool) {
	if now.Before(d.cooldownUntil) {
		return d.cooldownUntil, true
	}
	return time.Time{}, false
}

// State returns the persistable state.
func (d *SeasonalShiftDetector) State() SeasonalShiftState {
	st := SeasonalShiftState{
		Baseline:   d.baseline.State(),
		Covariance: d.baseline.Covariance(),
		Samples:    d.baseline.Observations(),
	}
	if d.reference != nil {
		ref := *d.reference
		st.Reference = &ref
	}
	if !d.lastCheck.IsZero() {
		at := d.lastCheck
		st.LastCheck = &at
	}
	if !d.cooldownUntil.IsZero() {
		until := d.cooldownUntil
		st.CooldownUntil = &until
	}
	return st
}

// Restore replaces the detector's state.
func (d *SeasonalShiftDetector) Restore(st SeasonalShiftState) {
	d.baseline.Reset()
	if st.Samples > 0 {
		d.baseline.SetState(st.Baseline, st.Covariance, st.Samples)
	}
	d.reference = nil
	if st.Reference != nil {
		ref := *st.Reference
		d.reference = &ref
	}
	d.lastCheck = time.Time{}
	if st.LastCheck != nil {
		d.lastCheck = *st.LastCheck
	}
	d.cooldownUntil = time.Time{}
	if st.CooldownUntil != nil {
		d.cooldownUntil = *st.CooldownUntil
	}
}

// maxDriftPercent returns the largest relative deviation, in percent, of any
// gain from its baseline. Zero baseline gains are skipped.
func maxDriftPercent(current, baseline thermal.Gains) float64 {
	drift := 0.0
	pairs := [][2]float64{{current.Kp, baseline.Kp}, {current.Ki, baseline.Ki}, {current.Kd, baseline.Kd}}
	for _, p := range pairs {
		if p[1] == 0 {
			continue
		}
		drift = math.Max(drift, 100*math.Abs(p[0]-p[1])/math.Abs(p[1]))
	}
	return drift
}

func lifetimeBlock(total, limit int) string {
	if limit <= 0 || total < limit {
		return ""
	}
	return fmt.Sprintf("lifetime auto-apply limit reached (%d/%d), manual review required", total, limit)
}
