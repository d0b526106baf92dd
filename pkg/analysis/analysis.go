// Package analysis extracts performance metrics from a completed heating or
// cooling cycle.
//
// Every calculator works on a time-ordered slice of thermal.Sample readings
// and is written for the heating frame of reference (temperature rises toward
// target, overshoot is above it). Callers analysing a cooling cycle mirror the
// samples first with thermal.Orient.
//
// Nullable results are returned as *float64: nil means the metric was not
// observable in this cycle (target never reached, never settled, ...), which
// is an expected outcome rather than an error.
//
// Example:
//
//	samples, target := thermal.Orient(cycle.Samples, cycle.Target, cycle.Mode)
//	overshoot := analysis.CalculateOvershoot(samples, target, true)
//	settling := analysis.CalculateSettlingTime(samples, target, 0.2, &offTime)
//	oscillations := analysis.CountOscillations(samples, target, 0.1)
package analysis

import (
	"math"
	"time"

	"github.com/viterin/vek"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// Defaults used when callers have no installation-specific values.
const (
	// TargetReachedTolerance is how close to target counts as "reached" for
	// phase detection.
	TargetReachedTolerance = 0.05

	DefaultOscillationHysteresis = 0.1
	DefaultSettlingTolerance     = 0.2
	DefaultRiseTolerance         = 0.05
	DefaultDeadTimeThreshold     = 0.1

	// settlingConfirmSamples is how many following samples must stay in band.
	settlingConfirmSamples = 3
)

// CalculateOvershoot returns how far the temperature went past target.
//
// In phase-aware mode the cycle is split into the rise phase (before target
// is first reached within TargetReachedTolerance) and the settling phase
// (after). Only settling-phase samples count, and nil is returned when target
// was never reached. Without phase awareness the peak of the whole sequence
// is used. The result is never negative.
func CalculateOvershoot(samples []thermal.Sample, target float64, phaseAware bool) *float64 {
	if len(samples) == 0 {
		return nil
	}
	if !phaseAware {
		return thermal.Float(math.Max(0, vek.Max(thermal.Values(samples))-target))
	}

	start := -1
	for i, s := range samples {
		if s.Value >= target-TargetReachedTolerance {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	peak := vek.Max(thermal.Values(samples[start:]))
	return thermal.Float(math.Max(0, peak-target))
}

// CalculateUndershoot returns max(0, target − lowest reading) over the whole
// sequence, or nil for an empty sequence.
func CalculateUndershoot(samples []thermal.Sample, target float64) *float64 {
	if len(samples) == 0 {
		return nil
	}
	return thermal.Float(math.Max(0, target-vek.Min(thermal.Values(samples))))
}

// band is the position of a reading relative to the hysteresis band.
type band int

const (
	bandUnset band = iota
	bandAbove
	bandBelow
)

// CountOscillations counts temperature crossings of target.
//
// A reading above target+hysteresis puts the state above, one below
// target−hysteresis puts it below, and readings inside the band leave the
// state unchanged. Only an actual above↔below transition is counted, so noise
// around target does not register. Actuator on/off toggles are not counted
// here.
func CountOscillations(samples []thermal.Sample, target, hysteresis float64) int {
	state := bandUnset
	crossings := 0
	for _, s := range samples {
		next := state
		switch {
		case s.Value > target+hysteresis:
			next = bandAbove
		case s.Value < target-hysteresis:
			next = bandBelow
		}
		if state != bandUnset && next != state {
			crossings++
		}
		state = next
	}
	return crossings
}

// CalculateSettlingTime returns the minutes from reference until the
// temperature settled within tolerance of target.
//
// Settled means a sample at or after reference is within tolerance and so are
// the next three samples (or every remaining sample when fewer are left).
// A nil reference, or one earlier than the first sample, is clamped to the
// first sample's time. Returns nil when the temperature never settled.
func CalculateSettlingTime(samples []thermal.Sample, target, tolerance float64, reference *time.Time) *float64 {
	if len(samples) == 0 {
		return nil
	}
	ref := samples[0].Time
	if reference != nil && reference.After(ref) {
		ref = *reference
	}

	within := func(s thermal.Sample) bool {
		return math.Abs(s.Value-target) <= tolerance
	}

	for i, s := range samples {
		if s.Time.Before(ref) || !within(s) {
			continue
		}
		end := i + settlingConfirmSamples
		if end > len(samples)-1 {
			end = len(samples) - 1
		}
		stable := true
		for j := i + 1; j <= end; j++ {
			if !within(samples[j]) {
				stable = false
				break
			}
		}
		if stable {
			return thermal.Float(s.Time.Sub(ref).Minutes())
		}
	}
	return nil
}

// CalculateRiseTime returns the minutes from the first sample until the
// temperature first reached target − tolerance.
//
// Returns nil if the cycle started already at target or never got there.
func CalculateRiseTime(samples []thermal.Sample, startTemp, target, tolerance float64) *float64 {
	if len(samples) == 0 || startTemp >= target-tolerance {
		return nil
	}
	first := samples[0].Time
	for _, s := range samples {
		if s.Value >= target-tolerance {
			return thermal.Float(s.Time.Sub(first).Minutes())
		}
	}
	return nil
}

// CalculateSettlingMeanAbsError returns the mean |reading − target| over the
// samples at or after settlingStart (all samples when nil). Returns nil if no
// sample qualifies.
func CalculateSettlingMeanAbsError(samples []thermal.Sample, target float64, settlingStart *time.Time) *float64 {
	var errs []float64
	for _, s := range samples {
		if settlingStart != nil && s.Time.Before(*settlingStart) {
			continue
		}
		errs = append(errs, s.Value)
	}
	if len(errs) == 0 {
		return nil
	}
	errs = vek.SubNumber(errs, target)
	vek.Abs_Inplace(errs)
	return thermal.Float(vek.Mean(errs))
}

// CalculateDeadTime returns the transport delay in minutes: the time from the
// actuator first switching on until the temperature moved threshold degrees
// away from startTemp toward target. Returns nil if no response was observed.
func CalculateDeadTime(samples []thermal.Sample, actuatorOn time.Time, startTemp, threshold float64) *float64 {
	if actuatorOn.IsZero() {
		return nil
	}
	for _, s := range samples {
		if s.Time.Before(actuatorOn) {
			continue
		}
		if s.Value-startTemp >= threshold {
			return thermal.Float(s.Time.Sub(actuatorOn).Minutes())
		}
	}
	return nil
}
