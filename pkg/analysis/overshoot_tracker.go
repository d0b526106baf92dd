package analysis

import (
	"math"
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// DefaultSettlingWindow bounds how long after the actuator stops a peak still
// counts as control overshoot.
const DefaultSettlingWindow = 45 * time.Minute

// Phase is the overshoot tracker's view of the cycle.
type Phase string

const (
	PhaseRise     Phase = "rise"
	PhaseSettling Phase = "settling"
	PhaseFrozen   Phase = "frozen"
)

// PhaseAwareOvershootTracker follows a cycle sample by sample and records the
// peak reached during the settling phase, but only within a time window
// measured from when the actuator stopped.
//
// Once the window has elapsed the peak is frozen: later warming from sun or
// occupants is not the controller's doing and must not be read as overshoot.
// While the actuator is still running nothing freezes. If the cycle ends
// without an actuator-off time, Overshoot falls back to the window measured
// from the moment target was first reached.
//
// Example:
//
//	tracker := analysis.NewPhaseAwareOvershootTracker(20.0, analysis.DefaultSettlingWindow)
//	tracker.SetActuatorOff(offTime)
//	for _, s := range samples {
//		tracker.Update(s)
//	}
//	overshoot := tracker.Overshoot() // nil if target never reached
//
// The tracker works in the heating frame; feed it oriented samples for cooling.
type PhaseAwareOvershootTracker struct {
	target    float64
	window    time.Duration
	reached   bool
	reachedAt time.Time
	offAt     time.Time
	peak      float64
	// reachPeak is the peak within window of reachedAt.
	reachPeak float64
	frozen    bool
}

// NewPhaseAwareOvershootTracker creates a tracker for target. A window of
// zero or less uses DefaultSettlingWindow.
func NewPhaseAwareOvershootTracker(target float64, window time.Duration) *PhaseAwareOvershootTracker {
	if window <= 0 {
		window = DefaultSettlingWindow
	}
	return &PhaseAwareOvershootTracker{target: target, window: window}
}

// SetActuatorOff records when the heating/cooling output stopped. The window
// runs from the latest off time; it has no effect once the peak is frozen.
func (t *PhaseAwareOvershootTracker) SetActuatorOff(at time.Time) {
	if !t.frozen {
		t.offAt = at
	}
}

// SetActuatorOn clears a pending off time when the output restarts before
// the window elapsed.
func (t *PhaseAwareOvershootTracker) SetActuatorOn() {
	if !t.frozen {
		t.offAt = time.Time{}
	}
}

// SetTarget changes the target and restarts phase detection.
func (t *PhaseAwareOvershootTracker) SetTarget(target float64) {
	if target == t.target {
		return
	}
	t.target = target
	t.reached = false
	t.reachedAt = time.Time{}
	t.peak = 0
	t.reachPeak = 0
	t.frozen = false
}

// Update feeds the next reading.
func (t *PhaseAwareOvershootTracker) Update(s thermal.Sample) {
	if t.frozen {
		return
	}
	if !t.reached {
		if s.Value < t.target-TargetReachedTolerance {
			return
		}
		t.reached = true
		t.reachedAt = s.Time
		t.peak = s.Value
		t.reachPeak = s.Value
	}

	if s.Time.Sub(t.reachedAt) <= t.window {
		t.reachPeak = math.Max(t.reachPeak, s.Value)
	}
	if !t.offAt.IsZero() && s.Time.Sub(t.offAt) > t.window {
		t.frozen = true
		return
	}
	t.peak = math.Max(t.peak, s.Value)
}

// Phase returns the tracker's current phase.
func (t *PhaseAwareOvershootTracker) Phase() Phase {
	switch {
	case t.frozen:
		return PhaseFrozen
	case t.reached:
		return PhaseSettling
	default:
		return PhaseRise
	}
}

// Overshoot returns max(0, peak − target), or nil if target was never reached.
func (t *PhaseAwareOvershootTracker) Overshoot() *float64 {
	if !t.reached {
		return nil
	}
	peak := t.peak
	if t.offAt.IsZero() {
		peak = t.reachPeak
	}
	return thermal.Float(math.Max(0, peak-t.target))
}
