// Package thermal holds the value types shared by every stage of the tuning
// engine: temperature samples, operating modes, PID gains and the immutable
// per-cycle metrics record.
//
// Nothing in here has behavior beyond small accessors. The analysis, learning
// and tracking packages depend on thermal, never the other way around.
package thermal

import (
	"sort"
	"time"
)

// Sample is one timestamped temperature reading.
//
// Sequences of samples are kept in insertion order, which is also time order.
// Duplicated timestamps are allowed.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Mode is the direction a cycle drives the temperature.
type Mode string

const (
	ModeHeating Mode = "heating"
	ModeCooling Mode = "cooling"
	ModeNone    Mode = ""
)

// Valid reports whether m is heating or cooling.
func (m Mode) Valid() bool {
	return m == ModeHeating || m == ModeCooling
}

// Gains is a PID gain triple.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// InterruptionKind names what disturbed a cycle while it was being tracked.
type InterruptionKind string

const (
	InterruptionSetpointMinor   InterruptionKind = "setpoint_minor"
	InterruptionSetpointMajor   InterruptionKind = "setpoint_major"
	InterruptionModeChange      InterruptionKind = "mode_change"
	InterruptionContactPause    InterruptionKind = "contact_pause"
	InterruptionSettlingTimeout InterruptionKind = "settling_timeout"
)

// Interruption is one entry of a cycle's interruption log.
type Interruption struct {
	Time time.Time        `json:"time"`
	Kind InterruptionKind `json:"kind"`
}

// Disturbance tags attached to a cycle by the disturbance detector.
const (
	TagSolarGain        = "solar_gain"
	TagWindLoss         = "wind_loss"
	TagOutdoorTempSwing = "outdoor_temp_swing"
	TagOccupancy        = "occupancy"
)

// CycleMetrics is the record produced once per completed cycle.
//
// A CycleMetrics value is never mutated after the tracker builds it. Nullable
// measurements are pointers: nil means "not observed in this cycle".
type CycleMetrics struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Target    float64   `json:"target"`

	Overshoot        *float64 `json:"overshoot,omitempty"`
	Undershoot       *float64 `json:"undershoot,omitempty"`
	SettlingTime     *float64 `json:"settling_time,omitempty"` // minutes
	OscillationCount int      `json:"oscillation_count"`
	RiseTime         *float64 `json:"rise_time,omitempty"` // minutes

	DisturbanceTags []string       `json:"disturbance_tags,omitempty"`
	Interruptions   []Interruption `json:"interruption_log,omitempty"`

	OutdoorTempAvg           *float64 `json:"outdoor_temp_avg,omitempty"`
	IntegralAtToleranceEntry *float64 `json:"integral_at_tolerance_entry,omitempty"`
	IntegralAtSetpointCross  *float64 `json:"integral_at_setpoint_cross,omitempty"`
	DecayContribution        *float64 `json:"decay_contribution,omitempty"`
	WasOutputClamped         bool     `json:"was_output_clamped"`

	StartTemperature     float64  `json:"start_temperature"`
	EndTemperature       *float64 `json:"end_temperature,omitempty"`
	SettlingMeanAbsError *float64 `json:"settling_mean_abs_error,omitempty"`
	InterCycleDrift      *float64 `json:"inter_cycle_drift,omitempty"`
	DeadTime             *float64 `json:"dead_time,omitempty"` // minutes
	ActuatorToggleCount  int      `json:"actuator_toggle_count"`
}

// IsClean reports whether no disturbance was detected during the cycle.
func (m CycleMetrics) IsClean() bool {
	return len(m.DisturbanceTags) == 0
}

// HasTag reports whether the cycle carries the given disturbance tag.
func (m CycleMetrics) HasTag(tag string) bool {
	for _, t := range m.DisturbanceTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Duration is the wall-clock length of the cycle.
func (m CycleMetrics) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// Float returns a pointer to v. Used to fill nullable metrics.
func Float(v float64) *float64 {
	return &v
}

// Value dereferences p, returning def when p is nil.
func Value(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// SortedTags returns a sorted copy of the tag set.
func SortedTags(tags map[string]bool) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for tag, on := range tags {
		if on {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}
