package cycle

import (
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// EventKind is the closed set of lifecycle events the tracker consumes.
type EventKind string

const (
	EventCycleStarted    EventKind = "cycle_started"
	EventHeatingStarted  EventKind = "heating_started"
	EventHeatingEnded    EventKind = "heating_ended"
	EventCoolingStarted  EventKind = "cooling_started"
	EventCoolingEnded    EventKind = "cooling_ended"
	EventSettlingStarted EventKind = "settling_started"
	EventSetpointChanged EventKind = "setpoint_changed"
	EventModeChanged     EventKind = "mode_changed"
	EventContactPause    EventKind = "contact_pause"
	EventContactResume   EventKind = "contact_resume"
	EventTemperature     EventKind = "temperature_update"
)

// Kinds lists every event kind.
var Kinds = []EventKind{
	EventCycleStarted,
	EventHeatingStarted,
	EventHeatingEnded,
	EventCoolingStarted,
	EventCoolingEnded,
	EventSettlingStarted,
	EventSetpointChanged,
	EventModeChanged,
	EventContactPause,
	EventContactResume,
	EventTemperature,
}

// Event is one lifecycle event. Only the fields relevant to Kind are read.
type Event struct {
	Kind EventKind    `json:"kind" yaml:"kind"`
	Time time.Time    `json:"time" yaml:"time"`
	Mode thermal.Mode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// cycle_started, setpoint_changed
	Target    float64 `json:"target,omitempty" yaml:"target,omitempty"`
	OldTarget float64 `json:"old_target,omitempty" yaml:"old_target,omitempty"`

	// mode_changed
	OldMode thermal.Mode `json:"old_mode,omitempty" yaml:"old_mode,omitempty"`

	// temperature_update
	Temperature   float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Outdoor       *float64 `json:"outdoor,omitempty" yaml:"outdoor,omitempty"`
	Solar         *float64 `json:"solar,omitempty" yaml:"solar,omitempty"`
	Wind          *float64 `json:"wind,omitempty" yaml:"wind,omitempty"`
	Integral      *float64 `json:"integral,omitempty" yaml:"integral,omitempty"`
	Output        *float64 `json:"output,omitempty" yaml:"output,omitempty"`
	OutputClamped bool     `json:"output_clamped,omitempty" yaml:"output_clamped,omitempty"`
}

// IsActuatorOn reports whether the event turns the actuator on.
func (k EventKind) IsActuatorOn() bool {
	return k == EventHeatingStarted || k == EventCoolingStarted
}

// IsActuatorOff reports whether the event turns the actuator off.
func (k EventKind) IsActuatorOff() bool {
	return k == EventHeatingEnded || k == EventCoolingEnded
}
