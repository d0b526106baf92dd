package zone

import (
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// ModeStatus summarizes the learner for one mode.
type ModeStatus struct {
	Gains          thermal.Gains `json:"gains" yaml:"gains"`
	Confidence     float64       `json:"confidence" yaml:"confidence"`
	Cycles         int           `json:"cycles" yaml:"cycles"`
	AutoApplyCount int           `json:"auto_apply_count" yaml:"auto_apply_count"`
	// Blocked explains why no adjustment may be made now ("" if one may).
	Blocked string `json:"blocked,omitempty" yaml:"blocked,omitempty"`
}

// Status is a point-in-time report of a zone.
type Status struct {
	Zone                  string                      `json:"zone" yaml:"zone"`
	Learner               learning.State              `json:"learner_state" yaml:"learner_state"`
	Tracker               cycle.State                 `json:"tracker_state" yaml:"tracker_state"`
	LearningDisabled      bool                        `json:"learning_disabled" yaml:"learning_disabled"`
	Ke                    float64                     `json:"ke" yaml:"ke"`
	CompensationConverged bool                        `json:"compensation_converged" yaml:"compensation_converged"`
	ContinuousEnabled     bool                        `json:"continuous_compensation" yaml:"continuous_compensation"`
	Modes                 map[thermal.Mode]ModeStatus `json:"modes" yaml:"modes"`
	Snapshots             int                         `json:"pid_snapshots" yaml:"pid_snapshots"`
}

// Status reports the zone's state as of now.
func (e *Engine) Status(now time.Time) Status {
	trackerState := e.tracker.State()
	disabled := e.tracker.LearningDisabled(now)

	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Zone:                  e.cfg.ID,
		Learner:               e.learner.State(),
		Tracker:               trackerState,
		LearningDisabled:      disabled,
		Ke:                    e.keLocked(),
		CompensationConverged: e.first.IsConverged(),
		ContinuousEnabled:     e.continuous.Enabled(),
		Modes:                 make(map[thermal.Mode]ModeStatus),
		Snapshots:             len(e.learner.Snapshots()),
	}
	for _, mode := range []thermal.Mode{thermal.ModeHeating, thermal.ModeCooling} {
		// Skips the unused side of a single-mode zone.
		if e.learner.CycleCount(mode) == 0 && e.learner.Gains(mode) == (thermal.Gains{}) {
			continue
		}
		_, reason := e.learner.CanAdjustWithReason(mode, now)
		st.Modes[mode] = ModeStatus{
			Gains:          e.learner.Gains(mode),
			Confidence:     e.learner.Confidence(mode, now),
			Cycles:         e.learner.CycleCount(mode),
			AutoApplyCount: e.learner.AutoApplyCount(mode),
			Blocked:        reason,
		}
	}
	return st
}
