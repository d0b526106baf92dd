package learning

import (
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// ModeSnapshot is the persisted per-mode learner state.
type ModeSnapshot struct {
	Gains                 thermal.Gains          `json:"gains"`
	PhysicsBaseline       *thermal.Gains         `json:"physics_baseline,omitempty"`
	History               []thermal.CycleMetrics `json:"cycle_history"`
	Confidence            float64                `json:"confidence"`
	ConfidenceUpdated     *time.Time             `json:"confidence_updated,omitempty"`
	CyclesSinceAdjustment int                    `json:"cycles_since_last_adjustment"`
	LastAdjustment        *time.Time             `json:"last_adjustment_time,omitempty"`
	AutoApplyCount        int                    `json:"auto_apply_count"`
}

// ValidationSnapshot is the persisted form of an open validation window.
type ValidationSnapshot struct {
	Mode              thermal.Mode `json:"mode"`
	StartedAt         time.Time    `json:"started_at"`
	BaselineOvershoot float64      `json:"baseline_overshoot"`
	Overshoots        []float64    `json:"overshoots"`
	BeforeSnapshotID  string       `json:"before_snapshot_id"`
}

// Snapshot is everything a Learner needs to resume after a restart.
type Snapshot struct {
	Modes         map[thermal.Mode]ModeSnapshot `json:"modes"`
	Validation    *ValidationSnapshot           `json:"validation,omitempty"`
	PidHistory    []PidSnapshot                 `json:"pid_history"`
	SeasonalShift SeasonalShiftState            `json:"seasonal_shift"`
}

// Export captures the learner's state.
func (l *Learner) Export() Snapshot {
	out := Snapshot{
		Modes:         make(map[thermal.Mode]ModeSnapshot, len(l.modes)),
		PidHistory:    l.snapshots.Entries(),
		SeasonalShift: l.seasonal.State(),
	}
	for mode, ms := range l.modes {
		snap := ModeSnapshot{
			Gains:                 ms.gains,
			History:               append([]thermal.CycleMetrics(nil), ms.history...),
			Confidence:            ms.confidence,
			CyclesSinceAdjustment: ms.cyclesSinceAdjust,
			AutoApplyCount:        ms.autoApplyCount,
			ConfidenceUpdated:     timePtr(ms.confidenceAt),
			LastAdjustment:        timePtr(ms.lastAdjust),
		}
		if ms.physics != nil {
			p := *ms.physics
			snap.PhysicsBaseline = &p
		}
		out.Modes[mode] = snap
	}
	if v := l.validation; v != nil {
		out.Validation = &ValidationSnapshot{
			Mode:              v.mode,
			StartedAt:         v.startedAt,
			BaselineOvershoot: v.baseline,
			Overshoots:        append([]float64(nil), v.overshoots...),
			BeforeSnapshotID:  v.beforeSnapshotID,
		}
	}
	return out
}

// Import replaces the learner's state. Missing pieces fall back to their
// zero values.
func (l *Learner) Import(s Snapshot) {
	l.modes = make(map[thermal.Mode]*modeState, len(s.Modes))
	for mode, snap := range s.Modes {
		ms := &modeState{
			gains:             snap.Gains,
			history:           append([]thermal.CycleMetrics(nil), snap.History...),
			confidence:        clamp01(snap.Confidence),
			cyclesSinceAdjust: snap.CyclesSinceAdjustment,
			autoApplyCount:    snap.AutoApplyCount,
			confidenceAt:      timeVal(snap.ConfidenceUpdated),
			lastAdjust:        timeVal(snap.LastAdjustment),
		}
		if snap.PhysicsBaseline != nil {
			p := *snap.PhysicsBaseline
			ms.physics = &p
		}
		l.modes[mode] = ms
	}
	l.validation = nil
	if v := s.Validation; v != nil {
		l.validation = &validation{
			mode:             v.Mode,
			startedAt:        v.StartedAt,
			baseline:         v.BaselineOvershoot,
			overshoots:       append([]float64(nil), v.Overshoots...),
			beforeSnapshotID: v.BeforeSnapshotID,
		}
	}
	l.snapshots.Restore(s.PidHistory)
	l.seasonal.Restore(s.SeasonalShift)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
