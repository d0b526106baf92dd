package learning

import (
	"time"

	"github.com/google/uuid"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// SnapshotReason records why gains were captured.
type SnapshotReason string

const (
	ReasonBeforeAutoApply SnapshotReason = "before_auto_apply"
	ReasonAutoApply       SnapshotReason = "auto_apply"
	ReasonManualApply     SnapshotReason = "manual_apply"
	ReasonRollback        SnapshotReason = "rollback"
	ReasonPhysicsReset    SnapshotReason = "physics_reset"
)

// PidSnapshot is one entry of the gain audit log.
type PidSnapshot struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Mode      thermal.Mode       `json:"mode,omitempty"`
	Kp        float64            `json:"kp"`
	Ki        float64            `json:"ki"`
	Kd        float64            `json:"kd"`
	Reason    SnapshotReason     `json:"reason"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Gains returns the snapshot's gains.
func (s PidSnapshot) Gains() thermal.Gains {
	return thermal.Gains{Kp: s.Kp, Ki: s.Ki, Kd: s.Kd}
}

// SnapshotHistory is the append-only gain audit log, bounded by a maximum
// with oldest-first eviction. Eviction never leaves an auto_apply entry
// without the before_auto_apply entry that precedes it.
type SnapshotHistory struct {
	max     int
	entries []PidSnapshot
}

// NewSnapshotHistory creates a history holding at most limit entries (0
// means unbounded).
func NewSnapshotHistory(limit int) *SnapshotHistory {
	return &SnapshotHistory{max: limit}
}

// Record appends a snapshot and returns it.
func (h *SnapshotHistory) Record(at time.Time, mode thermal.Mode, g thermal.Gains, reason SnapshotReason, metrics map[string]float64) PidSnapshot {
	s := PidSnapshot{
		ID:        uuid.NewString(),
		Timestamp: at,
		Mode:      mode,
		Kp:        g.Kp,
		Ki:        g.Ki,
		Kd:        g.Kd,
		Reason:    reason,
		Metrics:   metrics,
	}
	h.entries = append(h.entries, s)
	h.evict()
	return s
}

func (h *SnapshotHistory) evict() {
	if h.max <= 0 {
		return
	}
	drop := 0
	for len(h.entries)-drop > h.max {
		drop++
	}
	// an auto_apply whose before_auto_apply was evicted cannot be rolled back
	for drop < len(h.entries)-1 && h.entries[drop].Reason == ReasonAutoApply {
		drop++
	}
	if drop > 0 {
		h.entries = append(h.entries[:0], h.entries[drop:]...)
	}
}

// Entries returns a copy of the log, oldest first.
func (h *SnapshotHistory) Entries() []PidSnapshot {
	return append([]PidSnapshot(nil), h.entries...)
}

// Len returns the number of entries.
func (h *SnapshotHistory) Len() int { return len(h.entries) }

// Restore replaces the log.
func (h *SnapshotHistory) Restore(entries []PidSnapshot) {
	h.entries = append([]PidSnapshot(nil), entries...)
	h.evict()
}

// LatestBefore returns the most recent before_auto_apply snapshot for mode.
func (h *SnapshotHistory) LatestBefore(mode thermal.Mode) (PidSnapshot, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.Reason == ReasonBeforeAutoApply && e.Mode == mode {
			return e, true
		}
	}
	return PidSnapshot{}, false
}

// Find returns the snapshot with the given id.
func (h *SnapshotHistory) Find(id string) (PidSnapshot, bool) {
	for _, e := range h.entries {
		if e.ID == id {
			return e, true
		}
	}
	return PidSnapshot{}, false
}

// CountSince counts snapshots with the given reason at or after since.
func (h *SnapshotHistory) CountSince(reason SnapshotReason, since time.Time) int {
	n := 0
	for _, e := range h.entries {
		if e.Reason == reason && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n
}
