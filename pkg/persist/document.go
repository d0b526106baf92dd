// Package persist stores per-zone learning state as a versioned JSON
// document in an opaque key-value store.
//
// Older documents are upgraded by a chain of pure migration functions, one
// per version step:
//
//	v1  flat, heating-only learner fields
//	v2  learner state keyed by mode, tracker markers
//	v3  adds compensation learner state
//
// A document that cannot be decoded is reported as ErrCorruptDocument; the
// Manager logs it and starts the zone from a fresh document instead.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/compensation"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// CurrentVersion is the document version written by Encode.
const CurrentVersion = 3

var (
	// ErrCorruptDocument means stored bytes could not be decoded or migrated.
	ErrCorruptDocument = errors.New("persist: corrupt document")
	// ErrUnsupportedVersion means the document was written by a newer release.
	ErrUnsupportedVersion = errors.New("persist: unsupported document version")
)

// CompensationState groups both compensation learners.
type CompensationState struct {
	First      *compensation.FirstState      `json:"first,omitempty"`
	Continuous *compensation.ContinuousState `json:"continuous,omitempty"`
}

// Document is everything one zone persists.
type Document struct {
	Version      int               `json:"version"`
	Zone         string            `json:"zone"`
	SavedAt      time.Time         `json:"saved_at"`
	Learner      learning.Snapshot `json:"learner"`
	Compensation CompensationState `json:"compensation"`
	Tracker      cycle.Markers     `json:"tracker"`
}

// NewDocument returns an empty current-version document for zone.
func NewDocument(zone string) *Document {
	d := &Document{Version: CurrentVersion, Zone: zone}
	d.normalize()
	return d
}

func (d *Document) normalize() {
	if d.Learner.Modes == nil {
		d.Learner.Modes = map[thermal.Mode]learning.ModeSnapshot{}
	}
	if d.Learner.PidHistory == nil {
		d.Learner.PidHistory = []learning.PidSnapshot{}
	}
}

// Encode serializes d at CurrentVersion.
func Encode(d *Document) ([]byte, error) {
	d.Version = CurrentVersion
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode parses stored bytes, migrating older versions forward. Absent
// fields take their zero values.
func Decode(data []byte) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrCorruptDocument)
	}
	migrated, err := Migrate(raw)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(migrated)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	var d Document
	if err := json.Unmarshal(buf, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	d.normalize()
	return &d, nil
}

// migration upgrades a raw document by one version.
type migration func(map[string]any) map[string]any

// migrations[v] upgrades a version v document to v+1.
var migrations = map[int]migration{
	1: migrateV1ToV2,
	2: migrateV2ToV3,
}

// Migrate runs the migration chain from the document's version to
// CurrentVersion. A missing version field means version 1.
func Migrate(raw map[string]any) (map[string]any, error) {
	v := documentVersion(raw)
	if v > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	if v < 1 {
		return nil, fmt.Errorf("%w: version %d", ErrCorruptDocument, v)
	}
	for ; v < CurrentVersion; v++ {
		raw = migrations[v](raw)
		raw["version"] = v + 1
	}
	return raw, nil
}

func documentVersion(raw map[string]any) int {
	switch v := raw["version"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

// v1 learner fields, stored at the top level for the heating mode only.
var v1LearnerFields = []string{
	"cycle_history",
	"confidence",
	"confidence_updated",
	"cycles_since_last_adjustment",
	"last_adjustment_time",
	"auto_apply_count",
	"physics_baseline",
}

// migrateV1ToV2 moves the flat heating learner into a mode-keyed learner
// section and the last end temperature into the tracker markers.
func migrateV1ToV2(raw map[string]any) map[string]any {
	heating := map[string]any{}
	for _, key := range v1LearnerFields {
		if v, ok := raw[key]; ok {
			heating[key] = v
			delete(raw, key)
		}
	}
	gains := map[string]any{}
	for _, key := range []string{"kp", "ki", "kd"} {
		if v, ok := raw[key]; ok {
			gains[key] = v
			delete(raw, key)
		}
	}
	heating["gains"] = gains

	learner := map[string]any{
		"modes": map[string]any{string(thermal.ModeHeating): heating},
	}
	if history, ok := raw["pid_history"].([]any); ok {
		for _, entry := range history {
			if snap, ok := entry.(map[string]any); ok {
				if _, has := snap["mode"]; !has {
					snap["mode"] = string(thermal.ModeHeating)
				}
			}
		}
		learner["pid_history"] = history
		delete(raw, "pid_history")
	}
	raw["learner"] = learner

	tracker := map[string]any{}
	if v, ok := raw["last_end_temperature"]; ok {
		tracker["last_end_temperature"] = v
		delete(raw, "last_end_temperature")
	}
	raw["tracker"] = tracker
	return raw
}

// migrateV2ToV3 adds the compensation section.
func migrateV2ToV3(raw map[string]any) map[string]any {
	if _, ok := raw["compensation"]; !ok {
		raw["compensation"] = map[string]any{}
	}
	return raw
}
