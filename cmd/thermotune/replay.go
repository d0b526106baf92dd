package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/config"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/persist"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/zone"
)

// eventLog is the replay input file.
//
//	zone: living_room
//	events:
//	  - {kind: cycle_started, time: 2026-01-12T06:00:00Z, mode: heating, target: 21}
//	  - {kind: heating_started, time: 2026-01-12T06:00:00Z}
//	  - {kind: temperature_update, time: 2026-01-12T06:05:00Z, temperature: 18.4, outdoor: 4}
type eventLog struct {
	Zone   string        `yaml:"zone"`
	Events []cycle.Event `yaml:"events"`
}

func readEventLog(path string) (*eventLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	var evlog eventLog
	if err := yaml.Unmarshal(data, &evlog); err != nil {
		return nil, fmt.Errorf("parse event log: %w", err)
	}
	if len(evlog.Events) == 0 {
		return nil, fmt.Errorf("event log %s has no events", path)
	}
	for i, ev := range evlog.Events {
		if !slices.Contains(cycle.Kinds, ev.Kind) {
			return nil, fmt.Errorf("event %d: unknown kind %q", i, ev.Kind)
		}
		if ev.Time.IsZero() {
			return nil, fmt.Errorf("event %d (%s): missing time", i, ev.Kind)
		}
	}
	slices.SortStableFunc(evlog.Events, func(a, b cycle.Event) int { return a.Time.Compare(b.Time) })
	return &evlog, nil
}

type cycleLine struct {
	ID          string                    `json:"id" yaml:"id"`
	Mode        thermal.Mode              `json:"mode" yaml:"mode"`
	Start       time.Time                 `json:"start" yaml:"start"`
	End         time.Time                 `json:"end" yaml:"end"`
	Overshoot   *float64                  `json:"overshoot,omitempty" yaml:"overshoot,omitempty"`
	Settling    *float64                  `json:"settling_minutes,omitempty" yaml:"settling_minutes,omitempty"`
	Disturbed   []string                  `json:"disturbances,omitempty" yaml:"disturbances,omitempty"`
	Validation  learning.ValidationResult `json:"validation,omitempty" yaml:"validation,omitempty"`
	AutoApplied *thermal.Gains            `json:"auto_applied,omitempty" yaml:"auto_applied,omitempty"`
}

type recommendationLine struct {
	Proposed *thermal.Gains `json:"proposed,omitempty" yaml:"proposed,omitempty"`
	Rules    []string       `json:"rules,omitempty" yaml:"rules,omitempty"`
	Reason   string         `json:"reason,omitempty" yaml:"reason,omitempty"`
}

type replayReport struct {
	Zone            string                              `json:"zone" yaml:"zone"`
	Events          int                                 `json:"events" yaml:"events"`
	Cycles          []cycleLine                         `json:"cycles" yaml:"cycles"`
	Recommendations map[thermal.Mode]recommendationLine `json:"recommendations" yaml:"recommendations"`
	Notifications   []zone.Notification                 `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	Status          zone.Status                         `json:"status" yaml:"status"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	evlog, err := readEventLog(args[0])
	if err != nil {
		return err
	}
	if id, _ := cmd.Flags().GetString("zone"); id != "" {
		cfg.Zone.ID = id
	} else if evlog.Zone != "" {
		cfg.Zone.ID = evlog.Zone
	}
	drain, _ := cmd.Flags().GetBool("drain")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg.Persistence)
	if err != nil {
		return err
	}
	report, err := replay(ctx, cfg, store, evlog, drain, logger)
	if err != nil {
		return err
	}
	return printOut(cmd.OutOrStdout(), asJSON, report)
}

// replay feeds evlog through a zone engine on virtual time. It restores the
// zone's saved state first, and closes store after flushing the result.
func replay(ctx context.Context, cfg *config.Config, store persist.Store, evlog *eventLog, drain bool, logger *slog.Logger) (*replayReport, error) {
	sched := cycle.NewVirtualScheduler(evlog.Events[0].Time)
	mgr := newManager(store, cfg.Persistence, sched, logger)

	var active bool
	notifier := &zone.RecordingNotifier{}
	eng := zone.NewEngine(cfg.ZoneConfig(), cycle.ActuatorFunc(func() bool { return active }),
		zone.WithScheduler(sched),
		zone.WithPersistence(mgr),
		zone.WithNotifier(notifier),
		zone.WithLogger(logger))
	if err := eng.Restore(ctx); err != nil {
		mgr.Close(ctx)
		return nil, err
	}

	report := &replayReport{
		Zone:            cfg.Zone.ID,
		Events:          len(evlog.Events),
		Recommendations: make(map[thermal.Mode]recommendationLine),
	}
	eng.OnCycleEnded(func(ev zone.CycleEnded) {
		line := cycleLine{
			ID:         ev.Metrics.ID,
			Mode:       ev.Metrics.Mode,
			Start:      ev.Metrics.StartTime,
			End:        ev.Metrics.EndTime,
			Overshoot:  ev.Metrics.Overshoot,
			Settling:   ev.Metrics.SettlingTime,
			Disturbed:  ev.Metrics.DisturbanceTags,
			Validation: ev.Validation,
		}
		if ev.AutoApplied != nil {
			g := ev.AutoApplied.Recommendation.Proposed
			line.AutoApplied = &g
		}
		report.Cycles = append(report.Cycles, line)
	})

	for _, ev := range evlog.Events {
		sched.Advance(ev.Time)
		switch {
		case ev.Kind.IsActuatorOn():
			active = true
		case ev.Kind.IsActuatorOff():
			active = false
		}
		eng.Handle(ev)
	}
	if drain {
		last := evlog.Events[len(evlog.Events)-1].Time
		sched.Advance(last.Add(cfg.TrackerConfig().SettlingTimeoutDuration() + cfg.Persistence.SaveDelay))
	}

	now := sched.Now()
	report.Status = eng.Status(now)
	for mode := range report.Status.Modes {
		rec, reason := eng.Recommendation(mode)
		line := recommendationLine{Reason: reason}
		if rec != nil {
			line.Proposed = &rec.Proposed
			line.Rules = rec.Rules
		}
		report.Recommendations[mode] = line
	}
	report.Notifications = notifier.Sent()

	if err := mgr.Close(ctx); err != nil {
		return nil, err
	}
	logger.Info("replay finished", "zone", cfg.Zone.ID, "events", len(evlog.Events), "cycles", len(report.Cycles))
	return report, nil
}
