package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/config"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/persist"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

var t0 = time.Date(2026, 1, 12, 6, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

// cycleEvents builds one heating cycle that peaks 0.3 °C above 21 °C.
func cycleEvents(start int) []cycle.Event {
	evs := []cycle.Event{
		{Kind: cycle.EventCycleStarted, Time: at(start), Mode: thermal.ModeHeating, Target: 21},
		{Kind: cycle.EventHeatingStarted, Time: at(start)},
	}
	for i, v := range []float64{18, 18.5, 19.2, 20, 20.9, 21, 21.3} {
		evs = append(evs, cycle.Event{Kind: cycle.EventTemperature, Time: at(start + 5*i), Temperature: v, Outdoor: thermal.Float(5)})
	}
	evs = append(evs,
		cycle.Event{Kind: cycle.EventHeatingEnded, Time: at(start + 30)},
		cycle.Event{Kind: cycle.EventSettlingStarted, Time: at(start + 30)})
	for i, v := range []float64{21.15, 21.05, 21, 21, 21, 21, 21, 21, 21, 21} {
		evs = append(evs, cycle.Event{Kind: cycle.EventTemperature, Time: at(start + 35 + 5*i), Temperature: v})
	}
	return evs
}

func replayConfig() *config.Config {
	cfg := config.LoadDefaults()
	cfg.Zone.ID = "study"
	cfg.Zone.CompensationGate = false
	cfg.Zone.Heating = &thermal.Gains{Kp: 100, Ki: 1, Kd: 200}
	cfg.Persistence.Store = config.StoreMemory
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplay_ProducesRecommendationAndSavesState(t *testing.T) {
	ctx := context.Background()
	var events []cycle.Event
	for i := 0; i < 6; i++ {
		events = append(events, cycleEvents(100*i)...)
	}
	store := persist.NewMemoryStore()

	report, err := replay(ctx, replayConfig(), store, &eventLog{Events: events}, true, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "study", report.Zone)
	assert.Equal(t, len(events), report.Events)
	require.Len(t, report.Cycles, 6)
	assert.InDelta(t, 0.3, thermal.Value(report.Cycles[0].Overshoot, 0), 1e-9)

	rec, ok := report.Recommendations[thermal.ModeHeating]
	require.True(t, ok)
	require.NotNil(t, rec.Proposed, rec.Reason)
	assert.InDelta(t, 280, rec.Proposed.Kd, 1e-9)
	assert.Equal(t, []string{"moderate_overshoot"}, rec.Rules)

	data, err := store.Load(ctx, "study")
	require.NoError(t, err)
	doc, err := persist.Decode(data)
	require.NoError(t, err)
	assert.Len(t, doc.Learner.Modes[thermal.ModeHeating].History, 6)

	// A second replay resumes from the saved history.
	report, err = replay(ctx, replayConfig(), store, &eventLog{Events: cycleEvents(1000)}, true, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 7, report.Status.Modes[thermal.ModeHeating].Cycles)
}

func TestReplay_DrainFiresSettlingTimeout(t *testing.T) {
	events := cycleEvents(0)[:11] // stop right after settling starts

	report, err := replay(context.Background(), replayConfig(), persist.NewMemoryStore(), &eventLog{Events: events}, false, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, report.Cycles)
	assert.Equal(t, cycle.StateSettling, report.Status.Tracker)

	report, err = replay(context.Background(), replayConfig(), persist.NewMemoryStore(), &eventLog{Events: events}, true, quietLogger())
	require.NoError(t, err)
	require.Len(t, report.Cycles, 1)
	assert.Equal(t, cycle.StateIdle, report.Status.Tracker)
}

func TestReadEventLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.yaml")
	body := `
zone: kitchen
events:
  - {kind: heating_started, time: 2026-01-12T06:05:00Z}
  - {kind: cycle_started, time: 2026-01-12T06:00:00Z, mode: heating, target: 21}
  - {kind: temperature_update, time: 2026-01-12T06:10:00Z, temperature: 19.5, outdoor: 4.5}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	evlog, err := readEventLog(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", evlog.Zone)
	require.Len(t, evlog.Events, 3)
	assert.Equal(t, cycle.EventCycleStarted, evlog.Events[0].Kind, "sorted by time")
	assert.Equal(t, thermal.ModeHeating, evlog.Events[0].Mode)
	assert.Equal(t, 21.0, evlog.Events[0].Target)
	assert.InDelta(t, 4.5, thermal.Value(evlog.Events[2].Outdoor, 0), 1e-9)
}

func TestReadEventLog_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"empty", "zone: x\n", "no events"},
		{"unknown kind", "events:\n  - {kind: boiler_exploded, time: 2026-01-12T06:00:00Z}\n", "unknown kind"},
		{"missing time", "events:\n  - {kind: heating_started}\n", "missing time"},
		{"malformed", "events: [", "parse event log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := readEventLog(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
	_, err := readEventLog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRootCmd_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, fmt.Sprintf("thermotune v%s (%s) built %s\n", version, commit, buildTime), out.String())
}

func TestRootCmd_ReplayThenShow(t *testing.T) {
	t.Setenv("THERMOTUNE_COMPENSATION_GATE", "false")
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	var sb strings.Builder
	sb.WriteString("zone: attic\nevents:\n")
	for _, ev := range cycleEvents(0) {
		fmt.Fprintf(&sb, "  - {kind: %s, time: %s", ev.Kind, ev.Time.Format(time.RFC3339))
		if ev.Mode != "" {
			fmt.Fprintf(&sb, ", mode: %s, target: %g", ev.Mode, ev.Target)
		}
		if ev.Kind == cycle.EventTemperature {
			fmt.Fprintf(&sb, ", temperature: %g", ev.Temperature)
		}
		sb.WriteString("}\n")
	}
	logPath := filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(logPath, []byte(sb.String()), 0o600))
	cfgPath := filepath.Join(dir, "thermotune.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o600))

	run := func(args ...string) string {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append(args, "--config", cfgPath, "--data-dir", dataDir, "--store", "badger"))
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	out := run("replay", logPath, "--json")
	assert.Contains(t, out, `"zone": "attic"`)

	assert.Equal(t, "attic\n", run("zones"))

	out = run("show", "attic")
	assert.Contains(t, out, "zone: attic")
	assert.Contains(t, out, "cycles: 1")
}
