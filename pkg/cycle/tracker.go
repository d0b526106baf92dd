// Package cycle tracks heating and cooling cycles from lifecycle events and
// turns each completed cycle into a thermal.CycleMetrics record.
//
// The tracker is a small state machine:
//
//	idle ──cycle_started──▶ heating|cooling ──settling_started──▶ settling
//	  ▲                           │                                   │
//	  └───── abort (setpoint/mode/contact) ◀──────────────────────────┤
//	  └───── finalize (settled, timeout, next cycle_started) ◀────────┘
//
// Transitions are looked up in a table keyed by (state, event kind); events
// with no entry for the current state are ignored. Finalization validates the
// cycle, runs cycle analysis and disturbance detection over the buffered
// samples and hands the metrics to the cycle-ended callback.
//
// Example:
//
//	tr := cycle.NewTracker(cycle.DefaultConfig(), actuator,
//		cycle.WithCycleEnded(func(m thermal.CycleMetrics) { learner.AddCycle(m) }))
//	tr.Handle(cycle.Event{Kind: cycle.EventCycleStarted, Time: now, Mode: thermal.ModeHeating, Target: 21})
package cycle

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/analysis"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/disturbance"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// State is the tracker's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateHeating  State = "heating"
	StateCooling  State = "cooling"
	StateSettling State = "settling"
)

// ValidationError explains why a finished cycle was not emitted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "cycle rejected: " + e.Reason }

// Actuator reports whether the heating/cooling output is currently on.
type Actuator interface {
	IsActive() bool
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func() bool

// IsActive calls f.
func (f ActuatorFunc) IsActive() bool { return f() }

// Config holds the tracker thresholds.
type Config struct {
	MinDuration time.Duration
	MinSamples  int

	// Settling completes once SettlingSamples readings have a MAD below
	// SettlingMAD and the latest one is within SettlingBand of target.
	SettlingSamples int
	SettlingMAD     float64
	SettlingBand    float64

	// SettlingTimeout forces finalization. Zero derives it from
	// TimeConstantHours (see SettlingTimeoutDuration).
	SettlingTimeout   time.Duration
	TimeConstantHours float64

	// MajorSetpointChange is the setpoint delta (°C) that aborts a cycle
	// while the actuator is off.
	MajorSetpointChange float64
	// ContactGrace is how long after a contact resume cycles are rejected.
	ContactGrace time.Duration

	OvershootWindow       time.Duration
	SettlingTolerance     float64
	OscillationHysteresis float64
	RiseTolerance         float64
	DeadTimeThreshold     float64

	Disturbance disturbance.Config
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinDuration:           5 * time.Minute,
		MinSamples:            5,
		SettlingSamples:       10,
		SettlingMAD:           0.05,
		SettlingBand:          0.5,
		MajorSetpointChange:   0.5,
		ContactGrace:          30 * time.Minute,
		OvershootWindow:       analysis.DefaultSettlingWindow,
		SettlingTolerance:     analysis.DefaultSettlingTolerance,
		OscillationHysteresis: analysis.DefaultOscillationHysteresis,
		RiseTolerance:         analysis.DefaultRiseTolerance,
		DeadTimeThreshold:     analysis.DefaultDeadTimeThreshold,
		Disturbance:           disturbance.DefaultConfig(),
	}
}

// Settling timeout bounds.
const (
	DefaultSettlingTimeout = 120 * time.Minute
	minSettlingTimeout     = 60 * time.Minute
	maxSettlingTimeout     = 240 * time.Minute
)

// SettlingTimeoutDuration returns the configured timeout. Without one it is
// 30 minutes per hour of thermal time constant clamped to [60, 240] minutes,
// or DefaultSettlingTimeout when no time constant is known.
func (c Config) SettlingTimeoutDuration() time.Duration {
	if c.SettlingTimeout > 0 {
		return c.SettlingTimeout
	}
	if c.TimeConstantHours <= 0 {
		return DefaultSettlingTimeout
	}
	d := time.Duration(c.TimeConstantHours * float64(30*time.Minute))
	if d < minSettlingTimeout {
		return minSettlingTimeout
	}
	if d > maxSettlingTimeout {
		return maxSettlingTimeout
	}
	return d
}

// Markers is the tracker state that survives a restart.
type Markers struct {
	LastEndTemperature    *float64   `json:"last_end_temperature,omitempty"`
	LastCycleEnd          *time.Time `json:"last_cycle_end,omitempty"`
	LearningDisabledUntil *time.Time `json:"learning_disabled_until,omitempty"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(t *Tracker) { t.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithCycleEnded registers the callback that receives finished cycles.
func WithCycleEnded(f func(thermal.CycleMetrics)) Option {
	return func(t *Tracker) { t.onEnded = f }
}

// WithCycleDropped registers a callback for aborted or rejected cycles.
func WithCycleDropped(f func(error)) Option {
	return func(t *Tracker) { t.onDropped = f }
}

// Tracker follows one zone's cycles. It is safe for concurrent use; the
// callbacks run without the tracker's lock held.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	actuator  Actuator
	sched     Scheduler
	detector  *disturbance.Detector
	logger    *slog.Logger
	onEnded   func(thermal.CycleMetrics)
	onDropped func(error)

	state    State
	cur      *record
	timer    Timer
	timerGen uint64

	lastEndTemp   *float64
	lastEnd       time.Time
	disabledUntil time.Time
}

// record buffers one in-progress cycle.
type record struct {
	mode    thermal.Mode
	start   time.Time
	target  float64
	samples []thermal.Sample
	outdoor []thermal.Sample
	solar   []thermal.Sample
	wind    []thermal.Sample

	intervals []disturbance.Interval
	onSince   time.Time
	firstOn   time.Time
	lastOff   time.Time
	toggles   int

	settlingStart time.Time
	settling      []float64

	interruptions []thermal.Interruption
	overshoot     *analysis.PhaseAwareOvershootTracker

	clamped       bool
	integralEntry *float64
	integralCross *float64
}

// outcome is what a transition hands back for delivery outside the lock.
type outcome struct {
	metrics *thermal.CycleMetrics
	dropped error
}

// NewTracker creates an idle tracker. A nil actuator is treated as always off.
func NewTracker(cfg Config, actuator Actuator, opts ...Option) *Tracker {
	if actuator == nil {
		actuator = ActuatorFunc(func() bool { return false })
	}
	t := &Tracker{
		cfg:      cfg,
		actuator: actuator,
		sched:    RealScheduler{},
		detector: newDetector(cfg),
		logger:   slog.Default(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "cycle_tracker")
	return t
}

// newDetector measures disturbance rises from the end of the overshoot
// window.
func newDetector(cfg Config) *disturbance.Detector {
	dcfg := cfg.Disturbance
	if cfg.OvershootWindow > 0 {
		dcfg.LagWindow = cfg.OvershootWindow
	}
	return disturbance.NewDetector(dcfg)
}

type handler func(t *Tracker, ev Event) []outcome

var activeTransitions = map[EventKind]handler{
	EventCycleStarted:    (*Tracker).restart,
	EventHeatingStarted:  (*Tracker).actuatorOn,
	EventCoolingStarted:  (*Tracker).actuatorOn,
	EventHeatingEnded:    (*Tracker).actuatorOff,
	EventCoolingEnded:    (*Tracker).actuatorOff,
	EventSettlingStarted: (*Tracker).startSettling,
	EventSetpointChanged: (*Tracker).setpointChanged,
	EventModeChanged:     (*Tracker).modeChanged,
	EventContactPause:    (*Tracker).contactPause,
	EventContactResume:   (*Tracker).contactResume,
	EventTemperature:     (*Tracker).temperature,
}

var transitions = map[State]map[EventKind]handler{
	StateIdle: {
		EventCycleStarted:  (*Tracker).start,
		EventContactResume: (*Tracker).contactResume,
	},
	StateHeating: activeTransitions,
	StateCooling: activeTransitions,
	StateSettling: {
		EventCycleStarted:    (*Tracker).finalizeAndStart,
		EventHeatingStarted:  (*Tracker).actuatorOn,
		EventCoolingStarted:  (*Tracker).actuatorOn,
		EventHeatingEnded:    (*Tracker).actuatorOff,
		EventCoolingEnded:    (*Tracker).actuatorOff,
		EventSetpointChanged: (*Tracker).setpointChanged,
		EventModeChanged:     (*Tracker).modeChanged,
		EventContactPause:    (*Tracker).contactPause,
		EventContactResume:   (*Tracker).contactResume,
		EventTemperature:     (*Tracker).temperature,
	},
}

// Handle feeds one event through the state machine.
func (t *Tracker) Handle(ev Event) {
	t.mu.Lock()
	var outs []outcome
	if h, ok := transitions[t.state][ev.Kind]; ok {
		outs = h(t, ev)
	} else {
		t.logger.Debug("event ignored", "state", t.state, "event", ev.Kind)
	}
	t.mu.Unlock()
	t.deliver(outs)
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Target returns the in-progress cycle's target, if any.
func (t *Tracker) Target() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil {
		return 0, false
	}
	return t.cur.target, true
}

// LearningDisabled reports whether now falls in the post-contact grace window.
func (t *Tracker) LearningDisabled(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Before(t.disabledUntil)
}

// Markers returns the restart markers.
func (t *Tracker) Markers() Markers {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := Markers{}
	if t.lastEndTemp != nil {
		m.LastEndTemperature = thermal.Float(*t.lastEndTemp)
	}
	if !t.lastEnd.IsZero() {
		end := t.lastEnd
		m.LastCycleEnd = &end
	}
	if !t.disabledUntil.IsZero() {
		until := t.disabledUntil
		m.LearningDisabledUntil = &until
	}
	return m
}

// RestoreMarkers reinstates markers saved by Markers.
func (t *Tracker) RestoreMarkers(m Markers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastEndTemp = nil
	if m.LastEndTemperature != nil {
		t.lastEndTemp = thermal.Float(*m.LastEndTemperature)
	}
	t.lastEnd = time.Time{}
	if m.LastCycleEnd != nil {
		t.lastEnd = *m.LastCycleEnd
	}
	t.disabledUntil = time.Time{}
	if m.LearningDisabledUntil != nil {
		t.disabledUntil = *m.LearningDisabledUntil
	}
}

func (t *Tracker) deliver(outs []outcome) {
	for _, o := range outs {
		switch {
		case o.metrics != nil:
			if t.onEnded != nil {
				t.onEnded(*o.metrics)
			}
		case o.dropped != nil:
			if t.onDropped != nil {
				t.onDropped(o.dropped)
			}
		}
	}
}

func (t *Tracker) start(ev Event) []outcome {
	if ev.Mode != thermal.ModeHeating && ev.Mode != thermal.ModeCooling {
		t.logger.Warn("cycle start without heating or cooling mode", "mode", ev.Mode)
		return nil
	}
	t.cur = &record{
		mode:      ev.Mode,
		start:     ev.Time,
		target:    ev.Target,
		overshoot: analysis.NewPhaseAwareOvershootTracker(thermal.OrientValue(ev.Target, ev.Mode), t.cfg.OvershootWindow),
	}
	t.state = StateHeating
	if ev.Mode == thermal.ModeCooling {
		t.state = StateCooling
	}
	t.logger.Info("cycle started", "mode", ev.Mode, "target", ev.Target)
	return nil
}

func (t *Tracker) restart(ev Event) []outcome {
	outs := t.abort(ev.Time, "cycle restarted before settling")
	return append(outs, t.start(ev)...)
}

func (t *Tracker) finalizeAndStart(ev Event) []outcome {
	outs := t.finalize(ev.Time)
	return append(outs, t.start(ev)...)
}

func (t *Tracker) actuatorOn(ev Event) []outcome {
	c := t.cur
	if !c.onSince.IsZero() {
		return nil
	}
	c.onSince = ev.Time
	c.toggles++
	c.overshoot.SetActuatorOn()
	if c.firstOn.IsZero() {
		c.firstOn = ev.Time
	}
	return nil
}

func (t *Tracker) actuatorOff(ev Event) []outcome {
	c := t.cur
	if c.onSince.IsZero() {
		return nil
	}
	c.intervals = append(c.intervals, disturbance.Interval{Start: c.onSince, End: ev.Time})
	c.onSince = time.Time{}
	c.lastOff = ev.Time
	c.overshoot.SetActuatorOff(ev.Time)
	return nil
}

func (t *Tracker) startSettling(ev Event) []outcome {
	c := t.cur
	c.settlingStart = ev.Time
	off := ev.Time
	if c.onSince.IsZero() && !c.lastOff.IsZero() {
		off = c.lastOff
	}
	c.overshoot.SetActuatorOff(off)
	t.state = StateSettling
	t.scheduleTimeout()
	t.logger.Debug("settling started", "mode", c.mode)
	return nil
}

func (t *Tracker) scheduleTimeout() {
	t.stopTimer()
	t.timerGen++
	gen := t.timerGen
	t.timer = t.sched.AfterFunc(t.cfg.SettlingTimeoutDuration(), func() { t.settlingTimeout(gen) })
}

func (t *Tracker) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// settlingTimeout finalizes a cycle that never settled. Firing after the
// cycle already completed, aborted or was replaced is a no-op.
func (t *Tracker) settlingTimeout(gen uint64) {
	t.mu.Lock()
	var outs []outcome
	if t.state == StateSettling && gen == t.timerGen {
		now := t.sched.Now()
		t.cur.interruptions = append(t.cur.interruptions, thermal.Interruption{Time: now, Kind: thermal.InterruptionSettlingTimeout})
		t.logger.Info("settling timed out", "after", t.cfg.SettlingTimeoutDuration())
		outs = t.finalize(now)
	}
	t.mu.Unlock()
	t.deliver(outs)
}

func (t *Tracker) setpointChanged(ev Event) []outcome {
	c := t.cur
	delta := math.Abs(ev.Target - c.target)
	if !t.actuator.IsActive() && delta > t.cfg.MajorSetpointChange {
		return t.abort(ev.Time, fmt.Sprintf("setpoint changed by %.2f with actuator off", delta))
	}
	c.interruptions = append(c.interruptions, thermal.Interruption{Time: ev.Time, Kind: thermal.InterruptionSetpointMinor})
	c.target = ev.Target
	c.overshoot.SetTarget(thermal.OrientValue(ev.Target, c.mode))
	return nil
}

func (t *Tracker) modeChanged(ev Event) []outcome {
	if ev.Mode == t.cur.mode {
		return nil
	}
	return t.abort(ev.Time, fmt.Sprintf("mode changed from %s to %q", t.cur.mode, ev.Mode))
}

func (t *Tracker) contactPause(ev Event) []outcome {
	return t.abort(ev.Time, "contact sensor paused control")
}

func (t *Tracker) contactResume(ev Event) []outcome {
	t.disabledUntil = ev.Time.Add(t.cfg.ContactGrace)
	return nil
}

func (t *Tracker) temperature(ev Event) []outcome {
	c := t.cur
	s := thermal.Sample{Time: ev.Time, Value: ev.Temperature}
	c.samples = append(c.samples, s)
	if ev.Outdoor != nil {
		c.outdoor = append(c.outdoor, thermal.Sample{Time: ev.Time, Value: *ev.Outdoor})
	}
	if ev.Solar != nil {
		c.solar = append(c.solar, thermal.Sample{Time: ev.Time, Value: *ev.Solar})
	}
	if ev.Wind != nil {
		c.wind = append(c.wind, thermal.Sample{Time: ev.Time, Value: *ev.Wind})
	}
	if ev.OutputClamped {
		c.clamped = true
	}

	v := thermal.OrientValue(ev.Temperature, c.mode)
	target := thermal.OrientValue(c.target, c.mode)
	c.overshoot.Update(thermal.Sample{Time: ev.Time, Value: v})
	if ev.Integral != nil {
		if c.integralEntry == nil && math.Abs(v-target) <= t.cfg.SettlingTolerance {
			c.integralEntry = thermal.Float(*ev.Integral)
		}
		if c.integralCross == nil && v >= target {
			c.integralCross = thermal.Float(*ev.Integral)
		}
	}

	if t.state != StateSettling {
		return nil
	}
	c.settling = append(c.settling, ev.Temperature)
	if !settled(c.settling, c.target, t.cfg) {
		return nil
	}
	t.logger.Debug("cycle settled", "samples", len(c.settling))
	return t.finalize(ev.Time)
}

// abort discards the in-progress cycle.
func (t *Tracker) abort(at time.Time, reason string) []outcome {
	t.stopTimer()
	t.timerGen++
	mode := t.cur.mode
	t.cur = nil
	t.state = StateIdle
	t.logger.Info("cycle aborted", "mode", mode, "reason", reason, "at", at)
	return []outcome{{dropped: fmt.Errorf("cycle aborted: %s", reason)}}
}

// finalize validates the in-progress cycle and builds its metrics.
func (t *Tracker) finalize(end time.Time) []outcome {
	t.stopTimer()
	t.timerGen++
	c := t.cur
	t.cur = nil
	t.state = StateIdle
	if !c.onSince.IsZero() {
		c.intervals = append(c.intervals, disturbance.Interval{Start: c.onSince, End: end})
	}

	if err := t.validate(c, end); err != nil {
		t.logger.Info("cycle dropped", "mode", c.mode, "reason", err.Reason)
		return []outcome{{dropped: err}}
	}

	m := t.buildMetrics(c, end)
	last := c.samples[len(c.samples)-1].Value
	t.lastEndTemp = thermal.Float(last)
	t.lastEnd = end
	t.logger.Info("cycle completed",
		"id", m.ID,
		"mode", m.Mode,
		"duration", m.Duration(),
		"overshoot", thermal.Value(m.Overshoot, 0),
		"tags", m.DisturbanceTags)
	return []outcome{{metrics: &m}}
}

func (t *Tracker) validate(c *record, end time.Time) *ValidationError {
	if d := end.Sub(c.start); d < t.cfg.MinDuration {
		return &ValidationError{Reason: fmt.Sprintf("duration %s shorter than %s", d.Round(time.Second), t.cfg.MinDuration)}
	}
	if len(c.samples) < max(t.cfg.MinSamples, 1) {
		return &ValidationError{Reason: fmt.Sprintf("%d samples, need %d", len(c.samples), t.cfg.MinSamples)}
	}
	if end.Before(t.disabledUntil) {
		return &ValidationError{Reason: "learning disabled after contact resume"}
	}
	return nil
}

func (t *Tracker) buildMetrics(c *record, end time.Time) thermal.CycleMetrics {
	oriented, target := thermal.Orient(c.samples, c.target, c.mode)
	startTemp := c.samples[0].Value
	endTemp := c.samples[len(c.samples)-1].Value

	m := thermal.CycleMetrics{
		ID:                  uuid.NewString(),
		Mode:                c.mode,
		StartTime:           c.start,
		EndTime:             end,
		Target:              c.target,
		Overshoot:           c.overshoot.Overshoot(),
		Undershoot:          undershoot(oriented, target),
		OscillationCount:    analysis.CountOscillations(oriented, target, t.cfg.OscillationHysteresis),
		RiseTime:            analysis.CalculateRiseTime(oriented, oriented[0].Value, target, t.cfg.RiseTolerance),
		Interruptions:       c.interruptions,
		WasOutputClamped:    c.clamped,
		StartTemperature:    startTemp,
		EndTemperature:      thermal.Float(endTemp),
		ActuatorToggleCount: c.toggles,
		DisturbanceTags: t.detector.Detect(disturbance.Input{
			Mode:            c.mode,
			Samples:         c.samples,
			ActiveIntervals: c.intervals,
			Outdoor:         c.outdoor,
			Solar:           c.solar,
			Wind:            c.wind,
		}),
		IntegralAtToleranceEntry: c.integralEntry,
		IntegralAtSetpointCross:  c.integralCross,
	}

	var settlingRef *time.Time
	if !c.settlingStart.IsZero() {
		ref := c.settlingStart
		settlingRef = &ref
	}
	m.SettlingTime = analysis.CalculateSettlingTime(oriented, target, t.cfg.SettlingTolerance, settlingRef)
	m.SettlingMeanAbsError = analysis.CalculateSettlingMeanAbsError(oriented, target, settlingRef)

	if !c.firstOn.IsZero() {
		m.DeadTime = analysis.CalculateDeadTime(oriented, c.firstOn, oriented[0].Value, t.cfg.DeadTimeThreshold)
	}
	if c.integralEntry != nil && c.integralCross != nil {
		m.DecayContribution = thermal.Float(*c.integralEntry - *c.integralCross)
	}
	if t.lastEndTemp != nil {
		m.InterCycleDrift = thermal.Float(startTemp - *t.lastEndTemp)
	}
	if len(c.outdoor) > 0 {
		sum := 0.0
		for _, s := range c.outdoor {
			sum += s.Value
		}
		m.OutdoorTempAvg = thermal.Float(sum / float64(len(c.outdoor)))
	}
	return m
}

// undershoot measures how far below target the temperature dropped after
// first reaching it. A cycle that never reached target reports its shortfall
// at the peak.
func undershoot(oriented []thermal.Sample, target float64) *float64 {
	for i, s := range oriented {
		if s.Value >= target-analysis.TargetReachedTolerance {
			return analysis.CalculateUndershoot(oriented[i:], target)
		}
	}
	peak := oriented[0].Value
	for _, s := range oriented[1:] {
		peak = math.Max(peak, s.Value)
	}
	return thermal.Float(math.Max(0, target-peak))
}
