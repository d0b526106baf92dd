// Package zone wires one controlled zone's learning pipeline together.
//
// An Engine owns the cycle tracker, the adaptive gain learner and both
// compensation learners for a single zone. Lifecycle events go in through
// Handle; every finalized cycle flows tracker → gain learner → compensation
// gate → optional auto-apply, is published to CycleEnded subscribers and
// schedules a debounced save of the zone's state.
//
// Engines for different zones share nothing but the store.
//
// Example:
//
//	eng := zone.NewEngine(cfg, actuator, zone.WithPersistence(mgr))
//	if err := eng.Restore(ctx); err != nil {
//		return err
//	}
//	eng.OnCycleEnded(func(ev zone.CycleEnded) { log.Println(ev.Metrics.ID) })
//	eng.Handle(cycle.Event{Kind: cycle.EventCycleStarted, Time: now, Mode: thermal.ModeHeating, Target: 21})
package zone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/compensation"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/metrics"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/persist"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// ErrNoPersistence is returned by Restore and Save on an engine without a
// persistence manager.
var ErrNoPersistence = errors.New("zone: no persistence configured")

// Config configures one zone.
type Config struct {
	ID         string
	Learning   learning.Config
	Tracker    cycle.Config
	First      compensation.FirstConfig
	Continuous compensation.ContinuousConfig

	// AutoApply lets the engine commit recommendations on its own.
	AutoApply bool
	// CompensationGate holds gain tuning back until the compensation-first
	// learner has converged. Zones without an outdoor sensor turn it off.
	CompensationGate bool
	// PhysicsGains are the starting gains per mode; they also become the
	// drift baseline.
	PhysicsGains map[thermal.Mode]thermal.Gains
}

// DefaultConfig returns a gated, manual-apply zone with package defaults.
func DefaultConfig(id string) Config {
	return Config{
		ID:               id,
		Learning:         learning.DefaultConfig(),
		Tracker:          cycle.DefaultConfig(),
		First:            compensation.DefaultFirstConfig(),
		Continuous:       compensation.DefaultContinuousConfig(),
		CompensationGate: true,
	}
}

// CycleEnded is published once per finalized cycle.
type CycleEnded struct {
	Zone        string                          `json:"zone"`
	Metrics     thermal.CycleMetrics            `json:"metrics"`
	Validation  learning.ValidationResult       `json:"validation,omitempty"`
	AutoApplied *learning.AutoApplyResult       `json:"auto_applied,omitempty"`
	Compensated *compensation.Adjustment        `json:"compensation_adjustment,omitempty"`
	Convergence *compensation.ConvergenceResult `json:"compensation_convergence,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersistence saves zone state through mgr.
func WithPersistence(mgr *persist.Manager) Option {
	return func(e *Engine) { e.persist = mgr }
}

// WithNotifier installs the notification collaborator. The default logs.
func WithNotifier(n learning.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithScheduler replaces the wall-clock scheduler used for settling
// timeouts and timestamps of manual commands.
func WithScheduler(s cycle.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine runs the learning pipeline for one zone. It is safe for concurrent
// use.
type Engine struct {
	cfg      Config
	sched    cycle.Scheduler
	persist  *persist.Manager
	notifier learning.Notifier
	logger   *slog.Logger

	mu          sync.Mutex
	learner     *learning.Learner
	first       *compensation.FirstLearner
	continuous  *compensation.ContinuousAdjuster
	subscribers []func(CycleEnded)

	tracker *cycle.Tracker
}

// NewEngine creates the zone's engine. actuator reports whether the zone's
// heating/cooling output is currently on.
func NewEngine(cfg Config, actuator cycle.Actuator, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		sched:  cycle.RealScheduler{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("zone", cfg.ID)
	if e.notifier == nil {
		e.notifier = LogNotifier{Logger: e.logger}
	}

	e.first = compensation.NewFirstLearner(cfg.First, e.logger)
	e.continuous = compensation.NewContinuousAdjuster(cfg.Continuous, e.logger)
	learnerOpts := []learning.Option{
		learning.WithNotifier(e.notifier),
		learning.WithLogger(e.logger),
	}
	if cfg.CompensationGate {
		learnerOpts = append(learnerOpts, learning.WithGate(e.first))
	}
	e.learner = learning.NewLearner(cfg.Learning, learnerOpts...)
	for mode, g := range cfg.PhysicsGains {
		e.learner.SetGains(mode, g)
		e.learner.SetPhysicsBaseline(mode, g)
	}

	e.tracker = cycle.NewTracker(cfg.Tracker, actuator,
		cycle.WithScheduler(e.sched),
		cycle.WithLogger(e.logger),
		cycle.WithCycleEnded(e.cycleEnded),
		cycle.WithCycleDropped(e.cycleDropped))
	e.updateGauges()
	return e
}

// ID returns the zone id.
func (e *Engine) ID() string { return e.cfg.ID }

// OnCycleEnded subscribes f to finalized cycles. Subscribers run without the
// engine's lock held and may call back into the engine.
func (e *Engine) OnCycleEnded(f func(CycleEnded)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, f)
}

// Handle feeds one lifecycle event through the zone.
func (e *Engine) Handle(ev cycle.Event) {
	e.mu.Lock()
	e.observe(ev)
	e.mu.Unlock()

	e.tracker.Handle(ev)
}

// observe feeds the compensation learners, which look at every reading
// rather than only finished cycles.
func (e *Engine) observe(ev cycle.Event) {
	switch {
	case ev.Kind.IsActuatorOn():
		e.first.RecordActuator(ev.Time, true)
	case ev.Kind.IsActuatorOff():
		e.first.RecordActuator(ev.Time, false)
	case ev.Kind == cycle.EventTemperature && ev.Outdoor != nil:
		e.first.RecordTemperature(ev.Time, ev.Temperature, *ev.Outdoor)
		if ev.Output == nil || !e.continuous.Enabled() {
			return
		}
		// Output only reflects the steady-state need while holding target.
		if st := e.tracker.State(); st == cycle.StateHeating || st == cycle.StateCooling {
			return
		}
		target, ok := e.tracker.Target()
		if !ok {
			target = ev.Target
		}
		e.continuous.AddObservation(compensation.CompensationObservation{
			Timestamp:           ev.Time,
			OutdoorTemp:         *ev.Outdoor,
			SteadyOutputPercent: *ev.Output,
			IndoorTemp:          ev.Temperature,
			TargetTemp:          target,
		})
	}
}

func (e *Engine) cycleDropped(err error) {
	metrics.CyclesDropped.WithLabelValues(e.cfg.ID).Inc()
	e.logger.Debug("cycle not recorded", "error", err)
}

func (e *Engine) cycleEnded(m thermal.CycleMetrics) {
	e.mu.Lock()
	ev := e.process(m)
	subs := append(([]func(CycleEnded))(nil), e.subscribers...)
	e.mu.Unlock()

	e.scheduleSave()
	for _, f := range subs {
		f(ev)
	}
}

func (e *Engine) process(m thermal.CycleMetrics) CycleEnded {
	ev := CycleEnded{Zone: e.cfg.ID, Metrics: m}
	mode := string(m.Mode)
	metrics.CyclesCompleted.WithLabelValues(e.cfg.ID, mode).Inc()
	if m.Overshoot != nil {
		metrics.CycleOvershoot.WithLabelValues(e.cfg.ID, mode).Observe(*m.Overshoot)
	}
	for _, tag := range m.DisturbanceTags {
		metrics.CyclesDisturbed.WithLabelValues(e.cfg.ID, tag).Inc()
	}

	ev.Validation = e.learner.AddCycle(m)
	if ev.Validation != learning.ValidationNone {
		metrics.ValidationOutcomes.WithLabelValues(e.cfg.ID, string(ev.Validation)).Inc()
	}

	if !e.first.IsConverged() {
		res, err := e.first.CheckConvergence(m.EndTime)
		switch {
		case err != nil:
			e.logger.Debug("compensation regression skipped", "error", err)
		case res.Converged:
			ev.Convergence = &res
		}
	}
	e.maybeEnableContinuous(m)
	ev.Compensated = e.continuous.Evaluate(m.EndTime)
	if ev.Compensated != nil {
		metrics.CompensationAdjustments.WithLabelValues(e.cfg.ID).Inc()
	}

	if e.cfg.AutoApply && !e.learner.IsValidating() {
		ev.AutoApplied = e.autoApply(m.Mode, m.EndTime)
	}
	e.updateGauges()
	return ev
}

func (e *Engine) autoApply(mode thermal.Mode, now time.Time) *learning.AutoApplyResult {
	if reason := e.learner.CheckAutoApplyLimits(mode, now); reason != "" {
		metrics.AutoApplyBlocked.WithLabelValues(e.cfg.ID, string(mode)).Inc()
		e.logger.Info("auto-apply blocked", "mode", mode, "reason", reason)
		return nil
	}
	res, reason := e.learner.AutoApply(mode, now)
	if res == nil {
		e.logger.Debug("no auto-apply", "mode", mode, "reason", reason)
		return nil
	}
	metrics.AutoApplies.WithLabelValues(e.cfg.ID, string(mode)).Inc()
	metrics.Recommendations.WithLabelValues(e.cfg.ID, string(mode)).Inc()
	return res
}

// maybeEnableContinuous hands the compensation coefficient over to the
// continuous adjuster once both the gate and the gains have converged.
func (e *Engine) maybeEnableContinuous(m thermal.CycleMetrics) {
	if e.continuous.Enabled() || !e.first.IsConverged() {
		return
	}
	need := e.cfg.Learning.HeatingType.Profile().AutoApplyConfidence
	if e.learner.Confidence(m.Mode, m.EndTime) < need {
		return
	}
	e.continuous.Enable(e.first.Ke())
}

// EnableContinuousCompensation starts the continuous adjuster from the
// current coefficient, for hosts that decide gain convergence themselves.
func (e *Engine) EnableContinuousCompensation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.continuous.Enable(e.keLocked())
	e.updateGauges()
}

// Ke returns the compensation coefficient currently in effect.
func (e *Engine) Ke() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keLocked()
}

func (e *Engine) keLocked() float64 {
	if e.continuous.Enabled() {
		return e.continuous.Ke()
	}
	return e.first.Ke()
}

// Gains returns the current gains for mode.
func (e *Engine) Gains(mode thermal.Mode) thermal.Gains {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.Gains(mode)
}

// Recommendation previews the gain change the learner would propose now,
// without committing it. The string explains a nil result.
func (e *Engine) Recommendation(mode thermal.Mode) (*learning.Recommendation, string) {
	now := e.sched.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.PreviewPidAdjustment(mode, e.learner.Gains(mode), now)
}

// CalculatePidAdjustment computes and commits a recommendation, resetting
// the rate limit. Applying it is up to the caller (see ApplyManual).
func (e *Engine) CalculatePidAdjustment(mode thermal.Mode, checkAutoApply bool) (*learning.Recommendation, string) {
	now := e.sched.Now()
	e.mu.Lock()
	rec, reason := e.learner.CalculatePidAdjustment(mode, e.learner.Gains(mode), now, checkAutoApply)
	e.mu.Unlock()
	if rec != nil {
		metrics.Recommendations.WithLabelValues(e.cfg.ID, string(mode)).Inc()
		e.scheduleSave()
	}
	return rec, reason
}

// ApplyManual installs gains chosen by a person.
func (e *Engine) ApplyManual(mode thermal.Mode, g thermal.Gains) learning.PidSnapshot {
	now := e.sched.Now()
	e.mu.Lock()
	snap := e.learner.ApplyManual(mode, g, now)
	e.updateGauges()
	e.mu.Unlock()
	e.scheduleSave()
	return snap
}

// ResetToPhysics installs physics-derived gains and restarts learning.
func (e *Engine) ResetToPhysics(mode thermal.Mode, g thermal.Gains) learning.PidSnapshot {
	now := e.sched.Now()
	e.mu.Lock()
	snap := e.learner.ResetToPhysics(mode, g, now)
	e.updateGauges()
	e.mu.Unlock()
	e.scheduleSave()
	return snap
}

// Rollback restores the gains from before the last auto-apply.
func (e *Engine) Rollback(mode thermal.Mode) (thermal.Gains, error) {
	now := e.sched.Now()
	e.mu.Lock()
	g, err := e.learner.Rollback(mode, now)
	e.updateGauges()
	e.mu.Unlock()
	if err != nil {
		return thermal.Gains{}, fmt.Errorf("zone %s: %w", e.cfg.ID, err)
	}
	e.scheduleSave()
	return g, nil
}

func (e *Engine) updateGauges() {
	now := e.sched.Now()
	for _, mode := range []thermal.Mode{thermal.ModeHeating, thermal.ModeCooling} {
		m := string(mode)
		g := e.learner.Gains(mode)
		metrics.LearnerConfidence.WithLabelValues(e.cfg.ID, m).Set(e.learner.Confidence(mode, now))
		metrics.LearnerGain.WithLabelValues(e.cfg.ID, m, "kp").Set(g.Kp)
		metrics.LearnerGain.WithLabelValues(e.cfg.ID, m, "ki").Set(g.Ki)
		metrics.LearnerGain.WithLabelValues(e.cfg.ID, m, "kd").Set(g.Kd)
	}
	metrics.CompensationKe.WithLabelValues(e.cfg.ID).Set(e.keLocked())
	metrics.CompensationConverged.WithLabelValues(e.cfg.ID).Set(metrics.BoolGauge(e.first.IsConverged()))
}

// Document captures the zone's persistent state.
func (e *Engine) Document() *persist.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := persist.NewDocument(e.cfg.ID)
	doc.Learner = e.learner.Export()
	first := e.first.State()
	cont := e.continuous.State()
	doc.Compensation = persist.CompensationState{First: &first, Continuous: &cont}
	doc.Tracker = e.tracker.Markers()
	return doc
}

// Apply replaces the zone's state with doc.
func (e *Engine) Apply(doc *persist.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.learner.Import(doc.Learner)
	for mode, g := range e.cfg.PhysicsGains {
		if _, ok := doc.Learner.Modes[mode]; !ok {
			e.learner.SetGains(mode, g)
			e.learner.SetPhysicsBaseline(mode, g)
		}
	}
	if st := doc.Compensation.First; st != nil {
		e.first.Restore(*st)
	} else {
		e.first.Reset()
	}
	if st := doc.Compensation.Continuous; st != nil {
		e.continuous.Restore(*st)
	}
	e.tracker.RestoreMarkers(doc.Tracker)
	e.updateGauges()
}

// Restore loads the zone's saved state.
func (e *Engine) Restore(ctx context.Context) error {
	if e.persist == nil {
		return ErrNoPersistence
	}
	doc, err := e.persist.Load(ctx, e.cfg.ID)
	if err != nil {
		return err
	}
	e.Apply(doc)
	e.logger.Info("zone state restored",
		"modes", len(doc.Learner.Modes),
		"snapshots", len(doc.Learner.PidHistory))
	return nil
}

// Save writes the zone's state immediately.
func (e *Engine) Save(ctx context.Context) error {
	if e.persist == nil {
		return ErrNoPersistence
	}
	return e.persist.Save(ctx, e.Document())
}

func (e *Engine) scheduleSave() {
	if e.persist == nil {
		return
	}
	e.persist.ScheduleSave(e.cfg.ID, e.Document)
}
