// Package learning implements the adaptive PID gain learner.
//
// The Learner keeps a per-mode history of completed cycles, tracks how well
// the current gains appear to work (confidence), and turns the robust
// average of recent clean cycles into proposed gains through an ordered
// rule table. It also owns the automatic path: auto-apply behind a set of
// safety limits, a validation window after each auto-apply, and rollback to
// the previous gains when validation shows the change made things worse.
//
// State machine:
//
//	Idle ──cycle added──▶ Learning ──auto-apply──▶ ValidationInProgress
//	  ▲                                                   │
//	  └───────────── success / rollback ◀─────────────────┘
//
// While validation is in progress no recommendations are produced.
//
// Example:
//
//	l := learning.NewLearner(learning.DefaultConfig(), learning.WithGate(firstLearner))
//	l.SetGains(thermal.ModeHeating, thermal.Gains{Kp: 50, Ki: 0.5, Kd: 200})
//	for _, m := range finishedCycles {
//		l.AddCycle(m)
//	}
//	if rec, why := l.CalculatePidAdjustment(thermal.ModeHeating, l.Gains(thermal.ModeHeating), now, false); rec != nil {
//		fmt.Println(rec.Proposed)
//	} else {
//		fmt.Println("no recommendation:", why)
//	}
//
// A Learner belongs to a single zone and is not safe for concurrent use;
// the zone engine serializes access.
package learning

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/robust"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// State is the learner's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateLearning   State = "learning"
	StateValidating State = "validation_in_progress"
)

// ValidationResult is the outcome of a finished validation window.
type ValidationResult string

const (
	ValidationNone     ValidationResult = ""
	ValidationSuccess  ValidationResult = "success"
	ValidationRollback ValidationResult = "rollback"
)

// ErrNoSnapshot is returned by Rollback when there is nothing to roll back to.
var ErrNoSnapshot = errors.New("learning: no before_auto_apply snapshot for mode")

// Gate blocks gain recommendations until outdoor compensation has been
// learned.
type Gate interface {
	IsConverged() bool
}

// NotificationKind identifies a notification sent by the learner.
type NotificationKind string

const (
	NotifyRollback      NotificationKind = "validation_rollback"
	NotifySeasonalShift NotificationKind = "seasonal_shift"
)

// Notifier receives fire-and-forget notifications.
type Notifier interface {
	Notify(kind NotificationKind, message string)
}

// Bounds are the absolute limits for each gain.
type Bounds struct {
	KpMin, KpMax float64
	KiMin, KiMax float64
	KdMin, KdMax float64
}

// Clamp limits g to the bounds.
func (b Bounds) Clamp(g thermal.Gains) thermal.Gains {
	return thermal.Gains{
		Kp: math.Max(b.KpMin, math.Min(b.KpMax, g.Kp)),
		Ki: math.Max(b.KiMin, math.Min(b.KiMax, g.Ki)),
		Kd: math.Max(b.KdMin, math.Min(b.KdMax, g.Kd)),
	}
}

// Config configures a Learner.
type Config struct {
	HeatingType HeatingType
	// DutyCycled suppresses the oscillation rules for zones driven by
	// on/off pulse-width modulation.
	DutyCycled bool

	MaxHistory           int
	MinCyclesForLearning int
	StatsWindow          int
	Robust               robust.Options

	ConfidenceIncrement   float64
	ConfidencePenalty     float64
	ConfidenceDecayPerDay float64
	MaxMultiplier         float64
	MinMultiplier         float64

	MinAdjustmentCycles int
	MinInterval         time.Duration

	ValidationCycles     int
	DegradationThreshold float64
	// MinBaselineOvershoot floors the validation baseline so a near-perfect
	// baseline does not turn noise into a huge relative degradation.
	MinBaselineOvershoot float64

	MaxSnapshots int
	Bounds       Bounds
	ZoneFactors  Factors
	Rules        RuleConfig
	Safety       SafetyConfig
}

// DefaultConfig returns the standard learner configuration.
func DefaultConfig() Config {
	return Config{
		HeatingType:           HeatingRadiator,
		MaxHistory:            50,
		MinCyclesForLearning:  6,
		StatsWindow:           10,
		Robust:                robust.DefaultOptions(),
		ConfidenceIncrement:   0.1,
		ConfidencePenalty:     0.05,
		ConfidenceDecayPerDay: 0.02,
		MaxMultiplier:         2.0,
		MinMultiplier:         0.5,
		MinAdjustmentCycles:   3,
		MinInterval:           8 * time.Hour,
		ValidationCycles:      5,
		DegradationThreshold:  0.30,
		MinBaselineOvershoot:  0.05,
		MaxSnapshots:          100,
		Bounds: Bounds{
			KpMin: 0.1, KpMax: 500,
			KiMin: 0, KiMax: 100,
			KdMin: 0, KdMax: 5000,
		},
		ZoneFactors: Unity(),
		Rules:       DefaultRuleConfig(),
		Safety:      DefaultSafetyConfig(),
	}
}

// Recommendation is a proposed gain change.
type Recommendation struct {
	Mode       thermal.Mode  `json:"mode"`
	Current    thermal.Gains `json:"current"`
	Proposed   thermal.Gains `json:"proposed"`
	Factors    Factors       `json:"factors"`
	Rules      []string      `json:"rules"`
	Stats      Stats         `json:"stats"`
	Confidence float64       `json:"confidence"`
	Multiplier float64       `json:"multiplier"`
}

// AutoApplyResult describes an auto-apply that happened.
type AutoApplyResult struct {
	Recommendation    Recommendation `json:"recommendation"`
	BeforeSnapshotID  string         `json:"before_snapshot_id"`
	BaselineOvershoot float64        `json:"baseline_overshoot"`
}

type modeState struct {
	gains             thermal.Gains
	physics           *thermal.Gains
	history           []thermal.CycleMetrics
	confidence        float64
	confidenceAt      time.Time
	cyclesSinceAdjust int
	lastAdjust        time.Time
	autoApplyCount    int
}

type validation struct {
	mode             thermal.Mode
	startedAt        time.Time
	baseline         float64
	overshoots       []float64
	beforeSnapshotID string
}

// Option configures a Learner.
type Option func(*Learner)

// WithGate installs the compensation-first gate.
func WithGate(g Gate) Option { return func(l *Learner) { l.gate = g } }

// WithNotifier installs the notification collaborator.
func WithNotifier(n Notifier) Option { return func(l *Learner) { l.notifier = n } }

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return func(l *Learner) { l.logger = logger } }

// WithRules replaces the rule table.
func WithRules(rules []Rule) Option { return func(l *Learner) { l.rules = rules } }

// Learner is the adaptive gain learner for one zone.
type Learner struct {
	cfg      Config
	rules    []Rule
	gate     Gate
	notifier Notifier
	logger   *slog.Logger

	modes      map[thermal.Mode]*modeState
	validation *validation
	snapshots  *SnapshotHistory
	seasonal   *SeasonalShiftDetector
}

// NewLearner creates a learner.
func NewLearner(cfg Config, opts ...Option) *Learner {
	l := &Learner{
		cfg:       cfg,
		rules:     DefaultRules(),
		modes:     make(map[thermal.Mode]*modeState),
		snapshots: NewSnapshotHistory(cfg.MaxSnapshots),
		seasonal:  NewSeasonalShiftDetector(cfg.Safety),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "learner")
	return l
}

func (l *Learner) mode(m thermal.Mode) *modeState {
	ms, ok := l.modes[m]
	if !ok {
		ms = &modeState{}
		l.modes[m] = ms
	}
	return ms
}

// State returns the lifecycle state.
func (l *Learner) State() State {
	if l.validation != nil {
		return StateValidating
	}
	for _, ms := range l.modes {
		if len(ms.history) > 0 {
			return StateLearning
		}
	}
	return StateIdle
}

// Gains returns the current gains for mode.
func (l *Learner) Gains(mode thermal.Mode) thermal.Gains { return l.mode(mode).gains }

// SetGains sets the current gains without recording a snapshot. Used at
// start-up to seed the learner with the controller's configured gains.
func (l *Learner) SetGains(mode thermal.Mode, g thermal.Gains) { l.mode(mode).gains = g }

// SetPhysicsBaseline records the physics-derived gains that drift is
// measured from.
func (l *Learner) SetPhysicsBaseline(mode thermal.Mode, g thermal.Gains) {
	l.mode(mode).physics = &g
}

// History returns a copy of the cycle history for mode.
func (l *Learner) History(mode thermal.Mode) []thermal.CycleMetrics {
	return append([]thermal.CycleMetrics(nil), l.mode(mode).history...)
}

// CycleCount returns the number of recorded cycles for mode.
func (l *Learner) CycleCount(mode thermal.Mode) int { return len(l.mode(mode).history) }

// Snapshots returns the gain audit log.
func (l *Learner) Snapshots() []PidSnapshot { return l.snapshots.Entries() }

// AutoApplyCount returns the number of auto-applies for mode.
func (l *Learner) AutoApplyCount(mode thermal.Mode) int { return l.mode(mode).autoApplyCount }

// SetAutoApplyCount overrides the auto-apply counter for mode.
func (l *Learner) SetAutoApplyCount(mode thermal.Mode, n int) { l.mode(mode).autoApplyCount = n }

// IsValidating reports whether a validation window is open.
func (l *Learner) IsValidating() bool { return l.validation != nil }

// Confidence returns the confidence for mode at now, with time decay applied.
func (l *Learner) Confidence(mode thermal.Mode, now time.Time) float64 {
	ms := l.mode(mode)
	return l.decayed(ms, now)
}

func (l *Learner) decayed(ms *modeState, now time.Time) float64 {
	c := ms.confidence
	if l.cfg.ConfidenceDecayPerDay > 0 && !ms.confidenceAt.IsZero() && now.After(ms.confidenceAt) {
		days := now.Sub(ms.confidenceAt).Hours() / 24
		c -= days * l.cfg.ConfidenceDecayPerDay
	}
	return clamp01(c)
}

// LearningRateMultiplier maps confidence to the adjustment scale: the
// maximum multiplier at zero confidence, falling linearly to the minimum at
// full confidence.
func (l *Learner) LearningRateMultiplier(confidence float64) float64 {
	c := clamp01(confidence)
	return l.cfg.MaxMultiplier - (l.cfg.MaxMultiplier-l.cfg.MinMultiplier)*c
}

// IsGoodCycle reports whether m is within the heating type's convergence
// thresholds.
func (l *Learner) IsGoodCycle(m thermal.CycleMetrics) bool {
	th := l.cfg.HeatingType.Profile().Thresholds
	if thermal.Value(m.Overshoot, 0) > th.MaxOvershoot {
		return false
	}
	if m.OscillationCount > th.MaxOscillations {
		return false
	}
	if thermal.Value(m.SettlingTime, 0) > th.MaxSettlingMinutes {
		return false
	}
	return thermal.Value(m.RiseTime, 0) <= th.MaxRiseMinutes
}

// AddCycle records a completed, validated cycle. Clean cycles update
// confidence and count toward the rate limit; disturbed cycles are kept in
// history for the record only. When a validation window is open for the
// cycle's mode the cycle counts toward it, and the returned result is
// non-empty once the window resolves.
func (l *Learner) AddCycle(m thermal.CycleMetrics) ValidationResult {
	now := m.EndTime
	ms := l.mode(m.Mode)

	ms.history = append(ms.history, m)
	if limit := l.cfg.MaxHistory; limit > 0 && len(ms.history) > limit {
		ms.history = append(ms.history[:0], ms.history[len(ms.history)-limit:]...)
	}

	if m.OutdoorTempAvg != nil {
		l.seasonal.Record(*m.OutdoorTempAvg)
	}
	if l.seasonal.Check(now) {
		until, _ := l.seasonal.CooldownUntil(now)
		msg := fmt.Sprintf("outdoor baseline shifted to %.1f°C; auto-apply paused until %s",
			l.seasonal.Baseline(), until.Format(time.RFC3339))
		l.logger.Warn("seasonal shift detected",
			"baseline", l.seasonal.Baseline(),
			"uncertainty", l.seasonal.Uncertainty(),
			"cooldown_until", until)
		l.notify(NotifySeasonalShift, msg)
	}

	if !m.IsClean() {
		l.logger.Debug("disturbed cycle recorded, excluded from learning",
			"mode", m.Mode, "tags", m.DisturbanceTags)
		return ValidationNone
	}

	good := l.IsGoodCycle(m)
	c := l.decayed(ms, now)
	if good {
		c += l.cfg.ConfidenceIncrement
	} else {
		c -= l.cfg.ConfidencePenalty
	}
	ms.confidence = clamp01(c)
	ms.confidenceAt = now
	ms.cyclesSinceAdjust++

	l.logger.Debug("cycle recorded",
		"mode", m.Mode,
		"good", good,
		"confidence", ms.confidence,
		"history", len(ms.history))

	if l.validation != nil && l.validation.mode == m.Mode {
		return l.recordValidationCycle(m, now)
	}
	return ValidationNone
}

// ClearHistory drops the history of mode and resets its rate-limit counters.
func (l *Learner) ClearHistory(mode thermal.Mode) {
	ms := l.mode(mode)
	ms.history = nil
	ms.cyclesSinceAdjust = 0
	ms.lastAdjust = time.Time{}
}

// Statistics computes the robust averages over the most recent clean cycles.
func (l *Learner) Statistics(mode thermal.Mode) Stats {
	clean := l.cleanCycles(mode)
	if w := l.cfg.StatsWindow; w > 0 && len(clean) > w {
		clean = clean[len(clean)-w:]
	}
	var over, under, rise, settle, osc, ratios []float64
	for _, m := range clean {
		if m.Overshoot != nil {
			over = append(over, *m.Overshoot)
		}
		if m.Undershoot != nil {
			under = append(under, *m.Undershoot)
		}
		if m.RiseTime != nil {
			rise = append(rise, *m.RiseTime)
		}
		if m.SettlingTime != nil {
			settle = append(settle, *m.SettlingTime)
		}
		osc = append(osc, float64(m.OscillationCount))
		if m.DecayContribution != nil && m.IntegralAtToleranceEntry != nil && *m.IntegralAtToleranceEntry != 0 {
			ratios = append(ratios, clamp01(*m.DecayContribution / *m.IntegralAtToleranceEntry))
		}
	}
	s := Stats{
		Overshoot:    l.average(over),
		Undershoot:   l.average(under),
		RiseTime:     l.average(rise),
		SettlingTime: l.average(settle),
		Oscillations: thermal.Value(l.average(osc), 0),
		Cycles:       len(clean),
	}
	if len(ratios) > 0 {
		// missing decay metrics leave the ratio at 0
		s.DecayRatio = clamp01(thermal.Value(l.average(ratios), 0))
	}
	return s
}

func (l *Learner) average(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	avg, removed, err := robust.RobustAverage(values, l.cfg.Robust)
	if err != nil {
		return nil
	}
	if len(removed) > 0 {
		l.logger.Debug("outliers excluded from statistics", "removed", len(removed), "of", len(values))
	}
	return thermal.Float(avg)
}

func (l *Learner) cleanCycles(mode thermal.Mode) []thermal.CycleMetrics {
	var out []thermal.CycleMetrics
	for _, m := range l.mode(mode).history {
		if m.IsClean() {
			out = append(out, m)
		}
	}
	return out
}

// CanAdjustWithReason applies the hybrid rate limit: enough clean cycles
// and enough time since the last adjustment. The first adjustment for a
// mode is exempt.
func (l *Learner) CanAdjustWithReason(mode thermal.Mode, now time.Time) (bool, string) {
	ms := l.mode(mode)
	if ms.lastAdjust.IsZero() {
		return true, ""
	}
	if ms.cyclesSinceAdjust < l.cfg.MinAdjustmentCycles {
		return false, fmt.Sprintf("%d of %d cycles since last adjustment",
			ms.cyclesSinceAdjust, l.cfg.MinAdjustmentCycles)
	}
	if elapsed := now.Sub(ms.lastAdjust); elapsed < l.cfg.MinInterval {
		return false, fmt.Sprintf("last adjustment %s ago, %s remaining",
			elapsed.Round(time.Minute), (l.cfg.MinInterval - elapsed).Round(time.Minute))
	}
	return true, ""
}

// CalculatePidAdjustment proposes new gains for mode from the recent clean
// cycles. It returns nil and a reason when no recommendation is possible:
// the compensation gate is closed, validation is in progress, there are too
// few cycles, the rate limit holds, no rule fired, or (with checkAutoApply)
// a safety limit blocks auto-apply. A returned recommendation counts as an
// adjustment for rate limiting.
func (l *Learner) CalculatePidAdjustment(mode thermal.Mode, current thermal.Gains, now time.Time, checkAutoApply bool) (*Recommendation, string) {
	return l.calculate(mode, current, now, checkAutoApply, true)
}

// PreviewPidAdjustment is CalculatePidAdjustment without consuming the rate
// limit.
func (l *Learner) PreviewPidAdjustment(mode thermal.Mode, current thermal.Gains, now time.Time) (*Recommendation, string) {
	return l.calculate(mode, current, now, false, false)
}

func (l *Learner) calculate(mode thermal.Mode, current thermal.Gains, now time.Time, checkAutoApply, commit bool) (*Recommendation, string) {
	if l.gate != nil && !l.gate.IsConverged() {
		return nil, "waiting for outdoor compensation to converge"
	}
	if l.validation != nil {
		return nil, "validation in progress"
	}
	if checkAutoApply {
		if reason := l.CheckAutoApplyLimits(mode, now); reason != "" {
			return nil, reason
		}
	}
	stats := l.Statistics(mode)
	if stats.Cycles < l.cfg.MinCyclesForLearning {
		return nil, fmt.Sprintf("insufficient data: %d of %d clean cycles", stats.Cycles, l.cfg.MinCyclesForLearning)
	}
	if ok, reason := l.CanAdjustWithReason(mode, now); !ok {
		return nil, "rate limited: " + reason
	}

	factors, fired := EvaluateRules(l.rules, stats, l.cfg.Rules, l.cfg.DutyCycled)
	if len(fired) == 0 || factors.IsUnity() {
		return nil, "no rule triggered"
	}
	confidence := l.Confidence(mode, now)
	mult := l.LearningRateMultiplier(confidence)
	scaled := factors.Scale(mult).ScaleBy(l.cfg.ZoneFactors)

	proposed := l.cfg.Bounds.Clamp(thermal.Gains{
		Kp: current.Kp * scaled.Kp,
		Ki: current.Ki * scaled.Ki,
		Kd: current.Kd * scaled.Kd,
	})
	if proposed == current {
		return nil, "proposed gains equal current gains"
	}
	rec := &Recommendation{
		Mode:       mode,
		Current:    current,
		Proposed:   proposed,
		Factors:    scaled,
		Rules:      fired,
		Stats:      stats,
		Confidence: confidence,
		Multiplier: mult,
	}
	if commit {
		ms := l.mode(mode)
		ms.lastAdjust = now
		ms.cyclesSinceAdjust = 0
		l.logger.Info("gain adjustment calculated",
			"mode", mode,
			"rules", fired,
			"kp", proposed.Kp,
			"ki", proposed.Ki,
			"kd", proposed.Kd,
			"multiplier", mult)
	}
	return rec, ""
}

// CheckAutoApplyLimits evaluates every safety limit and returns a
// human-readable block reason, or "" when auto-apply is allowed.
func (l *Learner) CheckAutoApplyLimits(mode thermal.Mode, now time.Time) string {
	total := 0
	for _, ms := range l.modes {
		total += ms.autoApplyCount
	}
	if reason := lifetimeBlock(total, l.cfg.Safety.MaxLifetimeAutoApplies); reason != "" {
		return reason
	}
	if limit := l.cfg.Safety.MaxSeasonalAutoApplies; limit > 0 {
		n := l.snapshots.CountSince(ReasonAutoApply, now.Add(-l.cfg.Safety.SeasonalWindow))
		if n >= limit {
			return fmt.Sprintf("seasonal auto-apply limit reached (%d in the last %d days)",
				n, int(l.cfg.Safety.SeasonalWindow.Hours()/24))
		}
	}
	ms := l.mode(mode)
	if ms.physics != nil && l.cfg.Safety.MaxDriftPercent > 0 {
		if drift := maxDriftPercent(ms.gains, *ms.physics); drift >= l.cfg.Safety.MaxDriftPercent {
			return fmt.Sprintf("gains drifted %.0f%% from physics baseline (limit %.0f%%), consider reset",
				drift, l.cfg.Safety.MaxDriftPercent)
		}
	}
	if until, active := l.seasonal.CooldownUntil(now); active {
		return "seasonal shift cooldown active until " + until.Format(time.RFC3339)
	}
	return ""
}

// AutoApply applies a recommendation without confirmation when every limit
// allows it and confidence has reached the heating type's threshold. On
// success it snapshots the old gains, installs the new ones, clears the
// mode's history and confidence, and opens a validation window.
func (l *Learner) AutoApply(mode thermal.Mode, now time.Time) (*AutoApplyResult, string) {
	if l.validation != nil {
		return nil, "validation in progress"
	}
	if reason := l.CheckAutoApplyLimits(mode, now); reason != "" {
		return nil, reason
	}
	need := l.cfg.HeatingType.Profile().AutoApplyConfidence
	if c := l.Confidence(mode, now); c < need {
		return nil, fmt.Sprintf("confidence %.2f below auto-apply threshold %.2f", c, need)
	}
	ms := l.mode(mode)
	rec, reason := l.calculate(mode, ms.gains, now, false, true)
	if rec == nil {
		return nil, reason
	}

	baseline := thermal.Value(rec.Stats.Overshoot, 0)
	before := l.snapshots.Record(now, mode, ms.gains, ReasonBeforeAutoApply, nil)
	ms.gains = rec.Proposed
	l.snapshots.Record(now, mode, rec.Proposed, ReasonAutoApply, statsBlob(rec.Stats, rec.Confidence))
	ms.autoApplyCount++
	l.ClearHistory(mode)
	ms.confidence = 0
	ms.confidenceAt = now
	l.validation = &validation{
		mode:             mode,
		startedAt:        now,
		baseline:         baseline,
		beforeSnapshotID: before.ID,
	}
	l.logger.Info("gains auto-applied, validation started",
		"mode", mode,
		"kp", rec.Proposed.Kp,
		"ki", rec.Proposed.Ki,
		"kd", rec.Proposed.Kd,
		"baseline_overshoot", baseline,
		"auto_apply_count", ms.autoApplyCount)
	return &AutoApplyResult{Recommendation: *rec, BeforeSnapshotID: before.ID, BaselineOvershoot: baseline}, ""
}

// StartValidation opens a validation window against a known baseline
// overshoot. AutoApply calls it implicitly.
func (l *Learner) StartValidation(mode thermal.Mode, baseline float64, beforeSnapshotID string, now time.Time) {
	l.validation = &validation{mode: mode, startedAt: now, baseline: baseline, beforeSnapshotID: beforeSnapshotID}
}

func (l *Learner) recordValidationCycle(m thermal.CycleMetrics, now time.Time) ValidationResult {
	v := l.validation
	v.overshoots = append(v.overshoots, thermal.Value(m.Overshoot, 0))
	if len(v.overshoots) < l.cfg.ValidationCycles {
		return ValidationNone
	}

	sum := 0.0
	for _, o := range v.overshoots {
		sum += o
	}
	avg := sum / float64(len(v.overshoots))
	base := math.Max(v.baseline, l.cfg.MinBaselineOvershoot)
	degradation := (avg - base) / base
	l.validation = nil

	if degradation <= l.cfg.DegradationThreshold {
		l.logger.Info("validation succeeded", "mode", v.mode, "avg_overshoot", avg, "baseline", v.baseline)
		return ValidationSuccess
	}

	ms := l.mode(v.mode)
	before, ok := l.snapshots.Find(v.beforeSnapshotID)
	if !ok {
		before, ok = l.snapshots.LatestBefore(v.mode)
	}
	if ok {
		ms.gains = before.Gains()
		l.snapshots.Record(now, v.mode, ms.gains, ReasonRollback, map[string]float64{
			"avg_overshoot": avg,
			"baseline":      v.baseline,
			"degradation":   degradation,
		})
	}
	l.ClearHistory(v.mode)
	msg := fmt.Sprintf("%s gains rolled back: overshoot %.2f°C vs baseline %.2f°C (%.0f%% worse)",
		v.mode, avg, v.baseline, degradation*100)
	l.logger.Warn("validation failed, gains rolled back",
		"mode", v.mode,
		"avg_overshoot", avg,
		"baseline", v.baseline,
		"degradation", degradation)
	l.notify(NotifyRollback, msg)
	return ValidationRollback
}

// ApplyManual installs gains chosen by a person.
func (l *Learner) ApplyManual(mode thermal.Mode, g thermal.Gains, now time.Time) PidSnapshot {
	ms := l.mode(mode)
	ms.gains = g
	return l.snapshots.Record(now, mode, g, ReasonManualApply, nil)
}

// ResetToPhysics installs physics-derived gains, makes them the drift
// baseline, and forgets the mode's history and confidence.
func (l *Learner) ResetToPhysics(mode thermal.Mode, g thermal.Gains, now time.Time) PidSnapshot {
	ms := l.mode(mode)
	ms.gains = g
	ms.physics = &g
	ms.confidence = 0
	ms.confidenceAt = now
	l.ClearHistory(mode)
	if l.validation != nil && l.validation.mode == mode {
		l.validation = nil
	}
	return l.snapshots.Record(now, mode, g, ReasonPhysicsReset, nil)
}

// Rollback restores the gains captured before the most recent auto-apply
// for mode.
func (l *Learner) Rollback(mode thermal.Mode, now time.Time) (thermal.Gains, error) {
	before, ok := l.snapshots.LatestBefore(mode)
	if !ok {
		return thermal.Gains{}, ErrNoSnapshot
	}
	ms := l.mode(mode)
	ms.gains = before.Gains()
	l.snapshots.Record(now, mode, ms.gains, ReasonRollback, nil)
	l.ClearHistory(mode)
	if l.validation != nil && l.validation.mode == mode {
		l.validation = nil
	}
	l.logger.Info("gains rolled back manually", "mode", mode)
	return ms.gains, nil
}

func (l *Learner) notify(kind NotificationKind, msg string) {
	if l.notifier != nil {
		l.notifier.Notify(kind, msg)
	}
}

func statsBlob(s Stats, confidence float64) map[string]float64 {
	blob := map[string]float64{
		"confidence":   confidence,
		"oscillations": s.Oscillations,
		"cycles":       float64(s.Cycles),
	}
	if s.Overshoot != nil {
		blob["overshoot"] = *s.Overshoot
	}
	if s.Undershoot != nil {
		blob["undershoot"] = *s.Undershoot
	}
	if s.RiseTime != nil {
		blob["rise_time"] = *s.RiseTime
	}
	if s.SettlingTime != nil {
		blob["settling_time"] = *s.SettlingTime
	}
	return blob
}
