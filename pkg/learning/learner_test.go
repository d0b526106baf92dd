package learning

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

var (
	t0       = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	heating  = thermal.ModeHeating
	cooling  = thermal.ModeCooling
	physical = thermal.Gains{Kp: 50, Ki: 0.5, Kd: 200}
)

func hours(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }

type fakeGate struct{ converged bool }

func (g *fakeGate) IsConverged() bool { return g.converged }

type notification struct {
	kind NotificationKind
	msg  string
}

type fakeNotifier struct{ got []notification }

func (n *fakeNotifier) Notify(kind NotificationKind, msg string) {
	n.got = append(n.got, notification{kind, msg})
}

// cycle builds a clean heating cycle that ends at end.
func cycle(end time.Time, overshoot, riseMinutes float64) thermal.CycleMetrics {
	return thermal.CycleMetrics{
		Mode:      heating,
		StartTime: end.Add(-time.Hour),
		EndTime:   end,
		Target:    21,
		Overshoot: thermal.Float(overshoot),
		RiseTime:  thermal.Float(riseMinutes),
	}
}

func newLearner(opts ...Option) *Learner {
	l := NewLearner(DefaultConfig(), opts...)
	l.SetGains(heating, physical)
	return l
}

func TestModerateOvershootRaisesOnlyKd(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	require.Equal(t, 0.0, l.Confidence(heating, hours(6)))

	rec, reason := l.CalculatePidAdjustment(heating, physical, hours(6), false)
	require.NotNil(t, rec, reason)
	assert.Equal(t, []string{"moderate_overshoot"}, rec.Rules)
	assert.Greater(t, rec.Proposed.Kd, physical.Kd)
	assert.Equal(t, physical.Kp, rec.Proposed.Kp)
	assert.Equal(t, physical.Ki, rec.Proposed.Ki)
	assert.InDelta(t, 2.0, rec.Multiplier, 1e-9)
	assert.InDelta(t, 280.0, rec.Proposed.Kd, 1e-9)
}

func TestInsufficientCycles(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 5; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	rec, reason := l.CalculatePidAdjustment(heating, physical, hours(5), false)
	assert.Nil(t, rec)
	assert.Contains(t, reason, "insufficient data")
}

func TestDisturbedCyclesAreExcluded(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 8; i++ {
		m := cycle(hours(i), 0.6, 30)
		m.DisturbanceTags = []string{thermal.TagSolarGain}
		l.AddCycle(m)
	}
	assert.Equal(t, 8, l.CycleCount(heating), "kept for the record")
	assert.Equal(t, 0, l.Statistics(heating).Cycles)
	rec, _ := l.CalculatePidAdjustment(heating, physical, hours(8), false)
	assert.Nil(t, rec)
}

func TestLifetimeCapBlocksAutoApply(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	l.SetAutoApplyCount(heating, 12)
	l.SetAutoApplyCount(cooling, 8)

	reason := l.CheckAutoApplyLimits(heating, hours(6))
	assert.Contains(t, reason, "manual review")

	rec, why := l.CalculatePidAdjustment(heating, physical, hours(6), true)
	assert.Nil(t, rec)
	assert.Contains(t, why, "manual review")

	res, why := l.AutoApply(heating, hours(6))
	assert.Nil(t, res)
	assert.Contains(t, why, "manual review")

	// without the auto-apply check the recommendation is still available
	rec, _ = l.CalculatePidAdjustment(heating, physical, hours(6), false)
	assert.NotNil(t, rec)
}

func TestSeasonalCap(t *testing.T) {
	l := newLearner()
	for i := 0; i < 5; i++ {
		l.snapshots.Record(t0.Add(-time.Duration(i)*24*time.Hour), heating, physical, ReasonAutoApply, nil)
	}
	assert.Contains(t, l.CheckAutoApplyLimits(heating, t0), "seasonal auto-apply limit")
	assert.Empty(t, l.CheckAutoApplyLimits(heating, t0.Add(100*24*time.Hour)))
}

func TestDriftCap(t *testing.T) {
	l := newLearner()
	l.SetPhysicsBaseline(heating, physical)

	l.SetGains(heating, thermal.Gains{Kp: 80, Ki: 0.5, Kd: 200})
	assert.Contains(t, l.CheckAutoApplyLimits(heating, t0), "consider reset")

	l.SetGains(heating, thermal.Gains{Kp: 60, Ki: 0.5, Kd: 200})
	assert.Empty(t, l.CheckAutoApplyLimits(heating, t0))
}

func TestSeasonalShiftStartsCooldown(t *testing.T) {
	n := &fakeNotifier{}
	l := newLearner(WithNotifier(n))

	var detected time.Time
	for day := 0; day < 60 && detected.IsZero(); day++ {
		outdoor := 0.0
		if day >= 12 {
			outdoor = 15
		}
		m := cycle(t0.Add(time.Duration(day)*24*time.Hour), 0.1, 30)
		m.OutdoorTempAvg = thermal.Float(outdoor)
		l.AddCycle(m)
		if len(n.got) > 0 {
			detected = m.EndTime
		}
	}
	require.False(t, detected.IsZero(), "shift never detected")
	assert.Equal(t, NotifySeasonalShift, n.got[0].kind)
	assert.True(t, detected.After(t0.Add(12*24*time.Hour)))
	assert.Less(t, l.seasonal.Uncertainty(), 5.0, "baseline tighter than the prior")

	assert.Contains(t, l.CheckAutoApplyLimits(heating, detected.Add(24*time.Hour)), "seasonal shift cooldown")
	assert.Empty(t, l.CheckAutoApplyLimits(heating, detected.Add(8*24*time.Hour)))
}

func TestValidationRollback(t *testing.T) {
	n := &fakeNotifier{}
	l := newLearner(WithNotifier(n))
	before := l.snapshots.Record(t0, heating, physical, ReasonBeforeAutoApply, nil)
	applied := thermal.Gains{Kp: 50, Ki: 0.5, Kd: 260}
	l.SetGains(heating, applied)
	l.StartValidation(heating, 0.15, before.ID, t0)
	require.Equal(t, StateValidating, l.State())

	var result ValidationResult
	for i := 1; i <= 5; i++ {
		result = l.AddCycle(cycle(hours(i), 0.21, 30))
		if i < 5 {
			require.Equal(t, ValidationNone, result)
		}
	}
	assert.Equal(t, ValidationRollback, result)
	assert.Equal(t, physical, l.Gains(heating))
	assert.False(t, l.IsValidating())
	assert.Equal(t, 0, l.CycleCount(heating))

	require.Len(t, n.got, 1)
	assert.Equal(t, NotifyRollback, n.got[0].kind)

	snaps := l.Snapshots()
	assert.Equal(t, ReasonRollback, snaps[len(snaps)-1].Reason)
}

func TestValidationSuccess(t *testing.T) {
	l := newLearner()
	l.StartValidation(heating, 0.15, "", t0)
	var result ValidationResult
	for i := 1; i <= 5; i++ {
		result = l.AddCycle(cycle(hours(i), 0.17, 30))
	}
	assert.Equal(t, ValidationSuccess, result)
	assert.Equal(t, physical, l.Gains(heating))
	assert.Equal(t, StateLearning, l.State())
}

func TestValidationBlocksRecommendations(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	l.StartValidation(cooling, 0.2, "", hours(6))
	rec, reason := l.CalculatePidAdjustment(heating, physical, hours(6), false)
	assert.Nil(t, rec)
	assert.Equal(t, "validation in progress", reason)
}

func TestAutoApplyOpensValidation(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 10; i++ {
		l.AddCycle(cycle(hours(i), 0.22, 30))
	}
	require.GreaterOrEqual(t, l.Confidence(heating, hours(10)), 0.7)

	res, reason := l.AutoApply(heating, hours(10))
	require.NotNil(t, res, reason)
	assert.Greater(t, res.Recommendation.Proposed.Kd, physical.Kd)
	assert.InDelta(t, 0.22, res.BaselineOvershoot, 1e-9)
	assert.Equal(t, res.Recommendation.Proposed, l.Gains(heating))

	assert.True(t, l.IsValidating())
	assert.Equal(t, 1, l.AutoApplyCount(heating))
	assert.Equal(t, 0, l.CycleCount(heating))
	assert.Equal(t, 0.0, l.Confidence(heating, hours(10)))

	snaps := l.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, ReasonBeforeAutoApply, snaps[0].Reason)
	assert.Equal(t, physical, snaps[0].Gains())
	assert.Equal(t, ReasonAutoApply, snaps[1].Reason)
	assert.Equal(t, res.BeforeSnapshotID, snaps[0].ID)

	again, reason := l.AutoApply(heating, hours(11))
	assert.Nil(t, again)
	assert.Equal(t, "validation in progress", reason)
}

func TestAutoApplyNeedsConfidence(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	res, reason := l.AutoApply(heating, hours(6))
	assert.Nil(t, res)
	assert.Contains(t, reason, "confidence")
}

func TestHybridRateLimit(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	rec, _ := l.CalculatePidAdjustment(heating, physical, hours(6), false)
	require.NotNil(t, rec, "first adjustment is exempt")

	l.AddCycle(cycle(hours(7), 0.6, 30))
	l.AddCycle(cycle(hours(8), 0.6, 30))
	rec, reason := l.CalculatePidAdjustment(heating, physical, hours(8), false)
	assert.Nil(t, rec)
	assert.Contains(t, reason, "2 of 3 cycles")

	l.AddCycle(cycle(hours(9), 0.6, 30))
	rec, reason = l.CalculatePidAdjustment(heating, physical, hours(9), false)
	assert.Nil(t, rec)
	assert.Contains(t, reason, "remaining")

	preview, _ := l.PreviewPidAdjustment(heating, physical, hours(9))
	assert.Nil(t, preview)

	rec, reason = l.CalculatePidAdjustment(heating, physical, hours(14), false)
	require.NotNil(t, rec, reason)

	l.ClearHistory(heating)
	ok, _ := l.CanAdjustWithReason(heating, hours(14))
	assert.True(t, ok, "history clear resets the rate limit")
}

func TestPreviewDoesNotConsumeRateLimit(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	preview, _ := l.PreviewPidAdjustment(heating, physical, hours(6))
	require.NotNil(t, preview)
	rec, _ := l.CalculatePidAdjustment(heating, physical, hours(6), false)
	require.NotNil(t, rec)
	assert.Equal(t, preview.Proposed, rec.Proposed)
}

func TestCompensationGate(t *testing.T) {
	gate := &fakeGate{}
	l := newLearner(WithGate(gate))
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	rec, reason := l.CalculatePidAdjustment(heating, physical, hours(6), false)
	assert.Nil(t, rec)
	assert.Contains(t, reason, "compensation")

	gate.converged = true
	rec, _ = l.CalculatePidAdjustment(heating, physical, hours(6), false)
	assert.NotNil(t, rec)
}

func TestDutyCycledSuppressesOscillationRules(t *testing.T) {
	add := func(l *Learner) {
		for i := 1; i <= 6; i++ {
			m := cycle(hours(i), 0.1, 30)
			m.OscillationCount = 5
			l.AddCycle(m)
		}
	}

	l := newLearner()
	add(l)
	rec, _ := l.CalculatePidAdjustment(heating, physical, hours(6), false)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"high_oscillation"}, rec.Rules)
	assert.Less(t, rec.Proposed.Kp, physical.Kp)
	assert.Greater(t, rec.Proposed.Kd, physical.Kd)

	cfg := DefaultConfig()
	cfg.DutyCycled = true
	pwm := NewLearner(cfg)
	pwm.SetGains(heating, physical)
	add(pwm)
	rec, reason := pwm.CalculatePidAdjustment(heating, physical, hours(6), false)
	assert.Nil(t, rec)
	assert.Equal(t, "no rule triggered", reason)
}

func TestGainsClampedToBounds(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 6; i++ {
		l.AddCycle(cycle(hours(i), 0.6, 30))
	}
	current := thermal.Gains{Kp: 50, Ki: 0.5, Kd: 4000}
	rec, _ := l.CalculatePidAdjustment(heating, current, hours(6), false)
	require.NotNil(t, rec)
	assert.Equal(t, 5000.0, rec.Proposed.Kd)
}

func TestConfidence(t *testing.T) {
	l := newLearner()
	assert.Equal(t, 2.0, l.LearningRateMultiplier(0))
	assert.Equal(t, 0.5, l.LearningRateMultiplier(1))
	assert.InDelta(t, 1.25, l.LearningRateMultiplier(0.5), 1e-9)

	l.AddCycle(cycle(hours(1), 0.1, 30))
	assert.InDelta(t, 0.1, l.Confidence(heating, hours(1)), 1e-9)
	assert.InDelta(t, 0.06, l.Confidence(heating, hours(1+48)), 1e-9, "decays 0.02 per day")
	assert.Equal(t, 0.0, l.Confidence(heating, hours(1+24*30)))

	l.AddCycle(cycle(hours(2), 0.9, 30))
	assert.InDelta(t, 0.05, l.Confidence(heating, hours(2)), 1e-3)
}

func TestIsGoodCycleFollowsHeatingType(t *testing.T) {
	floor := DefaultConfig()
	floor.HeatingType = HeatingFloorHydronic
	forced := DefaultConfig()
	forced.HeatingType = HeatingForcedAir

	m := cycle(t0, 0.28, 40)
	assert.True(t, NewLearner(floor).IsGoodCycle(m))
	assert.False(t, NewLearner(forced).IsGoodCycle(m))
}

func TestStatisticsDecayRatio(t *testing.T) {
	l := newLearner()
	for i := 1; i <= 4; i++ {
		m := cycle(hours(i), 0.1, 30)
		m.IntegralAtToleranceEntry = thermal.Float(4)
		m.DecayContribution = thermal.Float(2)
		l.AddCycle(m)
	}
	l.AddCycle(cycle(hours(5), 0.1, 30))
	s := l.Statistics(heating)
	assert.InDelta(t, 0.5, s.DecayRatio, 1e-9)
	assert.Equal(t, 5, s.Cycles)
}

func TestManualCommands(t *testing.T) {
	l := newLearner()
	_, err := l.Rollback(heating, t0)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	manual := thermal.Gains{Kp: 40, Ki: 0.4, Kd: 150}
	snap := l.ApplyManual(heating, manual, t0)
	assert.Equal(t, ReasonManualApply, snap.Reason)
	assert.Equal(t, manual, l.Gains(heating))

	l.AddCycle(cycle(hours(1), 0.1, 30))
	reset := l.ResetToPhysics(heating, physical, hours(2))
	assert.Equal(t, ReasonPhysicsReset, reset.Reason)
	assert.Equal(t, 0, l.CycleCount(heating))
	assert.Equal(t, StateIdle, l.State())

	l.snapshots.Record(hours(3), heating, manual, ReasonBeforeAutoApply, nil)
	g, err := l.Rollback(heating, hours(4))
	require.NoError(t, err)
	assert.Equal(t, manual, g)
}

func TestSnapshotHistoryRoundTrip(t *testing.T) {
	h := NewSnapshotHistory(10)
	h.Record(t0, heating, physical, ReasonBeforeAutoApply, nil)
	h.Record(t0.Add(time.Minute), heating, thermal.Gains{Kp: 50, Ki: 0.5, Kd: 280}, ReasonAutoApply,
		map[string]float64{"overshoot": 0.6, "confidence": 0.12})
	h.Record(t0.Add(time.Hour), cooling, thermal.Gains{Kp: 30, Ki: 0.2, Kd: 90}, ReasonManualApply, nil)

	data, err := json.Marshal(h.Entries())
	require.NoError(t, err)
	var decoded []PidSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, h.Entries(), decoded)
}

func TestSnapshotEvictionKeepsPairs(t *testing.T) {
	h := NewSnapshotHistory(3)
	h.Record(hours(1), heating, physical, ReasonBeforeAutoApply, nil)
	h.Record(hours(2), heating, physical, ReasonAutoApply, nil)
	h.Record(hours(3), heating, physical, ReasonManualApply, nil)
	h.Record(hours(4), heating, physical, ReasonBeforeAutoApply, nil)
	h.Record(hours(5), heating, physical, ReasonAutoApply, nil)

	var reasons []SnapshotReason
	for _, e := range h.Entries() {
		reasons = append(reasons, e.Reason)
	}
	assert.Equal(t, []SnapshotReason{ReasonManualApply, ReasonBeforeAutoApply, ReasonAutoApply}, reasons)
}

func TestExportImport(t *testing.T) {
	l := newLearner()
	l.SetPhysicsBaseline(heating, physical)
	for i := 1; i <= 10; i++ {
		m := cycle(hours(i), 0.22, 30)
		m.OutdoorTempAvg = thermal.Float(3)
		l.AddCycle(m)
	}
	_, reason := l.AutoApply(heating, hours(10))
	require.Empty(t, reason)
	l.AddCycle(cycle(hours(11), 0.2, 30))

	restored := NewLearner(DefaultConfig())
	restored.Import(l.Export())
	assert.Equal(t, l.Export(), restored.Export())
	assert.True(t, restored.IsValidating())
	assert.Equal(t, l.Gains(heating), restored.Gains(heating))
}
