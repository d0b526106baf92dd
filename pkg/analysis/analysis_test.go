package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

var t0 = time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)

// series builds samples spaced step apart starting at t0.
func series(step time.Duration, values ...float64) []thermal.Sample {
	out := make([]thermal.Sample, len(values))
	for i, v := range values {
		out[i] = thermal.Sample{Time: t0.Add(time.Duration(i) * step), Value: v}
	}
	return out
}

func at(minutes int, v float64) thermal.Sample {
	return thermal.Sample{Time: t0.Add(time.Duration(minutes) * time.Minute), Value: v}
}

func TestCalculateOvershoot(t *testing.T) {
	samples := series(5*time.Minute, 18, 19, 20.0, 20.6, 20.3, 20.1)

	t.Run("phase aware", func(t *testing.T) {
		got := CalculateOvershoot(samples, 20, true)
		require.NotNil(t, got)
		assert.InDelta(t, 0.6, *got, 1e-9)
	})

	t.Run("target never reached", func(t *testing.T) {
		assert.Nil(t, CalculateOvershoot(series(5*time.Minute, 18, 18.5, 19), 20, true))
	})

	t.Run("not phase aware uses the whole sequence", func(t *testing.T) {
		got := CalculateOvershoot(series(5*time.Minute, 21, 19, 19.5), 20, false)
		require.NotNil(t, got)
		assert.InDelta(t, 1.0, *got, 1e-9)
	})

	t.Run("never negative", func(t *testing.T) {
		got := CalculateOvershoot(series(5*time.Minute, 18, 19, 19), 20, false)
		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, CalculateOvershoot(nil, 20, true))
	})
}

func TestCalculateUndershoot(t *testing.T) {
	got := CalculateUndershoot(series(time.Minute, 20.2, 19.6, 20.1), 20)
	require.NotNil(t, got)
	assert.InDelta(t, 0.4, *got, 1e-9)

	got = CalculateUndershoot(series(time.Minute, 20.2, 20.4), 20)
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)

	assert.Nil(t, CalculateUndershoot(nil, 20))
}

func TestCountOscillations(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   int
	}{
		{"rise then flat inside band", []float64{18, 19, 19.8, 19.95, 20.05, 20.05, 20.05}, 0},
		{"one overshoot and return", []float64{19, 20.5, 19.5}, 2},
		{"noise inside band ignored", []float64{20.05, 19.95, 20.08, 19.92, 20.0}, 0},
		{"band readings keep previous state", []float64{19.5, 20.0, 19.5, 20.0, 20.5}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountOscillations(series(time.Minute, tt.values...), 20, DefaultOscillationHysteresis)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateSettlingTime(t *testing.T) {
	t.Run("settles after confirmation samples", func(t *testing.T) {
		samples := series(10*time.Minute, 18, 19, 20.5, 20.1, 20.0, 19.9, 20.05)
		got := CalculateSettlingTime(samples, 20, DefaultSettlingTolerance, nil)
		require.NotNil(t, got)
		assert.InDelta(t, 30.0, *got, 1e-9)
	})

	t.Run("in-band blip that leaves is not settled", func(t *testing.T) {
		samples := series(10*time.Minute, 20.1, 20.6, 20.1, 20.0, 20.05, 19.95)
		got := CalculateSettlingTime(samples, 20, DefaultSettlingTolerance, nil)
		require.NotNil(t, got)
		assert.InDelta(t, 20.0, *got, 1e-9)
	})

	t.Run("tail shorter than three samples counts", func(t *testing.T) {
		samples := series(10*time.Minute, 18, 19, 20.1)
		got := CalculateSettlingTime(samples, 20, DefaultSettlingTolerance, nil)
		require.NotNil(t, got)
		assert.InDelta(t, 20.0, *got, 1e-9)
	})

	t.Run("reference time shifts origin", func(t *testing.T) {
		samples := series(10*time.Minute, 18, 19, 20.5, 20.1, 20.0, 19.9, 20.05)
		ref := t0.Add(20 * time.Minute)
		got := CalculateSettlingTime(samples, 20, DefaultSettlingTolerance, &ref)
		require.NotNil(t, got)
		assert.InDelta(t, 10.0, *got, 1e-9)
	})

	t.Run("reference before first sample is clamped", func(t *testing.T) {
		samples := series(10*time.Minute, 20.0, 20.0, 20.0, 20.0)
		ref := t0.Add(-time.Hour)
		got := CalculateSettlingTime(samples, 20, DefaultSettlingTolerance, &ref)
		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got)
	})

	t.Run("never within tolerance", func(t *testing.T) {
		samples := series(10*time.Minute, 18, 18.5, 19, 19.5, 19.7, 20.3, 20.5)
		assert.Nil(t, CalculateSettlingTime(samples, 20, DefaultSettlingTolerance, nil))
	})
}

func TestCalculateSettlingTime_NeverCrossingBand(t *testing.T) {
	// Sequences that never enter target ± tolerance must never settle.
	for offset := 0.25; offset < 3; offset += 0.25 {
		below := series(5*time.Minute, 20-offset-1, 20-offset-0.5, 20-offset, 20-offset, 20-offset)
		above := series(5*time.Minute, 20+offset+1, 20+offset+0.5, 20+offset, 20+offset, 20+offset)
		assert.Nil(t, CalculateSettlingTime(below, 20, 0.2, nil), "offset %.2f below", offset)
		assert.Nil(t, CalculateSettlingTime(above, 20, 0.2, nil), "offset %.2f above", offset)
	}
}

func TestCalculateRiseTime(t *testing.T) {
	samples := series(15*time.Minute, 18, 19, 19.96, 20.2)
	got := CalculateRiseTime(samples, 18, 20, DefaultRiseTolerance)
	require.NotNil(t, got)
	assert.InDelta(t, 30.0, *got, 1e-9)

	assert.Nil(t, CalculateRiseTime(samples, 20, 20, DefaultRiseTolerance), "already at target")
	assert.Nil(t, CalculateRiseTime(series(15*time.Minute, 18, 18.5), 18, 20, DefaultRiseTolerance), "never reached")
}

func TestCalculateSettlingMeanAbsError(t *testing.T) {
	samples := series(10*time.Minute, 18, 19, 20.2, 19.8, 20.4)
	start := t0.Add(20 * time.Minute)

	got := CalculateSettlingMeanAbsError(samples, 20, &start)
	require.NotNil(t, got)
	assert.InDelta(t, (0.2+0.2+0.4)/3, *got, 1e-9)

	late := t0.Add(5 * time.Hour)
	assert.Nil(t, CalculateSettlingMeanAbsError(samples, 20, &late))
}

func TestCalculateDeadTime(t *testing.T) {
	samples := series(5*time.Minute, 18, 18.02, 18.05, 18.15, 18.4)
	got := CalculateDeadTime(samples, t0, 18, DefaultDeadTimeThreshold)
	require.NotNil(t, got)
	assert.InDelta(t, 15.0, *got, 1e-9)

	assert.Nil(t, CalculateDeadTime(samples, time.Time{}, 18, DefaultDeadTimeThreshold))
	assert.Nil(t, CalculateDeadTime(series(5*time.Minute, 18, 18.01), t0, 18, DefaultDeadTimeThreshold))
}

func TestPhaseAwareOvershootTracker_Window(t *testing.T) {
	t.Run("peak inside the post-off window counts", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, DefaultSettlingWindow)
		tracker.SetActuatorOff(t0)
		for _, s := range []thermal.Sample{at(0, 18.0), at(10, 21.0), at(15, 22.0)} {
			tracker.Update(s)
		}
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 2.0, *got, 1e-9)
		assert.Equal(t, PhaseSettling, tracker.Phase())
	})

	t.Run("peak after the window is ignored", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, DefaultSettlingWindow)
		tracker.SetActuatorOff(t0)
		for _, s := range []thermal.Sample{at(0, 18.0), at(10, 21.0), at(50, 22.0)} {
			tracker.Update(s)
		}
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 1.0, *got, 1e-9)
		assert.Equal(t, PhaseFrozen, tracker.Phase())
	})

	t.Run("frozen stays frozen", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, 30*time.Minute)
		tracker.SetActuatorOff(t0)
		tracker.Update(at(5, 20.4))
		tracker.Update(at(40, 20.1))
		tracker.Update(at(41, 25.0))
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 0.4, *got, 1e-9)
	})

	t.Run("window from target reached when off time unknown", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, DefaultSettlingWindow)
		tracker.Update(at(0, 18.0))
		tracker.Update(at(60, 20.0))
		tracker.Update(at(100, 20.7))
		tracker.Update(at(110, 23.0))
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 0.7, *got, 1e-9)
	})

	t.Run("no freeze while the actuator runs", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, DefaultSettlingWindow)
		tracker.Update(at(0, 18.0))
		tracker.Update(at(10, 20.0))
		tracker.Update(at(60, 20.0))
		tracker.SetActuatorOff(at(70, 0).Time)
		tracker.Update(at(75, 21.0))
		tracker.Update(at(90, 20.2))
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 1.0, *got, 1e-9)
		assert.Equal(t, PhaseSettling, tracker.Phase())
	})

	t.Run("restart clears the off time", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, 30*time.Minute)
		tracker.SetActuatorOff(t0)
		tracker.Update(at(5, 20.2))
		tracker.SetActuatorOn()
		tracker.Update(at(40, 20.1))
		tracker.SetActuatorOff(at(45, 0).Time)
		tracker.Update(at(60, 20.8))
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 0.8, *got, 1e-9)
	})

	t.Run("never reached", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, 0)
		tracker.Update(at(0, 18.0))
		assert.Nil(t, tracker.Overshoot())
		assert.Equal(t, PhaseRise, tracker.Phase())
	})

	t.Run("target change restarts detection", func(t *testing.T) {
		tracker := NewPhaseAwareOvershootTracker(20.0, DefaultSettlingWindow)
		tracker.Update(at(0, 20.5))
		tracker.SetTarget(21.0)
		assert.Nil(t, tracker.Overshoot())
		tracker.Update(at(5, 21.3))
		got := tracker.Overshoot()
		require.NotNil(t, got)
		assert.InDelta(t, 0.3, *got, 1e-9)
	})
}

func TestCoolingIsMirrored(t *testing.T) {
	raw := series(5*time.Minute, 26, 25, 24.0, 23.5, 23.8)
	samples, target := thermal.Orient(raw, 24, thermal.ModeCooling)
	got := CalculateOvershoot(samples, target, true)
	require.NotNil(t, got)
	assert.InDelta(t, 0.5, *got, 1e-9)
}
