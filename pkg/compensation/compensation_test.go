package compensation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func mins(n int) time.Time { return t0.Add(time.Duration(n) * time.Minute) }

func TestLinearRegression(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2.5, 4.5, 6.5, 8.5, 10.5}
	reg, err := LinearRegression(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, reg.Slope, 1e-9)
	assert.InDelta(t, 0.5, reg.Intercept, 1e-9)
	assert.InDelta(t, 1.0, reg.RSquared, 1e-9)
	assert.Equal(t, 5, reg.N)

	_, err = LinearRegression([]float64{3, 3, 3}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrZeroVariance)

	_, err = LinearRegression([]float64{1}, []float64{1})
	assert.ErrorIs(t, err, ErrZeroVariance)

	_, err = LinearRegression([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestCorrelation(t *testing.T) {
	r, ok := Correlation([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2})
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-9)

	_, ok = Correlation([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.False(t, ok)
}

// linearObservations returns n observations whose drop rate is exactly
// slope·difference + 0.01, spread over outdoor temperatures from -5 °C.
func linearObservations(n int, slope float64) []SteadyStateObservation {
	out := make([]SteadyStateObservation, n)
	for i := range out {
		outdoor := -5 + float64(i)*1.5
		diff := 20.5 - outdoor
		out[i] = SteadyStateObservation{
			Timestamp:      mins(i * 60),
			OutdoorTemp:    outdoor,
			TempDifference: diff,
			TempDropRate:   slope*diff + 0.01,
		}
	}
	return out
}

func TestFirstLearner_Converges(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	for _, o := range linearObservations(12, 0.04) {
		l.AddObservation(o)
	}

	res, err := l.CheckConvergence(mins(0))
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.04, res.Ke, 1e-9)
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.True(t, l.IsConverged())
	assert.InDelta(t, 0.04, l.Ke(), 1e-9)
}

func TestFirstLearner_NotYet(t *testing.T) {
	t.Run("too few observations", func(t *testing.T) {
		l := NewFirstLearner(DefaultFirstConfig(), nil)
		for _, o := range linearObservations(9, 0.04) {
			l.AddObservation(o)
		}
		res, err := l.CheckConvergence(t0)
		require.NoError(t, err)
		assert.False(t, res.Converged)
		assert.Equal(t, "insufficient observations", res.Reason)
		assert.False(t, l.IsConverged())
	})

	t.Run("narrow outdoor range", func(t *testing.T) {
		l := NewFirstLearner(DefaultFirstConfig(), nil)
		for i := 0; i < 10; i++ {
			outdoor := 5 + float64(i)*0.3
			l.AddObservation(SteadyStateObservation{
				OutdoorTemp:    outdoor,
				TempDifference: 20 - outdoor,
				TempDropRate:   0.04 * (20 - outdoor),
			})
		}
		res, err := l.CheckConvergence(t0)
		require.NoError(t, err)
		assert.False(t, res.Converged)
		assert.Contains(t, res.Reason, "range")
	})

	t.Run("weak fit", func(t *testing.T) {
		l := NewFirstLearner(DefaultFirstConfig(), nil)
		for i := 0; i < 12; i++ {
			rate := 0.2
			if i%2 == 1 {
				rate = 0.9
			}
			l.AddObservation(SteadyStateObservation{
				OutdoorTemp:    float64(i),
				TempDifference: float64(10 + i),
				TempDropRate:   rate,
			})
		}
		res, err := l.CheckConvergence(t0)
		require.NoError(t, err)
		assert.False(t, res.Converged)
		assert.Less(t, res.RSquared, 0.7)
		assert.False(t, l.IsConverged())
	})
}

func TestFirstLearner_ZeroVarianceLeavesStateUnchanged(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	for i := 0; i < 10; i++ {
		l.AddObservation(SteadyStateObservation{
			OutdoorTemp:    float64(i),
			TempDifference: 15,
			TempDropRate:   0.5 + float64(i)*0.01,
		})
	}
	_, err := l.CheckConvergence(t0)
	assert.ErrorIs(t, err, ErrZeroVariance)
	assert.False(t, l.IsConverged())
	assert.Equal(t, 0.0, l.Ke())
}

func TestFirstLearner_KeClamped(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	for _, o := range linearObservations(12, 5.0) {
		l.AddObservation(o)
	}
	res, err := l.CheckConvergence(t0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Ke)
}

// runPattern drives the learner with a 60-minute period: 20 minutes on,
// 40 minutes off. During each off interval the room cools at dropRate °C/h
// from 21 °C, sampled every 10 minutes.
func runPattern(l *FirstLearner, periods int, outdoor, dropRate float64) {
	for p := 0; p < periods; p++ {
		base := p * 60
		l.RecordTemperature(mins(base), 21.0, outdoor)
		l.RecordActuator(mins(base), true)
		l.RecordActuator(mins(base+20), false)
		for m := 20; m <= 60; m += 10 {
			elapsed := float64(m-20) / 60
			l.RecordTemperature(mins(base+m), 21.0-dropRate*elapsed, outdoor)
		}
	}
	l.RecordActuator(mins(periods*60), true)
}

func TestFirstLearner_RecordsSteadyOffIntervals(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	runPattern(l, 4, 5.0, 0.6)

	obs := l.Observations()
	// The first two off intervals start before an hour of steady duty cycle.
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.InDelta(t, 0.6, o.TempDropRate, 1e-9)
		assert.InDelta(t, 15.8, o.TempDifference, 1e-9)
		assert.InDelta(t, 5.0, o.OutdoorTemp, 1e-9)
		assert.InDelta(t, 100.0/3, o.DutyCycle, 1e-6)
		assert.InDelta(t, 40.0/60, o.DurationHours, 1e-9)
		assert.Equal(t, 21.0, o.IndoorStart)
		assert.InDelta(t, 20.6, o.IndoorEnd, 1e-9)
	}
	assert.True(t, l.IsSteady(mins(240)))
}

func TestFirstLearner_IgnoresNoiseAndShortIntervals(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	runPattern(l, 4, 5.0, 0.01)
	assert.Empty(t, l.Observations(), "drop rate below noise floor")

	cfg := DefaultFirstConfig()
	cfg.MinOffDuration = 45 * time.Minute
	l = NewFirstLearner(cfg, nil)
	runPattern(l, 4, 5.0, 0.6)
	assert.Empty(t, l.Observations(), "off interval shorter than minimum")
}

func TestFirstLearner_DutyChangeResetsSteady(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	runPattern(l, 3, 5.0, 0.6)
	require.True(t, l.IsSteady(mins(180)))

	// Stay on for a full hour: duty jumps to 100%.
	l.RecordTemperature(mins(240), 21, 5)
	assert.False(t, l.IsSteady(mins(240)))
}

func TestFirstLearner_StateRoundTrip(t *testing.T) {
	l := NewFirstLearner(DefaultFirstConfig(), nil)
	for _, o := range linearObservations(12, 0.04) {
		l.AddObservation(o)
	}
	_, err := l.CheckConvergence(mins(5))
	require.NoError(t, err)

	restored := NewFirstLearner(DefaultFirstConfig(), nil)
	restored.Restore(l.State())
	assert.Equal(t, l.State(), restored.State())
	assert.True(t, restored.IsConverged())

	restored.Reset()
	assert.False(t, restored.IsConverged())
	assert.Empty(t, restored.Observations())
}

func continuousObs(n int, slope float64) []CompensationObservation {
	out := make([]CompensationObservation, n)
	for i := range out {
		outdoor := -4 + float64(i)*0.5
		out[i] = CompensationObservation{
			Timestamp:           mins(i * 30),
			OutdoorTemp:         outdoor,
			SteadyOutputPercent: 40 + slope*outdoor,
			IndoorTemp:          20.9,
			TargetTemp:          21,
		}
	}
	return out
}

func TestContinuousAdjuster_Disabled(t *testing.T) {
	a := NewContinuousAdjuster(DefaultContinuousConfig(), nil)
	assert.False(t, a.AddObservation(CompensationObservation{}))
	assert.Nil(t, a.Evaluate(t0))
}

func TestContinuousAdjuster_Directions(t *testing.T) {
	tests := []struct {
		name  string
		slope float64
		want  float64
	}{
		{"output rises as it gets colder", -2, 0.55},
		{"output rises as it gets warmer", 2, 0.45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewContinuousAdjuster(DefaultContinuousConfig(), nil)
			a.Enable(0.5)
			for _, o := range continuousObs(12, tt.slope) {
				require.True(t, a.AddObservation(o))
			}
			adj := a.Evaluate(mins(600))
			require.NotNil(t, adj)
			assert.InDelta(t, tt.want, adj.Ke, 1e-9)
			assert.InDelta(t, tt.want, a.Ke(), 1e-9)
			assert.Equal(t, 0, a.ObservationCount(), "observations cleared after a change")
		})
	}
}

func TestContinuousAdjuster_NoChange(t *testing.T) {
	a := NewContinuousAdjuster(DefaultContinuousConfig(), nil)
	a.Enable(0.5)

	for _, o := range continuousObs(11, -2) {
		a.AddObservation(o)
	}
	assert.Nil(t, a.Evaluate(t0), "too few observations")

	a.AddObservation(CompensationObservation{OutdoorTemp: 1.5, SteadyOutputPercent: 40})
	a.Disable()
	a.Enable(0.5)
	for i := 0; i < 12; i++ {
		a.AddObservation(CompensationObservation{OutdoorTemp: 2 + float64(i)*0.1, SteadyOutputPercent: 40 - float64(i)})
	}
	assert.Nil(t, a.Evaluate(t0), "outdoor range too narrow")

	a.Disable()
	a.Enable(0.5)
	for _, o := range continuousObs(12, 0) {
		a.AddObservation(o)
	}
	assert.Nil(t, a.Evaluate(t0), "flat output does not correlate")
	assert.Equal(t, 0.5, a.Ke())
}

func TestContinuousAdjuster_RateLimited(t *testing.T) {
	a := NewContinuousAdjuster(DefaultContinuousConfig(), nil)
	a.Enable(0.5)
	for _, o := range continuousObs(12, -2) {
		a.AddObservation(o)
	}
	require.NotNil(t, a.Evaluate(mins(0)))

	for _, o := range continuousObs(12, -2) {
		a.AddObservation(o)
	}
	ok, reason := a.CanAdjustWithReason(mins(60))
	assert.False(t, ok)
	assert.Contains(t, reason, "remaining")
	assert.Nil(t, a.Evaluate(mins(60)))
	assert.Equal(t, 12, a.ObservationCount(), "rate-limited evaluation keeps observations")

	adj := a.Evaluate(mins(24 * 60))
	require.NotNil(t, adj)
	assert.InDelta(t, 0.6, adj.Ke, 1e-9)
}

func TestContinuousAdjuster_StateRoundTrip(t *testing.T) {
	a := NewContinuousAdjuster(DefaultContinuousConfig(), nil)
	a.Enable(0.5)
	for _, o := range continuousObs(12, -2) {
		a.AddObservation(o)
	}
	require.NotNil(t, a.Evaluate(mins(0)))
	a.AddObservation(continuousObs(1, 0)[0])

	b := NewContinuousAdjuster(DefaultContinuousConfig(), nil)
	b.Restore(a.State())
	assert.Equal(t, a.State(), b.State())
	ok, _ := b.CanAdjustWithReason(mins(60))
	assert.False(t, ok)
}
