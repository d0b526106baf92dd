package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

func TestRules(t *testing.T) {
	cfg := DefaultRuleConfig()
	tests := []struct {
		name  string
		stats Stats
		want  Factors
		fired []string
	}{
		{
			name:  "extreme overshoot cuts kp and ki",
			stats: Stats{Overshoot: thermal.Float(1.2)},
			want:  Factors{Kp: 0.88, Ki: 0.9, Kd: 1},
			fired: []string{"extreme_overshoot"},
		},
		{
			name:  "kp cut capped",
			stats: Stats{Overshoot: thermal.Float(3)},
			want:  Factors{Kp: 0.85, Ki: 0.9, Kd: 1},
			fired: []string{"extreme_overshoot"},
		},
		{
			name:  "moderate overshoot raises kd",
			stats: Stats{Overshoot: thermal.Float(0.4)},
			want:  Factors{Kp: 1, Ki: 1, Kd: 1.2},
			fired: []string{"moderate_overshoot"},
		},
		{
			name:  "slow rise raises kp",
			stats: Stats{RiseTime: thermal.Float(75)},
			want:  Factors{Kp: 1.1, Ki: 1, Kd: 1},
			fired: []string{"slow_rise"},
		},
		{
			name:  "undershoot raises ki",
			stats: Stats{Undershoot: thermal.Float(1.0)},
			want:  Factors{Kp: 1, Ki: 1.5, Kd: 1},
			fired: []string{"undershoot"},
		},
		{
			name:  "undershoot increase is decay aware",
			stats: Stats{Undershoot: thermal.Float(1.0), DecayRatio: 0.5},
			want:  Factors{Kp: 1, Ki: 1.25, Kd: 1},
			fired: []string{"undershoot"},
		},
		{
			name:  "undershoot increase capped at 100%",
			stats: Stats{Undershoot: thermal.Float(3)},
			want:  Factors{Kp: 1, Ki: 2, Kd: 1},
			fired: []string{"undershoot"},
		},
		{
			name:  "moderate oscillation",
			stats: Stats{Oscillations: 2},
			want:  Factors{Kp: 1, Ki: 1, Kd: 1.1},
			fired: []string{"moderate_oscillation"},
		},
		{
			name:  "slow settling and moderate overshoot combine",
			stats: Stats{Overshoot: thermal.Float(0.4), SettlingTime: thermal.Float(120)},
			want:  Factors{Kp: 1, Ki: 1, Kd: 1.2 * 1.15},
			fired: []string{"moderate_overshoot", "slow_settling"},
		},
		{
			name:  "small overshoot fires nothing",
			stats: Stats{Overshoot: thermal.Float(0.1), RiseTime: thermal.Float(30)},
			want:  Unity(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fired := EvaluateRules(DefaultRules(), tt.stats, cfg, false)
			assert.InDelta(t, tt.want.Kp, got.Kp, 1e-9)
			assert.InDelta(t, tt.want.Ki, got.Ki, 1e-9)
			assert.InDelta(t, tt.want.Kd, got.Kd, 1e-9)
			assert.Equal(t, tt.fired, fired)
		})
	}
}

func TestRules_DutyCycledSkipsOscillation(t *testing.T) {
	got, fired := EvaluateRules(DefaultRules(), Stats{Oscillations: 6}, DefaultRuleConfig(), true)
	assert.True(t, got.IsUnity())
	assert.Empty(t, fired)
}

func TestFactorsScale(t *testing.T) {
	f := Factors{Kp: 0.9, Ki: 1, Kd: 1.2}
	got := f.Scale(2)
	assert.InDelta(t, 0.8, got.Kp, 1e-9)
	assert.InDelta(t, 1.0, got.Ki, 1e-9)
	assert.InDelta(t, 1.4, got.Kd, 1e-9)

	floored := Factors{Kp: 0.3, Ki: 1, Kd: 1}.Scale(2)
	assert.Equal(t, minFactor, floored.Kp)

	zoned := f.ScaleBy(Factors{Kp: 0.5, Ki: 1, Kd: 0})
	assert.InDelta(t, 0.95, zoned.Kp, 1e-9)
	assert.InDelta(t, 1.0, zoned.Kd, 1e-9)
}

func TestHeatingType(t *testing.T) {
	ht, err := ParseHeatingType(" Forced_Air ")
	assert.NoError(t, err)
	assert.Equal(t, HeatingForcedAir, ht)

	_, err = ParseHeatingType("steam")
	assert.Error(t, err)

	assert.Equal(t, defaultHeatingProfile, HeatingType("steam").Profile())
	assert.Greater(t, HeatingFloorHydronic.Profile().Thresholds.MaxSettlingMinutes,
		HeatingForcedAir.Profile().Thresholds.MaxSettlingMinutes)
}
