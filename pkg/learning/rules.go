package learning

import "math"

// Factors are multiplicative changes to the gains; 1 means unchanged.
type Factors struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// Unity returns factors that leave every gain unchanged.
func Unity() Factors { return Factors{Kp: 1, Ki: 1, Kd: 1} }

// Mul combines two sets of factors.
func (f Factors) Mul(o Factors) Factors {
	return Factors{Kp: f.Kp * o.Kp, Ki: f.Ki * o.Ki, Kd: f.Kd * o.Kd}
}

// Scale stretches each factor's distance from 1 by s: 1+(f-1)·s. Results are
// floored at minFactor so a large multiplier can never flip a gain's sign.
func (f Factors) Scale(s float64) Factors {
	scale := func(v float64) float64 { return math.Max(minFactor, 1+(v-1)*s) }
	return Factors{Kp: scale(f.Kp), Ki: scale(f.Ki), Kd: scale(f.Kd)}
}

// ScaleBy applies per-gain zone factors the same way Scale applies the
// learning-rate multiplier.
func (f Factors) ScaleBy(zone Factors) Factors {
	scale := func(v, s float64) float64 { return math.Max(minFactor, 1+(v-1)*s) }
	return Factors{Kp: scale(f.Kp, zone.Kp), Ki: scale(f.Ki, zone.Ki), Kd: scale(f.Kd, zone.Kd)}
}

// IsUnity reports whether no gain changes.
func (f Factors) IsUnity() bool {
	const eps = 1e-9
	return math.Abs(f.Kp-1) < eps && math.Abs(f.Ki-1) < eps && math.Abs(f.Kd-1) < eps
}

const minFactor = 0.1

// Stats are the robust-averaged metrics of the recent clean cycles. A nil
// field means no cycle reported that metric.
type Stats struct {
	Overshoot    *float64 `json:"overshoot,omitempty"`
	Undershoot   *float64 `json:"undershoot,omitempty"`
	RiseTime     *float64 `json:"rise_time,omitempty"`
	SettlingTime *float64 `json:"settling_time,omitempty"`
	Oscillations float64  `json:"oscillations"`
	// DecayRatio is the share of integral already unwinding on its own,
	// in [0,1]; 0 when no cycle carried decay metrics.
	DecayRatio float64 `json:"decay_ratio"`
	Cycles     int     `json:"cycles"`
}

// RuleConfig holds the rule thresholds and step sizes.
type RuleConfig struct {
	ModerateOvershoot float64 // lower bound of the kd band (°C)
	ExtremeOvershoot  float64 // above this kp/ki are reduced (°C)
	MaxKpReduction    float64 // cap on the extreme-overshoot kp cut
	KpReductionPerC   float64 // kp cut per °C of extreme overshoot
	ExtremeKiCut      float64
	ModerateKdBoost   float64

	SlowRiseMinutes float64
	SlowRiseKpBoost float64

	UndershootThreshold float64
	UndershootKiPerC    float64 // ki increase per °C of undershoot
	MaxUndershootKi     float64 // cap on the ki increase (1.0 = +100%)

	HighOscillations     float64
	HighOscKpCut         float64
	HighOscKdBoost       float64
	ModerateOscillations float64
	ModerateOscKdBoost   float64

	SlowSettlingMinutes float64
	SlowSettlingKdBoost float64
}

// DefaultRuleConfig returns the standard thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		ModerateOvershoot: 0.2,
		ExtremeOvershoot:  1.0,
		MaxKpReduction:    0.15,
		KpReductionPerC:   0.10,
		ExtremeKiCut:      0.10,
		ModerateKdBoost:   0.20,

		SlowRiseMinutes: 60,
		SlowRiseKpBoost: 0.10,

		UndershootThreshold: 0.3,
		UndershootKiPerC:    0.5,
		MaxUndershootKi:     1.0,

		HighOscillations:     3,
		HighOscKpCut:         0.10,
		HighOscKdBoost:       0.20,
		ModerateOscillations: 1,
		ModerateOscKdBoost:   0.10,

		SlowSettlingMinutes: 90,
		SlowSettlingKdBoost: 0.15,
	}
}

// Rule is one row of the rule table: when Applies holds, Effect contributes
// its factors.
type Rule struct {
	Name string
	// Oscillation rules are skipped in duty-cycled mode, where on/off pulsing
	// shows up as expected temperature ripple.
	Oscillation bool
	Applies     func(s Stats, c RuleConfig) bool
	Effect      func(s Stats, c RuleConfig) Factors
}

// DefaultRules returns the rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "extreme_overshoot",
			Applies: func(s Stats, c RuleConfig) bool {
				return s.Overshoot != nil && *s.Overshoot > c.ExtremeOvershoot
			},
			Effect: func(s Stats, c RuleConfig) Factors {
				cut := math.Min(c.MaxKpReduction, *s.Overshoot*c.KpReductionPerC)
				return Factors{Kp: 1 - cut, Ki: 1 - c.ExtremeKiCut, Kd: 1}
			},
		},
		{
			Name: "moderate_overshoot",
			Applies: func(s Stats, c RuleConfig) bool {
				return s.Overshoot != nil && *s.Overshoot > c.ModerateOvershoot && *s.Overshoot <= c.ExtremeOvershoot
			},
			Effect: func(_ Stats, c RuleConfig) Factors {
				return Factors{Kp: 1, Ki: 1, Kd: 1 + c.ModerateKdBoost}
			},
		},
		{
			Name: "slow_rise",
			Applies: func(s Stats, c RuleConfig) bool {
				return s.RiseTime != nil && *s.RiseTime > c.SlowRiseMinutes
			},
			Effect: func(_ Stats, c RuleConfig) Factors {
				return Factors{Kp: 1 + c.SlowRiseKpBoost, Ki: 1, Kd: 1}
			},
		},
		{
			Name: "undershoot",
			Applies: func(s Stats, c RuleConfig) bool {
				return s.Undershoot != nil && *s.Undershoot > c.UndershootThreshold
			},
			Effect: func(s Stats, c RuleConfig) Factors {
				increase := math.Min(c.MaxUndershootKi, *s.Undershoot*c.UndershootKiPerC)
				increase *= 1 - clamp01(s.DecayRatio)
				return Factors{Kp: 1, Ki: 1 + increase, Kd: 1}
			},
		},
		{
			Name:        "high_oscillation",
			Oscillation: true,
			Applies: func(s Stats, c RuleConfig) bool {
				return s.Oscillations > c.HighOscillations
			},
			Effect: func(_ Stats, c RuleConfig) Factors {
				return Factors{Kp: 1 - c.HighOscKpCut, Ki: 1, Kd: 1 + c.HighOscKdBoost}
			},
		},
		{
			Name:        "moderate_oscillation",
			Oscillation: true,
			Applies: func(s Stats, c RuleConfig) bool {
				return s.Oscillations > c.ModerateOscillations && s.Oscillations <= c.HighOscillations
			},
			Effect: func(_ Stats, c RuleConfig) Factors {
				return Factors{Kp: 1, Ki: 1, Kd: 1 + c.ModerateOscKdBoost}
			},
		},
		{
			Name: "slow_settling",
			Applies: func(s Stats, c RuleConfig) bool {
				return s.SettlingTime != nil && *s.SettlingTime > c.SlowSettlingMinutes
			},
			Effect: func(_ Stats, c RuleConfig) Factors {
				return Factors{Kp: 1, Ki: 1, Kd: 1 + c.SlowSettlingKdBoost}
			},
		},
	}
}

// EvaluateRules applies every matching rule left to right and returns the
// combined factors and the names of the rules that fired.
func EvaluateRules(rules []Rule, s Stats, c RuleConfig, dutyCycled bool) (Factors, []string) {
	combined := Unity()
	var fired []string
	for _, r := range rules {
		if r.Oscillation && dutyCycled {
			continue
		}
		if !r.Applies(s, c) {
			continue
		}
		combined = combined.Mul(r.Effect(s, c))
		fired = append(fired, r.Name)
	}
	return combined, fired
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
