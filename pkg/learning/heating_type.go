package learning

import (
	"fmt"
	"strings"
)

// HeatingType describes the emitter, which sets how fast a zone can react
// and therefore what a "good" cycle looks like.
type HeatingType string

const (
	HeatingFloorHydronic HeatingType = "floor_hydronic"
	HeatingRadiator      HeatingType = "radiator"
	HeatingConvector     HeatingType = "convector"
	HeatingForcedAir     HeatingType = "forced_air"
)

// Thresholds are the per-cycle maxima a cycle must stay within to count as
// converged.
type Thresholds struct {
	MaxOvershoot       float64 // °C
	MaxOscillations    int
	MaxSettlingMinutes float64
	MaxRiseMinutes     float64
}

// HeatingProfile bundles the per-type tuning constants.
type HeatingProfile struct {
	Thresholds Thresholds
	// AutoApplyConfidence is the confidence needed before gains are
	// changed without confirmation.
	AutoApplyConfidence float64
	// TimeConstantHours is the typical thermal time constant, used when the
	// zone does not configure one.
	TimeConstantHours float64
}

var heatingProfiles = map[HeatingType]HeatingProfile{
	HeatingFloorHydronic: {
		Thresholds:          Thresholds{MaxOvershoot: 0.3, MaxOscillations: 1, MaxSettlingMinutes: 120, MaxRiseMinutes: 90},
		AutoApplyConfidence: 0.8,
		TimeConstantHours:   6,
	},
	HeatingRadiator: {
		Thresholds:          Thresholds{MaxOvershoot: 0.25, MaxOscillations: 1, MaxSettlingMinutes: 90, MaxRiseMinutes: 60},
		AutoApplyConfidence: 0.7,
		TimeConstantHours:   3,
	},
	HeatingConvector: {
		Thresholds:          Thresholds{MaxOvershoot: 0.2, MaxOscillations: 1, MaxSettlingMinutes: 60, MaxRiseMinutes: 45},
		AutoApplyConfidence: 0.6,
		TimeConstantHours:   2,
	},
	HeatingForcedAir: {
		Thresholds:          Thresholds{MaxOvershoot: 0.15, MaxOscillations: 1, MaxSettlingMinutes: 45, MaxRiseMinutes: 30},
		AutoApplyConfidence: 0.6,
		TimeConstantHours:   1,
	},
}

var defaultHeatingProfile = HeatingProfile{
	Thresholds:          Thresholds{MaxOvershoot: 0.2, MaxOscillations: 1, MaxSettlingMinutes: 60, MaxRiseMinutes: 45},
	AutoApplyConfidence: 0.7,
	TimeConstantHours:   2,
}

// Profile returns the tuning constants for t; unknown types get the default
// profile.
func (t HeatingType) Profile() HeatingProfile {
	if p, ok := heatingProfiles[t]; ok {
		return p
	}
	return defaultHeatingProfile
}

// Valid reports whether t is a known heating type.
func (t HeatingType) Valid() bool {
	_, ok := heatingProfiles[t]
	return ok
}

// ParseHeatingType parses a heating type name, case-insensitively.
func ParseHeatingType(s string) (HeatingType, error) {
	t := HeatingType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown heating type %q", s)
	}
	return t, nil
}
