// Package compensation learns the outdoor-temperature compensation
// coefficient (Ke): the share of control output that pre-compensates for
// steady heat loss through the building envelope.
//
// Two learners cooperate:
//
//   - FirstLearner runs before any gain tuning. It watches steady-state
//     periods, measures how fast the room cools while the actuator is off,
//     and regresses that drop rate against the indoor−outdoor difference.
//     Until the regression converges (R² above threshold over enough data and
//     outdoor range) it blocks the gain learner, so the integral term does not
//     learn to absorb heat loss that belongs to Ke.
//   - ContinuousAdjuster runs after the gains have converged. It correlates
//     steady-state output against outdoor temperature and nudges Ke a fixed
//     step when the correlation shows under- or over-compensation.
//
// Both are single-owner structures driven by one zone's event loop.
package compensation

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Errors returned for misuse of the regression helpers.
var (
	ErrZeroVariance   = errors.New("compensation: independent variable has zero variance")
	ErrLengthMismatch = errors.New("compensation: x and y lengths differ")
)

// Regression is the result of a least-squares fit y = Intercept + Slope·x.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	N         int     `json:"n"`
}

// LinearRegression fits y against x by ordinary least squares.
//
// Fewer than two points, or x values that are all equal, cannot define a
// slope and return ErrZeroVariance. A constant y yields R² = 0.
func LinearRegression(x, y []float64) (Regression, error) {
	if len(x) != len(y) {
		return Regression{}, ErrLengthMismatch
	}
	if len(x) < 2 || stat.Variance(x, nil) == 0 {
		return Regression{}, ErrZeroVariance
	}
	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	return Regression{Slope: slope, Intercept: intercept, RSquared: r2, N: len(x)}, nil
}

// Correlation returns the Pearson correlation of x and y. The second result
// is false when either series is constant or too short to correlate.
func Correlation(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
