// Package robust provides outlier-resistant statistics for cycle metrics.
//
// Averaging raw cycle metrics lets a single disturbed cycle (a door left open,
// a sensor glitch) drag a gain recommendation off course. The functions here
// use the median and the median absolute deviation (MAD) instead of mean and
// standard deviation, and trim outliers by modified Z-score before averaging.
//
// Modified Z-score (Iglewicz & Hoaglin):
//
//	z_i = 0.6745 · |x_i − median| / MAD
//
// Values with z above the threshold (3.5 by default) are outliers.
//
// Example:
//
//	avg, removed, err := robust.RobustAverage(overshoots, robust.DefaultOptions())
//	if err != nil {
//		return err // empty input
//	}
//	log.Printf("avg overshoot %.2f (%d outliers dropped)", avg, len(removed))
//
// All functions are pure and deterministic.
package robust

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrEmptyInput is returned when a statistic is requested over no values.
var ErrEmptyInput = errors.New("robust: empty input")

// ZScoreScale is the constant that makes MAD a consistent estimator of the
// standard deviation for normally distributed data.
const ZScoreScale = 0.6745

// DefaultOutlierThreshold is the modified Z-score above which a value is an outlier.
const DefaultOutlierThreshold = 3.5

// minOutlierSamples is the smallest sample count outlier detection runs on.
const minOutlierSamples = 3

// Options configures RobustAverage.
type Options struct {
	// MaxOutlierFraction caps how many values may be removed: floor(n·fraction).
	MaxOutlierFraction float64
	// MinValidCount is the minimum number of values that must survive removal.
	// If removal would leave fewer, no values are removed and the plain median
	// of all values is returned instead.
	MinValidCount int
	// Threshold is the modified Z-score cutoff.
	Threshold float64
}

// DefaultOptions returns the standard trimming parameters.
func DefaultOptions() Options {
	return Options{
		MaxOutlierFraction: 0.3,
		MinValidCount:      4,
		Threshold:          DefaultOutlierThreshold,
	}
}

// Median returns the median of values. Even-length input averages the two
// middle values. The input slice is not modified.
func Median(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	}
	return sorted[mid], nil
}

// MedianAbsoluteDeviation returns median(|x − median|).
//
// If median is nil it is computed from values.
func MedianAbsoluteDeviation(values []float64, median *float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyInput
	}
	var m float64
	if median != nil {
		m = *median
	} else {
		var err error
		if m, err = Median(values); err != nil {
			return 0, err
		}
	}
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - m)
	}
	return Median(deviations)
}

// DetectOutliers returns the indices of outliers and the modified Z-score of
// every value.
//
// Fewer than three values, or a MAD of zero (more than half the values
// identical), yield no outliers and nil scores.
func DetectOutliers(values []float64, threshold float64) ([]int, []float64) {
	if len(values) < minOutlierSamples {
		return nil, nil
	}
	m, err := Median(values)
	if err != nil {
		return nil, nil
	}
	mad, err := MedianAbsoluteDeviation(values, &m)
	if err != nil || mad == 0 {
		return nil, nil
	}

	scores := make([]float64, len(values))
	var outliers []int
	for i, v := range values {
		scores[i] = ZScoreScale * math.Abs(v-m) / mad
		if scores[i] > threshold {
			outliers = append(outliers, i)
		}
	}
	return outliers, scores
}

// RobustAverage returns the mean of values after removing outliers, and the
// indices (ascending) of the values that were removed.
//
// Guarantees:
//   - at most floor(n·MaxOutlierFraction) values are removed; when more are
//     detected, the ones with the largest Z-scores are removed first
//   - at least MinValidCount values remain; otherwise no values are removed
//     and the median of the full input is returned
func RobustAverage(values []float64, opts Options) (float64, []int, error) {
	if len(values) == 0 {
		return 0, nil, ErrEmptyInput
	}

	outliers, scores := DetectOutliers(values, opts.Threshold)
	maxRemove := int(math.Floor(float64(len(values)) * opts.MaxOutlierFraction))
	if len(outliers) > maxRemove {
		sort.SliceStable(outliers, func(a, b int) bool {
			return scores[outliers[a]] > scores[outliers[b]]
		})
		outliers = outliers[:maxRemove]
	}
	if len(outliers) == 0 {
		return stat.Mean(values, nil), nil, nil
	}

	if len(values)-len(outliers) < opts.MinValidCount {
		med, err := Median(values)
		return med, nil, err
	}

	removed := make(map[int]bool, len(outliers))
	for _, idx := range outliers {
		removed[idx] = true
	}
	kept := make([]float64, 0, len(values)-len(outliers))
	for i, v := range values {
		if !removed[i] {
			kept = append(kept, v)
		}
	}
	sort.Ints(outliers)
	return stat.Mean(kept, nil), outliers, nil
}
