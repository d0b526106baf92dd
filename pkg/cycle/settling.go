package cycle

import (
	"math"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/robust"
)

// settled reports whether the most recent settling readings have flattened
// out near target.
func settled(values []float64, target float64, cfg Config) bool {
	n := cfg.SettlingSamples
	if n <= 0 || len(values) < n {
		return false
	}
	window := values[len(values)-n:]
	if math.Abs(window[n-1]-target) > cfg.SettlingBand {
		return false
	}
	mad, err := robust.MedianAbsoluteDeviation(window, nil)
	if err != nil {
		return false
	}
	return mad < cfg.SettlingMAD
}
