// Package filter provides scalar signal smoothing for slow-moving inputs.
//
// The Kalman filter here models the signal as a random walk: the true value
// drifts a little between readings (process noise Q) and each reading is
// the true value plus weather-like noise (measurement noise R). No matrix
// operations, pure scalar math.
//
// The engine uses it to track the rolling outdoor-temperature baseline: a
// single cold night barely moves the estimate, but a change of season moves
// it steadily, which is what the seasonal-shift check looks for.
//
// Example Usage:
//
//	baseline := filter.NewKalman(filter.OutdoorBaselineConfig())
//	for _, avg := range cycleOutdoorAverages {
//		baseline.Process(avg)
//	}
//	fmt.Printf("baseline %.1f°C ± %.1f\n", baseline.State(), baseline.StdDev())
package filter

import (
	"math"
	"sync"
)

// Config holds Kalman filter configuration.
type Config struct {
	// ProcessNoise (Q) is the variance the true value may drift per reading.
	// Higher values follow changes faster but pass more noise.
	ProcessNoise float64

	// MeasurementNoise (R) is the variance of an individual reading.
	// Higher values smooth harder.
	MeasurementNoise float64

	// InitialCovariance (P) is the uncertainty before the first reading.
	InitialCovariance float64
}

// DefaultConfig returns a general-purpose configuration.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:      0.1,
		MeasurementNoise:  1.0,
		InitialCovariance: 10.0,
	}
}

// OutdoorBaselineConfig returns a configuration tuned for per-cycle outdoor
// temperature averages: day-to-day weather is noise, seasons are signal.
func OutdoorBaselineConfig() Config {
	return Config{
		ProcessNoise:      0.05,
		MeasurementNoise:  4.0,
		InitialCovariance: 25.0,
	}
}

// Kalman is a scalar random-walk Kalman filter. Safe for concurrent use.
type Kalman struct {
	mu sync.RWMutex

	x float64 // state estimate
	p float64 // estimate covariance

	q  float64
	r  float64
	p0 float64

	observations int
}

// NewKalman creates a filter. The first reading initializes the state.
func NewKalman(cfg Config) *Kalman {
	return &Kalman{
		p:  cfg.InitialCovariance,
		q:  cfg.ProcessNoise,
		r:  cfg.MeasurementNoise,
		p0: cfg.InitialCovariance,
	}
}

// Process folds one reading into the estimate and returns the new estimate.
func (k *Kalman) Process(measurement float64) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.observations == 0 {
		k.x = measurement
		k.observations = 1
		return k.x
	}

	k.p += k.q
	gain := k.p / (k.p + k.r)
	k.x += gain * (measurement - k.x)
	k.p = (1 - gain) * k.p

	k.observations++
	return k.x
}

// State returns the current estimate.
func (k *Kalman) State() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.x
}

// Covariance returns the current estimate uncertainty.
func (k *Kalman) Covariance() float64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.p
}

// StdDev returns the square root of the covariance.
func (k *Kalman) StdDev() float64 {
	return math.Sqrt(k.Covariance())
}

// Observations returns the number of readings processed.
func (k *Kalman) Observations() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.observations
}

// Reset forgets every reading.
func (k *Kalman) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.x = 0
	k.p = k.p0
	k.observations = 0
}

// SetState restores a persisted estimate.
func (k *Kalman) SetState(state, covariance float64, observations int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.x = state
	k.p = covariance
	k.observations = observations
}
