// Package disturbance decides whether a completed cycle was shaped by
// something other than the heating system itself.
//
// A cycle that warmed up because the sun came out, or cooled down because of
// a storm, says nothing about the PID gains. Learning from it would teach
// the controller to fight the weather. The Detector compares the cycle's
// indoor readings against auxiliary signals and tags the cycle; tagged cycles
// are still logged but excluded from gain-adjustment statistics.
//
// Tags (see thermal.Tag* constants):
//   - solar_gain: indoor rise once the post-off lag window has passed, with a
//     matching rise in the solar signal
//   - wind_loss: settling drop faster than normal cooling, with strong wind
//     and a stable outdoor temperature
//   - outdoor_temp_swing: outdoor temperature moved more than a few degrees
//     during the cycle
//   - occupancy: indoor rise once the post-off lag window has passed, with
//     no heating and no solar explanation
//
// The rise right after the actuator stops is thermal lag, which the cycle
// reports as overshoot, so the rise checks skip LagWindow after the off time.
// Cooling readings are mirrored (see thermal.Orient) so every check looks in
// the same direction relative to the actuator.
//
// Example:
//
//	det := disturbance.NewDetector(disturbance.DefaultConfig())
//	tags := det.Detect(disturbance.Input{
//		Mode:            thermal.ModeHeating,
//		Samples:         cycleSamples,
//		ActiveIntervals: heaterOnIntervals,
//		Outdoor:         outdoorTemps,
//		Solar:           solarIrradiance,
//		Wind:            windSpeeds,
//	})
//	if len(tags) > 0 {
//		// keep for the record, skip for learning
//	}
package disturbance

import (
	"math"
	"time"

	"github.com/viterin/vek"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/thermal"
)

// Interval is a span during which the actuator was active.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Config holds the detection thresholds.
type Config struct {
	// SolarRiseRate is the minimum post-off indoor rise rate in °C/h.
	SolarRiseRate float64
	// SolarIncrease is the minimum increase of the solar signal (W/m² or lux units).
	SolarIncrease float64
	// SolarMinRise is the minimum absolute indoor rise in °C.
	SolarMinRise float64

	// WindMinSpeed is the minimum average wind speed in m/s.
	WindMinSpeed float64
	// WindStableOutdoorRange is the outdoor range (°C) below which outdoor temperature is stable.
	WindStableOutdoorRange float64
	// NormalCoolingRate is the settling drop rate (°C/h) the building shows without wind.
	NormalCoolingRate float64

	// OutdoorSwing is the outdoor range (°C) that flags a swing.
	OutdoorSwing float64

	// OccupancyRiseRate is the minimum post-off indoor rise rate in °C/h.
	OccupancyRiseRate float64
	// OccupancyMinWindow is the minimum post-lag span with no heating.
	OccupancyMinWindow time.Duration

	// LagWindow is how long after the actuator stops a rise is still
	// attributed to the heating itself.
	LagWindow time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		SolarRiseRate:          0.5,
		SolarIncrease:          100,
		SolarMinRise:           0.3,
		WindMinSpeed:           5.0,
		WindStableOutdoorRange: 2.0,
		NormalCoolingRate:      1.0,
		OutdoorSwing:           5.0,
		OccupancyRiseRate:      0.5,
		OccupancyMinWindow:     15 * time.Minute,
		LagWindow:              45 * time.Minute,
	}
}

// Input is everything the detector looks at for one cycle. Auxiliary series
// are optional; a detector whose signal is missing does not fire.
type Input struct {
	Mode            thermal.Mode
	Samples         []thermal.Sample
	ActiveIntervals []Interval
	Outdoor         []thermal.Sample
	Solar           []thermal.Sample
	Wind            []thermal.Sample
}

// Detector classifies cycles. It holds no per-cycle state.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs every detector and returns the sorted set of triggered tags.
// An empty result means the cycle is clean.
func (d *Detector) Detect(in Input) []string {
	tags := map[string]bool{
		thermal.TagSolarGain:        d.SolarGain(in),
		thermal.TagWindLoss:         d.WindLoss(in),
		thermal.TagOutdoorTempSwing: d.OutdoorTempSwing(in),
		thermal.TagOccupancy:        d.Occupancy(in),
	}
	return thermal.SortedTags(tags)
}

// SolarGain reports a post-lag indoor rise faster than SolarRiseRate and
// larger than SolarMinRise, while the solar signal rose by more than
// SolarIncrease.
func (d *Detector) SolarGain(in Input) bool {
	late, offAt := d.afterLag(in)
	if len(late) < 2 {
		return false
	}
	rise, rate := riseAfter(late)
	if rise <= d.cfg.SolarMinRise || rate <= d.cfg.SolarRiseRate {
		return false
	}
	return solarIncrease(in.Solar, offAt) > d.cfg.SolarIncrease
}

// WindLoss reports a settling drop faster than NormalCoolingRate under a
// stable outdoor temperature and an average wind of at least WindMinSpeed.
func (d *Detector) WindLoss(in Input) bool {
	if len(in.Wind) == 0 || len(in.Outdoor) == 0 {
		return false
	}
	if spread(in.Outdoor) >= d.cfg.WindStableOutdoorRange {
		return false
	}
	if vek.Mean(thermal.Values(in.Wind)) < d.cfg.WindMinSpeed {
		return false
	}
	post, _ := postOff(in)
	if len(post) < 2 {
		return false
	}
	return dropRate(post) > d.cfg.NormalCoolingRate
}

// OutdoorTempSwing reports an outdoor range above OutdoorSwing across the cycle.
func (d *Detector) OutdoorTempSwing(in Input) bool {
	if len(in.Outdoor) < 2 {
		return false
	}
	return spread(in.Outdoor) > d.cfg.OutdoorSwing
}

// Occupancy reports a post-lag indoor rise faster than OccupancyRiseRate over
// a window of at least OccupancyMinWindow with no heating, which the solar
// signal does not explain.
func (d *Detector) Occupancy(in Input) bool {
	late, offAt := d.afterLag(in)
	if len(late) < 2 {
		return false
	}
	if late[len(late)-1].Time.Sub(late[0].Time) < d.cfg.OccupancyMinWindow {
		return false
	}
	if _, rate := riseAfter(late); rate <= d.cfg.OccupancyRiseRate {
		return false
	}
	return solarIncrease(in.Solar, offAt) <= d.cfg.SolarIncrease
}

// afterLag returns the post-off samples from LagWindow after the off time
// onward, and the off time.
func (d *Detector) afterLag(in Input) ([]thermal.Sample, time.Time) {
	post, offAt := postOff(in)
	from := offAt.Add(d.cfg.LagWindow)
	for i, s := range post {
		if !s.Time.Before(from) {
			return post[i:], offAt
		}
	}
	return nil, offAt
}

// postOff returns the oriented samples after the last active interval ended,
// and that end time. Without intervals there is no post-off segment.
func postOff(in Input) ([]thermal.Sample, time.Time) {
	var offAt time.Time
	for _, iv := range in.ActiveIntervals {
		if iv.End.After(offAt) {
			offAt = iv.End
		}
	}
	if offAt.IsZero() {
		return nil, offAt
	}
	samples, _ := thermal.Orient(in.Samples, 0, in.Mode)
	for i, s := range samples {
		if !s.Time.Before(offAt) {
			return samples[i:], offAt
		}
	}
	return nil, offAt
}

// riseAfter returns the rise from the first post-off sample to the peak and
// the rate of that rise in °C/h.
func riseAfter(post []thermal.Sample) (rise, rate float64) {
	values := thermal.Values(post)
	peakIdx := vek.ArgMax(values)
	rise = values[peakIdx] - values[0]
	hours := post[peakIdx].Time.Sub(post[0].Time).Hours()
	if rise <= 0 || hours <= 0 {
		return math.Max(rise, 0), 0
	}
	return rise, rise / hours
}

// dropRate returns the fall from the first post-off sample to the lowest
// reading, in °C/h.
func dropRate(post []thermal.Sample) float64 {
	values := thermal.Values(post)
	lowIdx := vek.ArgMin(values)
	drop := values[0] - values[lowIdx]
	hours := post[lowIdx].Time.Sub(post[0].Time).Hours()
	if drop <= 0 || hours <= 0 {
		return 0
	}
	return drop / hours
}

// solarIncrease returns how much the solar signal rose after offAt relative
// to its value at offAt (the last reading at or before it, or the first one
// after when none precedes it).
func solarIncrease(solar []thermal.Sample, offAt time.Time) float64 {
	if len(solar) == 0 {
		return 0
	}
	base := solar[0].Value
	var after []float64
	for _, s := range solar {
		if s.Time.After(offAt) {
			after = append(after, s.Value)
		} else {
			base = s.Value
		}
	}
	if len(after) == 0 {
		return 0
	}
	return vek.Max(after) - base
}

func spread(samples []thermal.Sample) float64 {
	values := thermal.Values(samples)
	return vek.Max(values) - vek.Min(values)
}
