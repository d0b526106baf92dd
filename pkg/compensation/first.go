package compensation

import (
	"log/slog"
	"math"
	"time"
)

// SteadyStateObservation is one qualifying actuator-off interval recorded
// while the zone was in steady state.
type SteadyStateObservation struct {
	Timestamp      time.Time `json:"timestamp"`
	OutdoorTemp    float64   `json:"outdoor_temp"`
	IndoorStart    float64   `json:"indoor_start"`
	IndoorEnd      float64   `json:"indoor_end"`
	DurationHours  float64   `json:"duration_hours"`
	TempDropRate   float64   `json:"temp_drop_rate"`
	TempDifference float64   `json:"temp_difference"`
	DutyCycle      float64   `json:"duty_cycle"`
}

// FirstConfig configures the compensation-first learner.
type FirstConfig struct {
	// DutyWindow is the rolling window over which duty cycle is measured.
	DutyWindow time.Duration
	// SteadyBand is the allowed duty-cycle wander in percentage points.
	SteadyBand float64
	// SteadyDuration is how long duty cycle must stay in band to be steady.
	SteadyDuration time.Duration
	// MinOffDuration is the shortest actuator-off interval worth recording.
	MinOffDuration time.Duration
	// DropRateNoiseFloor is the smallest drop rate (°C/h) treated as signal.
	DropRateNoiseFloor float64

	MinObservations       int
	PreferredObservations int
	MinOutdoorRange       float64
	MinRSquared           float64

	KeMin float64
	KeMax float64

	// MaxObservations caps the stored list; oldest are dropped first.
	MaxObservations int
}

// DefaultFirstConfig returns the standard compensation-first settings.
func DefaultFirstConfig() FirstConfig {
	return FirstConfig{
		DutyWindow:            60 * time.Minute,
		SteadyBand:            5.0,
		SteadyDuration:        60 * time.Minute,
		MinOffDuration:        6 * time.Minute,
		DropRateNoiseFloor:    0.05,
		MinObservations:       10,
		PreferredObservations: 15,
		MinOutdoorRange:       5.0,
		MinRSquared:           0.7,
		KeMin:                 0.0,
		KeMax:                 2.0,
		MaxObservations:       200,
	}
}

// ConvergenceResult reports the outcome of CheckConvergence.
type ConvergenceResult struct {
	Converged  bool
	Ke         float64
	RSquared   float64
	Confidence float64
	// Reason explains a non-converged result ("" when converged).
	Reason string
}

// FirstState is the persisted form of a FirstLearner.
type FirstState struct {
	Observations []SteadyStateObservation `json:"observations"`
	Converged    bool                     `json:"converged"`
	Ke           float64                  `json:"ke"`
	RSquared     float64                  `json:"r_squared"`
	Confidence   float64                  `json:"confidence"`
	ConvergedAt  *time.Time               `json:"converged_at,omitempty"`
}

type dutyEdge struct {
	at time.Time
	on bool
}

// FirstLearner is the compensation-first regression gate. It must converge
// before the gain learner is allowed to recommend anything; IsConverged is
// the capability the gain learner consumes.
//
// Drive it with RecordActuator on every actuator transition and
// RecordTemperature on every indoor reading, then call CheckConvergence
// periodically (the zone engine does so after each observation).
type FirstLearner struct {
	cfg    FirstConfig
	logger *slog.Logger

	// duty cycle tracking
	firstSeen   time.Time
	edges       []dutyEdge
	actuatorOn  bool
	haveRef     bool
	refDuty     float64
	steadySince time.Time

	// current off interval
	offActive  bool
	offStart   time.Time
	offSteady  bool
	offIndoor0 float64
	offIndoorN float64
	offDiffSum float64
	offOutdoor float64
	offCount   int
	lastIndoor float64
	haveIndoor bool

	observations []SteadyStateObservation
	converged    bool
	ke           float64
	r2           float64
	confidence   float64
	convergedAt  time.Time
}

// NewFirstLearner creates a learner. A nil logger uses slog.Default().
func NewFirstLearner(cfg FirstConfig, logger *slog.Logger) *FirstLearner {
	if logger == nil {
		logger = slog.Default()
	}
	return &FirstLearner{cfg: cfg, logger: logger.With("component", "compensation_first")}
}

// IsConverged reports whether the regression gate is open.
func (l *FirstLearner) IsConverged() bool { return l.converged }

// Ke returns the learned coefficient (0 until converged).
func (l *FirstLearner) Ke() float64 { return l.ke }

// Observations returns a copy of the recorded observations.
func (l *FirstLearner) Observations() []SteadyStateObservation {
	return append([]SteadyStateObservation(nil), l.observations...)
}

// RecordActuator records an actuator transition at the given time.
// Repeated calls with the same state are ignored.
func (l *FirstLearner) RecordActuator(at time.Time, on bool) {
	if l.firstSeen.IsZero() {
		l.firstSeen = at
		l.actuatorOn = on
		l.edges = append(l.edges, dutyEdge{at: at, on: on})
		if !on {
			l.beginOff(at)
		}
		return
	}
	if on == l.actuatorOn {
		return
	}
	l.actuatorOn = on
	l.edges = append(l.edges, dutyEdge{at: at, on: on})
	l.updateSteady(at)
	if on {
		l.endOff(at)
	} else {
		l.beginOff(at)
	}
}

// RecordTemperature records an indoor reading paired with the outdoor
// temperature at the same moment.
func (l *FirstLearner) RecordTemperature(at time.Time, indoor, outdoor float64) {
	l.lastIndoor = indoor
	l.haveIndoor = true
	if !l.firstSeen.IsZero() {
		l.updateSteady(at)
	}
	if !l.offActive {
		return
	}
	if l.offCount == 0 {
		l.offIndoor0 = indoor
	}
	l.offIndoorN = indoor
	l.offDiffSum += indoor - outdoor
	l.offOutdoor += outdoor
	l.offCount++
}

// IsSteady reports whether duty cycle has stayed in band for SteadyDuration.
func (l *FirstLearner) IsSteady(at time.Time) bool {
	return l.haveRef && at.Sub(l.steadySince) >= l.cfg.SteadyDuration
}

// DutyCycle returns the percentage of DutyWindow before at during which the
// actuator was on. The second result is false until a full window has been
// observed.
func (l *FirstLearner) DutyCycle(at time.Time) (float64, bool) {
	if l.firstSeen.IsZero() || at.Sub(l.firstSeen) < l.cfg.DutyWindow {
		return 0, false
	}
	from := at.Add(-l.cfg.DutyWindow)
	var onTime time.Duration
	for i, e := range l.edges {
		if !e.on {
			continue
		}
		start := e.at
		end := at
		if i+1 < len(l.edges) {
			end = l.edges[i+1].at
		}
		if start.Before(from) {
			start = from
		}
		if end.After(at) {
			end = at
		}
		if end.After(start) {
			onTime += end.Sub(start)
		}
	}
	l.pruneEdges(from)
	return 100 * onTime.Seconds() / l.cfg.DutyWindow.Seconds(), true
}

// pruneEdges drops edges that ended before from, keeping the one in effect.
func (l *FirstLearner) pruneEdges(from time.Time) {
	keep := 0
	for keep+1 < len(l.edges) && !l.edges[keep+1].at.After(from) {
		keep++
	}
	if keep > 0 {
		l.edges = append(l.edges[:0], l.edges[keep:]...)
	}
}

func (l *FirstLearner) updateSteady(at time.Time) {
	duty, ok := l.DutyCycle(at)
	if !ok {
		return
	}
	if !l.haveRef || math.Abs(duty-l.refDuty) > l.cfg.SteadyBand {
		l.haveRef = true
		l.refDuty = duty
		l.steadySince = at
	}
}

func (l *FirstLearner) beginOff(at time.Time) {
	l.offActive = true
	l.offStart = at
	l.offSteady = l.IsSteady(at)
	l.offCount = 0
	l.offDiffSum = 0
	l.offOutdoor = 0
	if l.haveIndoor {
		l.offIndoor0 = l.lastIndoor
		l.offIndoorN = l.lastIndoor
	}
}

func (l *FirstLearner) endOff(at time.Time) {
	if !l.offActive {
		return
	}
	l.offActive = false

	duration := at.Sub(l.offStart)
	if !l.offSteady || !l.IsSteady(at) || duration < l.cfg.MinOffDuration || l.offCount == 0 {
		return
	}
	hours := duration.Hours()
	rate := (l.offIndoor0 - l.offIndoorN) / hours
	if rate <= l.cfg.DropRateNoiseFloor {
		return
	}
	duty, _ := l.DutyCycle(at)
	obs := SteadyStateObservation{
		Timestamp:      at,
		OutdoorTemp:    l.offOutdoor / float64(l.offCount),
		IndoorStart:    l.offIndoor0,
		IndoorEnd:      l.offIndoorN,
		DurationHours:  hours,
		TempDropRate:   rate,
		TempDifference: l.offDiffSum / float64(l.offCount),
		DutyCycle:      duty,
	}
	l.AddObservation(obs)
}

// AddObservation appends an observation directly. RecordActuator and
// RecordTemperature call it for qualifying off intervals.
func (l *FirstLearner) AddObservation(obs SteadyStateObservation) {
	l.observations = append(l.observations, obs)
	if limit := l.cfg.MaxObservations; limit > 0 && len(l.observations) > limit {
		l.observations = append(l.observations[:0], l.observations[len(l.observations)-limit:]...)
	}
	l.logger.Debug("steady-state observation recorded",
		"drop_rate", obs.TempDropRate,
		"temp_difference", obs.TempDifference,
		"count", len(l.observations))
}

// CheckConvergence evaluates the regression over all observations.
//
// Too little data or too narrow an outdoor range is a normal not-yet state
// and returns a result with Converged=false and a nil error. A degenerate
// regression returns ErrZeroVariance and leaves the learner unchanged. Once
// converged the gate stays open; later checks only refine Ke.
func (l *FirstLearner) CheckConvergence(now time.Time) (ConvergenceResult, error) {
	n := len(l.observations)
	if n < l.cfg.MinObservations {
		return l.notYet("insufficient observations"), nil
	}
	diffs := make([]float64, n)
	rates := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, o := range l.observations {
		diffs[i] = o.TempDifference
		rates[i] = o.TempDropRate
		lo = math.Min(lo, o.OutdoorTemp)
		hi = math.Max(hi, o.OutdoorTemp)
	}
	if hi-lo < l.cfg.MinOutdoorRange {
		return l.notYet("outdoor temperature range too narrow"), nil
	}

	reg, err := LinearRegression(diffs, rates)
	if err != nil {
		return ConvergenceResult{}, err
	}
	if reg.RSquared <= l.cfg.MinRSquared {
		res := l.notYet("regression fit too weak")
		res.RSquared = reg.RSquared
		return res, nil
	}

	wasConverged := l.converged
	l.converged = true
	l.ke = clamp(reg.Slope, l.cfg.KeMin, l.cfg.KeMax)
	l.r2 = reg.RSquared
	l.confidence = math.Min(1, float64(n)/float64(l.cfg.PreferredObservations)) * reg.RSquared
	if !wasConverged {
		l.convergedAt = now
		l.logger.Info("compensation converged",
			"ke", l.ke,
			"r_squared", l.r2,
			"observations", n)
	}
	return ConvergenceResult{Converged: true, Ke: l.ke, RSquared: l.r2, Confidence: l.confidence}, nil
}

func (l *FirstLearner) notYet(reason string) ConvergenceResult {
	return ConvergenceResult{
		Converged:  l.converged,
		Ke:         l.ke,
		RSquared:   l.r2,
		Confidence: l.confidence,
		Reason:     reason,
	}
}

// State returns the persistable state.
func (l *FirstLearner) State() FirstState {
	st := FirstState{
		Observations: l.Observations(),
		Converged:    l.converged,
		Ke:           l.ke,
		RSquared:     l.r2,
		Confidence:   l.confidence,
	}
	if !l.convergedAt.IsZero() {
		at := l.convergedAt
		st.ConvergedAt = &at
	}
	return st
}

// Restore replaces the learner's learned state. Duty-cycle tracking starts
// fresh.
func (l *FirstLearner) Restore(st FirstState) {
	l.observations = append([]SteadyStateObservation(nil), st.Observations...)
	l.converged = st.Converged
	l.ke = st.Ke
	l.r2 = st.RSquared
	l.confidence = st.Confidence
	l.convergedAt = time.Time{}
	if st.ConvergedAt != nil {
		l.convergedAt = *st.ConvergedAt
	}
}

// Reset forgets every observation and closes the gate.
func (l *FirstLearner) Reset() {
	l.Restore(FirstState{})
}
