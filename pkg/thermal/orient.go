package thermal

// Orient maps a cooling cycle onto the heating frame of reference.
//
// Every metric formula in the engine is written for heating, where the
// controlled variable rises toward target and overshoot is above target. For
// cooling the values and the target are negated so the same formulas apply.
// Heating and unset modes are returned unchanged (the input slice is not
// copied in that case).
func Orient(samples []Sample, target float64, mode Mode) ([]Sample, float64) {
	if mode != ModeCooling {
		return samples, target
	}
	out := make([]Sample, len(samples))
	for i, s := range samples {
		out[i] = Sample{Time: s.Time, Value: -s.Value}
	}
	return out, -target
}

// OrientValue mirrors a single temperature the same way Orient does.
func OrientValue(v float64, mode Mode) float64 {
	if mode == ModeCooling {
		return -v
	}
	return v
}

// Values extracts the reading values of samples.
func Values(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}
