package models

// Curve is an exceedance curve. XValues are loss (or loss-ratio) magnitudes in
// ascending order and YValues the probabilities of exceedance, non-increasing.
type Curve struct {
	XValues []float64 `json:"x_values"`
	YValues []float64 `json:"y_values"`
}

// Len returns the number of points on the curve.
func (c Curve) Len() int {
	return len(c.XValues)
}

// Scale returns a copy of the curve with every magnitude multiplied by factor.
// Probabilities are unchanged.
func (c Curve) Scale(factor float64) Curve {
	xs := make([]float64, len(c.XValues))
	for i, x := range c.XValues {
		xs[i] = x * factor
	}
	ys := make([]float64, len(c.YValues))
	copy(ys, c.YValues)
	return Curve{XValues: xs, YValues: ys}
}

// IsMonotone reports whether magnitudes ascend and probabilities never increase.
func (c Curve) IsMonotone() bool {
	if len(c.XValues) != len(c.YValues) {
		return false
	}
	for i := 1; i < len(c.XValues); i++ {
		if c.XValues[i] < c.XValues[i-1] || c.YValues[i] > c.YValues[i-1] {
			return false
		}
	}
	return true
}
