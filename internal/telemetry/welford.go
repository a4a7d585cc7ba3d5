package telemetry

import "math"

// Welford holds running statistics using Welford's online algorithm, so the
// mean and standard deviation of a speed series are updated in O(1) without
// storing the observations.
type Welford struct {
	Count int
	Mean  float64
	M2    float64 // sum of squared differences from the mean
}

// Update adds an observation.
func (w *Welford) Update(x float64) {
	w.Count++
	delta := x - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (x - w.Mean)
}

// StdDev returns the population standard deviation, 0 below two observations.
func (w *Welford) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}
