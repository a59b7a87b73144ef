package market

import "math"

// EWMAEstimator tracks an exponentially weighted estimate of per-step volatility
// from the mid price series.
type EWMAEstimator struct {
	lambda   float64
	variance float64
	lastMid  float64
	ready    bool
}

// NewEWMAEstimator creates an estimator with decay lambda in (0,1).
func NewEWMAEstimator(lambda float64) *EWMAEstimator {
	if lambda <= 0 || lambda >= 1 {
		lambda = 0.94
	}
	return &EWMAEstimator{lambda: lambda}
}

// AddMid feeds the next mid price.
func (e *EWMAEstimator) AddMid(mid float64) {
	if mid <= 0 {
		return
	}
	if !e.ready {
		e.lastMid = mid
		e.ready = true
		return
	}
	r := math.Log(mid / e.lastMid)
	e.variance = e.lambda*e.variance + (1-e.lambda)*r*r
	e.lastMid = mid
}

// Sigma returns the current per-step volatility estimate.
func (e *EWMAEstimator) Sigma() float64 {
	return math.Sqrt(e.variance)
}

// Ready reports whether at least one return has been observed.
func (e *EWMAEstimator) Ready() bool {
	return e.ready && e.variance > 0
}

// RealizedEstimator calculates realized volatility over a rolling window of mids.
type RealizedEstimator struct {
	windowSize int
	mids       []float64
}

// NewRealizedEstimator creates a new realized volatility estimator.
func NewRealizedEstimator(windowSize int) *RealizedEstimator {
	if windowSize < 2 {
		windowSize = 2
	}
	return &RealizedEstimator{
		windowSize: windowSize,
		mids:       make([]float64, 0, windowSize),
	}
}

// AddMid adds a new mid price to the window.
func (r *RealizedEstimator) AddMid(mid float64) {
	r.mids = append(r.mids, mid)
	if len(r.mids) > r.windowSize {
		r.mids = r.mids[1:]
	}
}

// RealizedVol returns the standard deviation of log returns over the window.
// The value is per step, not annualized.
func (r *RealizedEstimator) RealizedVol() float64 {
	if len(r.mids) < 2 {
		return 0
	}

	logReturns := make([]float64, 0, len(r.mids)-1)
	for i := 1; i < len(r.mids); i++ {
		if r.mids[i-1] > 0 {
			logReturns = append(logReturns, math.Log(r.mids[i]/r.mids[i-1]))
		}
	}
	if len(logReturns) < 1 {
		return 0
	}

	sum := 0.0
	for _, v := range logReturns {
		sum += v
	}
	mean := sum / float64(len(logReturns))

	sumSquaredDiff := 0.0
	for _, v := range logReturns {
		d := v - mean
		sumSquaredDiff += d * d
	}
	return math.Sqrt(sumSquaredDiff / float64(len(logReturns)))
}

// Ready checks if we have enough data to calculate volatility.
func (r *RealizedEstimator) Ready() bool {
	return len(r.mids) >= 2
}
