// Package hedge solves for optimal liquidation schedules in the Almgren-Chriss
// mean-variance framework. The caller supplies a marginal cost function and
// consumes only the first tranche of the schedule; the remainder is recomputed
// fresh on the next decision.
package hedge

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// CostFunc returns the marginal spread cost of immediately trading volume v.
// It must be non-decreasing in v; +Inf marks an unquotable volume.
type CostFunc func(v float64) float64

// Config holds solver tuning parameters.
type Config struct {
	MaxIterations   int     // cap on minimizer iterations
	Tolerance       float64 // function convergence tolerance
	PositionEpsilon float64 // positions below this are treated as flat
}

// DefaultConfig returns the solver defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   500,
		Tolerance:       1e-8,
		PositionEpsilon: 1e-9,
	}
}

func (c *Config) fillDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 500
	}
	if c.Tolerance == 0 {
		c.Tolerance = 1e-8
	}
	if c.PositionEpsilon == 0 {
		c.PositionEpsilon = 1e-9
	}
}

// Solver computes liquidation schedules. Safe for concurrent use.
type Solver struct {
	cfg Config

	solves    atomic.Int64
	fallbacks atomic.Int64
}

// NewSolver creates a solver, filling zero config fields with defaults.
func NewSolver(cfg Config) *Solver {
	cfg.fillDefaults()
	return &Solver{cfg: cfg}
}

// FirstTranche returns the fraction of |position| to trade immediately under a
// schedule of `horizon` steps minimizing
//
//	sum_k v_k*cost(v_k) + gamma*sigma^2*sum_k (remaining_k*z)^2
//
// over non-negative fractions summing to one. A near-zero position returns 0
// without invoking the optimizer. Non-convergence falls back to the uniform
// schedule 1/horizon.
func (s *Solver) FirstTranche(position float64, horizon int, gamma, sigma float64, cost CostFunc) float64 {
	z := math.Abs(position)
	if z < s.cfg.PositionEpsilon {
		return 0
	}
	if horizon <= 0 {
		return 0
	}
	if horizon == 1 {
		return 1
	}
	s.solves.Add(1)

	riskWeight := gamma * sigma * sigma
	objective := func(y []float64) float64 {
		x := softmax(y)
		total := 0.0
		rem := 1.0
		for _, xi := range x {
			v := xi * z
			total += v * cost(v)
			rem -= xi
			r := rem * z
			total += riskWeight * r * r
		}
		return total
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		MajorIterations: s.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.cfg.Tolerance,
			Iterations: 100,
		},
	}
	start := make([]float64, horizon) // softmax of zeros is the uniform schedule

	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if err != nil || result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		s.fallbacks.Add(1)
		return 1.0 / float64(horizon)
	}
	first := softmax(result.X)[0]
	if math.IsNaN(first) || first < 0 {
		s.fallbacks.Add(1)
		return 1.0 / float64(horizon)
	}
	if first > 1 {
		first = 1
	}
	return first
}

// Stats reports how many schedules were solved and how many fell back to the
// uniform allocation.
func (s *Solver) Stats() (solves, fallbacks int64) {
	return s.solves.Load(), s.fallbacks.Load()
}

// softmax maps unconstrained variables onto the simplex, so the sum-to-one and
// non-negativity constraints hold by construction.
func softmax(y []float64) []float64 {
	x := make([]float64, len(y))
	m := floats.Max(y)
	sum := 0.0
	for i, v := range y {
		x[i] = math.Exp(v - m)
		sum += x[i]
	}
	floats.Scale(1/sum, x)
	return x
}
