package rcforest

import (
	"math"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// DefaultConvergenceEpsilon and DefaultConvergenceMinValues are §5's
// defaults for approximate_score/approximate_attribution: stop polling
// trees once the running mean has stopped moving by more than epsilon
// (relative), but never before minValues trees have been polled.
const (
	DefaultConvergenceEpsilon    = 0.1
	DefaultConvergenceMinValues  = 5
	convergenceWindowSize        = 5
)

// FixedOrderAccumulator reduces one scalar per tree, in tree-index order,
// to a plain arithmetic mean. Used for the exact Score path, where every
// tree is always polled and ordering only matters for
// determinism across parallel and sequential execution (§8 property 6),
// not for early stopping. Grounded in the teacher's reduce.go, which
// folds per-structure contributions into one result via a fixed
// dispatch rather than an unordered sum.
type FixedOrderAccumulator struct {
	values []float64
}

// NewFixedOrderAccumulator pre-sizes the accumulator for n trees.
func NewFixedOrderAccumulator(n int) *FixedOrderAccumulator {
	return &FixedOrderAccumulator{values: make([]float64, n)}
}

// Set records tree i's contribution. i must be in [0, n).
func (a *FixedOrderAccumulator) Set(i int, v float64) { a.values[i] = v }

// Mean returns the arithmetic mean across every slot, summed in index
// order.
func (a *FixedOrderAccumulator) Mean() float64 {
	var sum float64
	for _, v := range a.values {
		sum += v
	}
	return sum / float64(len(a.values))
}

// ConvergingAccumulator implements §5's one-sided convergence test for
// approximate_score/approximate_attribution: trees are polled in a fixed
// order and folded into a running mean, while a short trailing window
// (github.com/RobinUS2/golang-moving-average, as used by the pack's own
// hammer/loadtest/analysis.go for exactly this "is this value still
// moving" shape) tracks the last few contributions. Once at least
// minValues trees have been polled and the window's average agrees with
// the running mean to within epsilon (relative), further trees are
// assumed not to change the answer meaningfully and polling stops.
type ConvergingAccumulator struct {
	epsilon   float64
	minValues int
	window    *movingaverage.MovingAverage
	total     float64
	count     int
}

// NewConvergingAccumulator constructs a convergence tracker with the
// given epsilon and minimum poll count. Non-positive values fall back to
// the package defaults.
func NewConvergingAccumulator(epsilon float64, minValues int) *ConvergingAccumulator {
	if epsilon <= 0 {
		epsilon = DefaultConvergenceEpsilon
	}
	if minValues <= 0 {
		minValues = DefaultConvergenceMinValues
	}
	return &ConvergingAccumulator{
		epsilon:   epsilon,
		minValues: minValues,
		window:    movingaverage.New(convergenceWindowSize),
	}
}

// Accept folds in one tree's scalar contribution and reports whether
// polling has converged and may stop before every tree is visited.
func (a *ConvergingAccumulator) Accept(value float64) (converged bool) {
	a.total += value
	a.count++
	a.window.Add(value)
	if a.count < a.minValues {
		return false
	}
	mean := a.Mean()
	recent := a.window.Avg()
	if mean == 0 {
		return recent == 0
	}
	return math.Abs(recent-mean) <= a.epsilon*math.Abs(mean)
}

// Mean returns the running arithmetic mean of every contribution
// accepted so far.
func (a *ConvergingAccumulator) Mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.total / float64(a.count)
}

// Count reports how many trees have actually been polled.
func (a *ConvergingAccumulator) Count() int { return a.count }

// ConvergingVectorAccumulator is ConvergingAccumulator's directional
// counterpart for approximate_attribution: convergence is judged on the
// scalar HighLowSum of each tree's DirectionalVector (the same quantity
// the scalar accumulator would see for that tree, per §8 property 4),
// while the directional components themselves are accumulated
// independently so the final averaged vector is returned once converged.
type ConvergingVectorAccumulator struct {
	scalar     *ConvergingAccumulator
	dimensions int
	sum        *DirectionalVector
}

// NewConvergingVectorAccumulator constructs a directional convergence
// tracker for vectors of the given dimensionality.
func NewConvergingVectorAccumulator(epsilon float64, minValues, dimensions int) *ConvergingVectorAccumulator {
	return &ConvergingVectorAccumulator{
		scalar:     NewConvergingAccumulator(epsilon, minValues),
		dimensions: dimensions,
		sum:        newDirectionalVector(dimensions),
	}
}

// Accept folds in one tree's DirectionalVector and reports whether
// polling has converged.
func (a *ConvergingVectorAccumulator) Accept(v *DirectionalVector) (converged bool) {
	a.sum.add(v)
	return a.scalar.Accept(v.HighLowSum())
}

// Mean returns the per-axis, per-direction arithmetic mean across every
// tree accepted so far.
func (a *ConvergingVectorAccumulator) Mean() *DirectionalVector {
	mean := newDirectionalVector(a.dimensions)
	mean.add(a.sum)
	if a.scalar.count > 0 {
		mean.scale(1 / float64(a.scalar.count))
	}
	return mean
}

// Count reports how many trees have actually been polled.
func (a *ConvergingVectorAccumulator) Count() int { return a.scalar.Count() }
