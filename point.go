package rcforest

import "math"

// Point is a fixed-dimension vector of single-precision floats. D is
// configured at forest construction and immutable thereafter; every Point
// handled by a given Forest or PointStore has the same length.
type Point []float32

// equal reports bitwise equality, per §4.1's dedup contract: two points
// intern to the same handle only if every coordinate has the same bit
// pattern (which also means two differently-signed zeros do NOT dedup to
// one handle, matching IEEE bitwise comparison, not value comparison).
func (p Point) equal(o Point) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if math.Float32bits(p[i]) != math.Float32bits(o[i]) {
			return false
		}
	}
	return true
}

func (p Point) clone() Point {
	c := make(Point, len(p))
	copy(c, p)
	return c
}

// DirectionalVector decomposes a scalar anomaly score by coordinate and by
// direction: High[i] attributes score to the query enlarging the bounding
// box above its maximum on axis i, Low[i] below its minimum. HighLowSum
// must equal the corresponding scalar score within floating-point
// summation error (§8 property 4).
type DirectionalVector struct {
	High []float64
	Low  []float64
}

func newDirectionalVector(dimensions int) *DirectionalVector {
	return &DirectionalVector{
		High: make([]float64, dimensions),
		Low:  make([]float64, dimensions),
	}
}

// HighLowSum returns the sum of every High and Low component.
func (d *DirectionalVector) HighLowSum() float64 {
	var sum float64
	for i := range d.High {
		sum += d.High[i] + d.Low[i]
	}
	return sum
}

func (d *DirectionalVector) add(o *DirectionalVector) {
	for i := range d.High {
		d.High[i] += o.High[i]
		d.Low[i] += o.Low[i]
	}
}

func (d *DirectionalVector) scale(f float64) {
	for i := range d.High {
		d.High[i] *= f
		d.Low[i] *= f
	}
}

// InterpolationMeasure accumulates the three density-visitor quantities
// (§4.4 Density/interpolation) per axis and per direction.
type InterpolationMeasure struct {
	Measure     *DirectionalVector
	Probability *DirectionalVector
	Distance    *DirectionalVector
}

func newInterpolationMeasure(dimensions int) *InterpolationMeasure {
	return &InterpolationMeasure{
		Measure:     newDirectionalVector(dimensions),
		Probability: newDirectionalVector(dimensions),
		Distance:    newDirectionalVector(dimensions),
	}
}

func (m *InterpolationMeasure) add(o *InterpolationMeasure) {
	m.Measure.add(o.Measure)
	m.Probability.add(o.Probability)
	m.Distance.add(o.Distance)
}

func (m *InterpolationMeasure) scale(f float64) {
	m.Measure.scale(f)
	m.Probability.scale(f)
	m.Distance.scale(f)
}

// DensityOutput is the ensemble-level result of Forest.Density. It is the
// zero value (every component zeroed) when not all samplers are full, per
// §7's "quiet" not-ready contract.
type DensityOutput struct {
	Measure *InterpolationMeasure
}

func zeroDensityOutput(dimensions int) *DensityOutput {
	return &DensityOutput{Measure: newInterpolationMeasure(dimensions)}
}

// NeighborResult is one candidate returned by the near-neighbor visitor:
// the stored point, its Euclidean distance from the query, and, when
// store_sequence_indexes_enabled, the sequence indexes recorded at its
// leaf.
type NeighborResult struct {
	Point           Point
	Distance        float64
	SequenceIndexes []int64
}

func euclideanDistance(a, b Point) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
