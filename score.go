package rcforest

import "math"

// scoreFunction is the default per-node contribution shared by both the
// "seen" (leaf) and "unseen" (ancestor) roles spec §4.4 describes
// separately: decreasing in depth, and dampened as mass grows (so
// duplicate insertions reduce anomalousness, per §8's round-trip
// property). depth+1 keeps the denominator away from zero at the root.
func scoreFunction(depth int, mass int) float64 {
	return 1.0 / (float64(depth) + math.Log2(float64(mass)+1) + 1)
}

// AnomalyScoreVisitor implements §4.4 "Anomaly score". It treats the leaf
// itself as the innermost step of a single ascent (its box is the
// degenerate envelope of just its own point), then walks each ancestor,
// at every step computing p_cut between the node's box and the query and
// folding score <- p_cut*f_unseen + (1-p_cut)*score. Once p_cut hits 0 the
// walk is a no-op for the rest of the ascent, matching §4.4's contract
// exactly ("the score is invariant for the rest of the ascent").
type AnomalyScoreVisitor struct {
	query   Point
	score   float64
	settled bool
}

// NewAnomalyScoreVisitor constructs a score visitor for the given query
// point.
func NewAnomalyScoreVisitor(query Point) *AnomalyScoreVisitor {
	return &AnomalyScoreVisitor{query: query}
}

func (v *AnomalyScoreVisitor) VisitLeaf(leafPoint Point, leafMass int, depth int, seq []int64) {
	box := newBoundingBoxFromPoint(leafPoint)
	v.step(box, leafMass, depth)
}

func (v *AnomalyScoreVisitor) Visit(box *BoundingBox, mass int, depth int) {
	if v.settled {
		return
	}
	v.step(box, mass, depth)
}

func (v *AnomalyScoreVisitor) step(box *BoundingBox, mass, depth int) {
	pCut, _, _ := box.enlargement(v.query)
	contribution := scoreFunction(depth, mass)
	v.score = pCut*contribution + (1-pCut)*v.score
	if pCut == 0 {
		v.settled = true
	}
}

// Result returns the per-tree scalar anomaly score.
func (v *AnomalyScoreVisitor) Result() interface{} { return v.score }

// AnomalyAttributionVisitor implements §4.4's directional variant of the
// same computation: the same p_cut/contribution terms, but split across
// axes and high/low direction instead of collapsed to a scalar. By
// construction sum(High)+sum(Low) tracks the scalar AnomalyScoreVisitor
// exactly at every step (§8 property 4).
type AnomalyAttributionVisitor struct {
	query      Point
	dimensions int
	vector     *DirectionalVector
	settled    bool
}

// NewAnomalyAttributionVisitor constructs an attribution visitor for the
// given query point of the given dimensionality.
func NewAnomalyAttributionVisitor(query Point, dimensions int) *AnomalyAttributionVisitor {
	return &AnomalyAttributionVisitor{
		query:      query,
		dimensions: dimensions,
		vector:     newDirectionalVector(dimensions),
	}
}

func (v *AnomalyAttributionVisitor) VisitLeaf(leafPoint Point, leafMass int, depth int, seq []int64) {
	box := newBoundingBoxFromPoint(leafPoint)
	v.step(box, leafMass, depth)
}

func (v *AnomalyAttributionVisitor) Visit(box *BoundingBox, mass int, depth int) {
	if v.settled {
		return
	}
	v.step(box, mass, depth)
}

func (v *AnomalyAttributionVisitor) step(box *BoundingBox, mass, depth int) {
	pCut, high, low := box.enlargement(v.query)
	contribution := scoreFunction(depth, mass)
	for i := 0; i < v.dimensions; i++ {
		v.vector.High[i] = (1-pCut)*v.vector.High[i] + pCut*contribution*highAt(high, i)
		v.vector.Low[i] = (1-pCut)*v.vector.Low[i] + pCut*contribution*lowAt(low, i)
	}
	if pCut == 0 {
		v.settled = true
	}
}

func highAt(high []float64, i int) float64 {
	if high == nil {
		return 0
	}
	return high[i]
}

func lowAt(low []float64, i int) float64 {
	if low == nil {
		return 0
	}
	return low[i]
}

// Result returns the per-tree DirectionalVector attribution.
func (v *AnomalyAttributionVisitor) Result() interface{} { return v.vector }
