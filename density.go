package rcforest

// SimpleInterpolationVisitor implements §4.4 "Density/interpolation": the
// same root-to-leaf-then-up walk as the score visitors, but accumulating
// three DirectionalVector-shaped quantities per axis/direction instead of
// one scalar — a count-like measure, a probability mass (the same p_cut
// split used by attribution), and a distance (the raw, un-normalized
// enlargement magnitude, before it's divided down into a [0,1] share).
// Meaningful only once every sampler is full (§4.4); the Forest enforces
// that precondition before constructing one.
type SimpleInterpolationVisitor struct {
	query      Point
	dimensions int
	out        *InterpolationMeasure
	settled    bool
}

// NewSimpleInterpolationVisitor constructs a density visitor for query.
func NewSimpleInterpolationVisitor(query Point, dimensions int) *SimpleInterpolationVisitor {
	return &SimpleInterpolationVisitor{
		query:      query,
		dimensions: dimensions,
		out:        newInterpolationMeasure(dimensions),
	}
}

func (v *SimpleInterpolationVisitor) VisitLeaf(leafPoint Point, leafMass int, depth int, seq []int64) {
	box := newBoundingBoxFromPoint(leafPoint)
	v.step(box, leafMass, depth)
}

func (v *SimpleInterpolationVisitor) Visit(box *BoundingBox, mass int, depth int) {
	if v.settled {
		return
	}
	v.step(box, mass, depth)
}

func (v *SimpleInterpolationVisitor) step(box *BoundingBox, mass, depth int) {
	pCut, high, low := box.enlargement(v.query)
	rawHigh, rawLow := rawEnlargement(box, v.query)

	for i := 0; i < v.dimensions; i++ {
		h, l := highAt(high, i), lowAt(low, i)

		v.out.Probability.High[i] = (1-pCut)*v.out.Probability.High[i] + pCut*h
		v.out.Probability.Low[i] = (1-pCut)*v.out.Probability.Low[i] + pCut*l

		v.out.Measure.High[i] = (1-pCut)*v.out.Measure.High[i] + pCut*float64(mass)*h
		v.out.Measure.Low[i] = (1-pCut)*v.out.Measure.Low[i] + pCut*float64(mass)*l

		v.out.Distance.High[i] = (1-pCut)*v.out.Distance.High[i] + pCut*rawHigh[i]
		v.out.Distance.Low[i] = (1-pCut)*v.out.Distance.Low[i] + pCut*rawLow[i]
	}
	if pCut == 0 {
		v.settled = true
	}
}

// rawEnlargement returns the un-normalized per-axis enlargement diffs
// (box.enlargement's shares before dividing by the total enlargement),
// used only by the distance component, which wants a magnitude rather
// than a [0,1] split.
func rawEnlargement(b *BoundingBox, query Point) (high, low []float64) {
	extended := b.extend(query)
	dims := len(b.Min)
	high = make([]float64, dims)
	low = make([]float64, dims)
	for i := 0; i < dims; i++ {
		diff := extended.rangeAt(i) - b.rangeAt(i)
		if diff <= 0 {
			continue
		}
		if query[i] > b.Max[i] {
			high[i] = diff
		} else if query[i] < b.Min[i] {
			low[i] = diff
		}
	}
	return high, low
}

// Result returns the per-tree InterpolationMeasure.
func (v *SimpleInterpolationVisitor) Result() interface{} { return v.out }
