package rcforest

// ImputeVisitor implements §4.4's conditional-field imputation: a
// branching MultiVisitor that forks at every internal node cutting on a
// missing dimension, and descends deterministically — following the same
// p[dim] <= value => left tie-break the insertion path uses — at every
// node cutting on an observed dimension. Each leaf reached yields one
// ImputeCandidate: the query's own coordinates on every observed
// dimension, and the leaf's coordinates on every missing one.
type ImputeVisitor struct {
	query   Point
	missing map[int]bool
}

// ImputeCandidate is one leaf-sourced completion of a partial query point.
type ImputeCandidate struct {
	Point Point
}

// NewImputeVisitor constructs a visitor completing query's coordinates at
// the dimensions named by missing.
func NewImputeVisitor(query Point, missing []int) *ImputeVisitor {
	m := make(map[int]bool, len(missing))
	for _, d := range missing {
		m[d] = true
	}
	return &ImputeVisitor{query: query, missing: m}
}

func (v *ImputeVisitor) Fork(cutDim int) bool {
	return v.missing[cutDim]
}

func (v *ImputeVisitor) Left(cutDim int, cutValue float32) bool {
	return v.query[cutDim] <= cutValue
}

func (v *ImputeVisitor) VisitLeaf(leafPoint Point, leafMass int) interface{} {
	p := v.query.clone()
	for d := range v.missing {
		p[d] = leafPoint[d]
	}
	return &ImputeCandidate{Point: p}
}
