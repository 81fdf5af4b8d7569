package rcforest

// NearNeighborVisitor implements §4.4's near-neighbor search: a single
// root-to-leaf descent (no ancestor ascent — Visit is a no-op), checked
// against a caller-supplied distance threshold at the leaf. It either
// emits one NeighborResult or nothing.
type NearNeighborVisitor struct {
	query     Point
	threshold float64
	result    *NeighborResult
}

// NewNearNeighborVisitor constructs a visitor that reports the leaf point
// reached by query, provided it is within threshold of it.
func NewNearNeighborVisitor(query Point, threshold float64) *NearNeighborVisitor {
	return &NearNeighborVisitor{query: query, threshold: threshold}
}

func (v *NearNeighborVisitor) VisitLeaf(leafPoint Point, leafMass int, depth int, seq []int64) {
	d := euclideanDistance(v.query, leafPoint)
	if d > v.threshold {
		return
	}
	r := &NeighborResult{Point: leafPoint.clone(), Distance: d}
	if seq != nil {
		r.SequenceIndexes = append([]int64(nil), seq...)
	}
	v.result = r
}

// Visit is a no-op: near-neighbor search never ascends past the leaf.
func (v *NearNeighborVisitor) Visit(box *BoundingBox, mass int, depth int) {}

// Result returns the single *NeighborResult found, or nil.
func (v *NearNeighborVisitor) Result() interface{} { return v.result }
