package rcforest

import (
	"math/rand"
)

// node is a tagged-variant tree node (§3 "Tree node"): either a leaf
// carrying a point handle and mass, or an internal node carrying a cut and
// two children. A single struct (rather than an interface-typed variant
// hierarchy) is used deliberately — Design Notes §9 calls for avoiding
// virtual dispatch on the per-node hot path; one indirection per tree
// traversal call is fine, one per node is not.
type node struct {
	isLeaf bool

	// leaf fields
	handle          Handle
	mass            int
	sequenceIndexes []int64

	// internal fields
	cutDim   int
	cutValue float32
	left     *node
	right    *node

	subtreeMass int
	cached      bool // whether this node permanently caches its box/COM
	box         *BoundingBox
	centerOfMass Point
}

func newLeaf(h Handle, seq int64, storeSeq bool) *node {
	n := &node{isLeaf: true, handle: h, mass: 1, subtreeMass: 1}
	if storeSeq {
		n.sequenceIndexes = []int64{seq}
	}
	return n
}

// Tree is the incremental random cut tree of §4.3: a binary tree over
// sampled handles supporting Add, Delete, Traverse and TraverseMulti.
// Adapted from the teacher's AVLTreeHT (avl.go): same recursive
// insert-and-rebalance shape over a *node tree guarded by the coordinator
// (not by its own mutex — per §5 a Tree is exclusively mutated by its
// owning Forest during Update, and read-only during queries, which the
// coordinator serializes), generalized from a balanced key-ordered BST to
// a randomized space-partitioning tree.
type Tree struct {
	root *node
	ps   *PointStore
	rng  *rand.Rand

	dimensions          int
	cacheFraction       float64
	centerOfMassEnabled bool
	storeSeqEnabled     bool

	memo *boxMemo
}

// NewTree constructs an empty tree over ps, configured per the flags
// documented in §6.
func NewTree(ps *PointStore, rng *rand.Rand, cacheFraction float64, centerOfMassEnabled, storeSeqEnabled bool) *Tree {
	return &Tree{
		ps:                  ps,
		rng:                 rng,
		dimensions:          ps.Dimensions(),
		cacheFraction:       cacheFraction,
		centerOfMassEnabled: centerOfMassEnabled,
		storeSeqEnabled:     storeSeqEnabled,
		memo:                newBoxMemo(256),
	}
}

// Mass returns the total leaf mass of the tree (insertions since last
// prune), i.e. the root's subtree mass.
func (t *Tree) Mass() int {
	return massOf(t.root)
}

// Empty reports whether the tree currently holds no points.
func (t *Tree) Empty() bool { return t.root == nil }

// SetCacheFraction reconfigures the bounding-box cache density. Existing
// nodes are not retroactively rebuilt; new nodes created after this call
// use the new fraction. This mirrors the teacher's config mutators, which
// only affect state from the point of the call forward.
func (t *Tree) SetCacheFraction(f float64) {
	t.cacheFraction = f
}

func (t *Tree) shouldCache() bool {
	if t.cacheFraction >= 1 {
		return true
	}
	if t.cacheFraction <= 0 {
		return false
	}
	return t.rng.Float64() < t.cacheFraction
}

// boxOf returns the tight bounding box beneath n, using the permanent
// per-node cache when present, else the transient memo, else a fresh
// recursive computation (§4.3 "Cached bounding boxes").
func (t *Tree) boxOf(n *node) *BoundingBox {
	if n.isLeaf {
		return newBoundingBoxFromPoint(t.ps.Get(n.handle))
	}
	if n.cached {
		return n.box
	}
	if b, ok := t.memo.get(n); ok {
		return b
	}
	b := t.boxOf(n.left).merge(t.boxOf(n.right))
	t.memo.add(n, b)
	return b
}

func massOf(n *node) int {
	if n == nil {
		return 0
	}
	if n.isLeaf {
		return n.mass
	}
	return n.subtreeMass
}

func (t *Tree) centerOfMassOf(n *node) Point {
	if n.isLeaf {
		return t.ps.Get(n.handle)
	}
	if n.cached && n.centerOfMass != nil {
		return n.centerOfMass
	}
	lm, rm := float64(massOf(n.left)), float64(massOf(n.right))
	lc, rc := t.centerOfMassOf(n.left), t.centerOfMassOf(n.right)
	total := lm + rm
	com := make(Point, t.dimensions)
	for i := range com {
		com[i] = float32((float64(lc[i])*lm + float64(rc[i])*rm) / total)
	}
	return com
}

// refreshCachedFields recomputes and stores this node's permanently
// cached box/COM (if it caches), and invalidates the transient memo entry
// since children changed. Invariant 2 of §8 requires a cached box to
// always equal the coordinate-wise min/max beneath it, so this must run
// on every structural change to n's children.
func (t *Tree) refreshCachedFields(n *node) {
	t.memo.remove(n)
	n.subtreeMass = massOf(n.left) + massOf(n.right)
	if n.cached {
		n.box = t.boxOf(n.left).merge(t.boxOf(n.right))
		if t.centerOfMassEnabled {
			n.centerOfMass = t.centerOfMassOf(n)
		}
	}
}

// sampleCut samples a dimension proportional to b's per-axis range, and a
// uniform cut value within that axis's range, per §4.3 step 2.
func (t *Tree) sampleCut(b *BoundingBox) (int, float32) {
	total := b.rangeSum()
	if total <= 0 {
		// degenerate box (every coordinate identical); fall back to axis 0.
		return 0, b.Min[0]
	}
	r := t.rng.Float64() * total
	var cum float64
	dim := len(b.Min) - 1
	for i := range b.Min {
		cum += b.rangeAt(i)
		if r <= cum {
			dim = i
			break
		}
	}
	lo, hi := b.Min[dim], b.Max[dim]
	value := lo + float32(t.rng.Float64())*(hi-lo)
	return dim, value
}

// cutSeparates reports whether cut (dim,value) puts query point p on the
// opposite side from the entire existing subtree box, per §4.3 step 2.
func cutSeparates(dim int, value float32, box *BoundingBox, p Point) bool {
	if p[dim] < box.Min[dim] {
		return p[dim] <= value && value < box.Min[dim]
	}
	if p[dim] > box.Max[dim] {
		return box.Max[dim] <= value && value < p[dim]
	}
	return false
}

// Add inserts point p under handle h, per §4.3 "Insertion". Duplicate
// points (bitwise-equal, hence the same handle from the point store)
// increment the existing leaf's mass rather than creating a new leaf.
func (t *Tree) Add(h Handle, seq int64) {
	p := t.ps.Get(h)
	if t.root == nil {
		t.root = newLeaf(h, seq, t.storeSeqEnabled)
		return
	}
	t.root = t.insert(t.root, p, h, seq)
}

func (t *Tree) insert(n *node, p Point, h Handle, seq int64) *node {
	if n.isLeaf {
		if n.handle == h {
			n.mass++
			if t.storeSeqEnabled {
				n.sequenceIndexes = append(n.sequenceIndexes, seq)
			}
			return n
		}
		return t.split(n, p, h, seq)
	}

	box := t.boxOf(n)
	extended := box.extend(p)
	if !extended.equalBox(box) {
		dim, value := t.sampleCut(extended)
		if cutSeparates(dim, value, box, p) {
			return t.makeInternal(dim, value, n, newLeaf(h, seq, t.storeSeqEnabled), p)
		}
	}

	if p[n.cutDim] <= n.cutValue {
		n.left = t.insert(n.left, p, h, seq)
	} else {
		n.right = t.insert(n.right, p, h, seq)
	}
	t.refreshCachedFields(n)
	return n
}

// split replaces leaf n with a new internal node separating n's point
// from the incoming (p, h).
func (t *Tree) split(n *node, p Point, h Handle, seq int64) *node {
	box := newBoundingBoxFromPoint(t.ps.Get(n.handle))
	extended := box.extend(p)
	for {
		dim, value := t.sampleCut(extended)
		if cutSeparates(dim, value, box, p) {
			return t.makeInternal(dim, value, n, newLeaf(h, seq, t.storeSeqEnabled), p)
		}
		// a degenerate extended box (p == n's point on every axis handled
		// above by the dedup'd handle equality check) cannot occur here,
		// so some resample eventually separates.
	}
}

// makeInternal builds the new internal node introduced above existing
// subtree "old", with "leaf" the freshly created leaf for p. Tie-break:
// a point landing exactly on the cut value goes left (§4.3).
func (t *Tree) makeInternal(dim int, value float32, old, leaf *node, p Point) *node {
	var left, right *node
	if p[dim] <= value {
		left, right = leaf, old
	} else {
		left, right = old, leaf
	}
	n := &node{
		cutDim:   dim,
		cutValue: value,
		left:     left,
		right:    right,
		cached:   t.shouldCache(),
	}
	t.refreshCachedFields(n)
	return n
}

// Delete removes one occurrence of handle h from the tree, per §4.3
// "Deletion". If the leaf's mass remains positive after decrementing, the
// leaf itself is kept.
func (t *Tree) Delete(h Handle) {
	if t.root == nil {
		return
	}
	p := t.ps.Get(h)
	newRoot, _ := t.delete(t.root, p, h)
	t.root = newRoot
}

func (t *Tree) delete(n *node, p Point, h Handle) (*node, bool) {
	if n.isLeaf {
		if n.handle != h {
			panic(&Error{Kind: PreconditionViolation, Msg: "delete: handle not found at expected leaf"})
		}
		n.mass--
		if t.storeSeqEnabled && len(n.sequenceIndexes) > 0 {
			n.sequenceIndexes = n.sequenceIndexes[:len(n.sequenceIndexes)-1]
		}
		if n.mass > 0 {
			return n, true
		}
		return nil, true
	}

	goLeft := p[n.cutDim] <= n.cutValue
	var child *node
	if goLeft {
		child = n.left
	} else {
		child = n.right
	}
	newChild, removed := t.delete(child, p, h)
	if !removed {
		return n, false
	}
	if newChild == nil {
		t.memo.remove(n)
		if goLeft {
			return n.right, true
		}
		return n.left, true
	}
	if goLeft {
		n.left = newChild
	} else {
		n.right = newChild
	}
	t.refreshCachedFields(n)
	return n, true
}

// pathStep is one node visited while walking a query point root-to-leaf.
type pathStep struct {
	n     *node
	depth int
}

// walkPath walks point root-to-leaf following the per-node cut (left if
// point[d] <= v), returning every node on the path, root first, leaf last.
func (t *Tree) walkPath(point Point) []pathStep {
	if t.root == nil {
		return nil
	}
	var path []pathStep
	n := t.root
	depth := 0
	for !n.isLeaf {
		path = append(path, pathStep{n, depth})
		if point[n.cutDim] <= n.cutValue {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	path = append(path, pathStep{n, depth})
	return path
}

// Visitor is the scalar accumulation capability of Design Notes §9: walked
// leaf-then-ancestors-upward along one root-to-leaf path. seq carries the
// leaf's recorded sequence indexes (nil unless store_sequence_indexes_enabled),
// needed by visitors such as NearNeighborVisitor that report provenance.
type Visitor interface {
	VisitLeaf(leafPoint Point, leafMass int, depth int, seq []int64)
	Visit(box *BoundingBox, mass int, depth int)
	Result() interface{}
}

// Traverse walks point root-to-leaf, invokes VisitLeaf once at the leaf,
// then Visit on each ancestor from leaf upward, per §4.3. Returns the
// visitor's zero Result() if the tree is empty.
func (t *Tree) Traverse(point Point, v Visitor) interface{} {
	path := t.walkPath(point)
	if path == nil {
		return v.Result()
	}
	leaf := path[len(path)-1]
	v.VisitLeaf(t.ps.Get(leaf.n.handle), leaf.n.mass, leaf.depth, leaf.n.sequenceIndexes)
	for i := len(path) - 2; i >= 0; i-- {
		n := path[i].n
		v.Visit(t.boxOf(n), n.subtreeMass, path[i].depth)
	}
	return v.Result()
}

// MultiVisitor is the branching capability of Design Notes §9, used by
// imputation (§4.4): at each internal node it either forks into both
// children or descends deterministically, and emits one result per leaf
// reached.
type MultiVisitor interface {
	// Fork reports whether the visitor branches into both children at n
	// (true) rather than descending a single, deterministic side.
	Fork(cutDim int) bool
	// Left reports, for a non-forking node, whether to descend left.
	Left(cutDim int, cutValue float32) bool
	VisitLeaf(leafPoint Point, leafMass int) interface{}
}

// TraverseMulti walks point root-to-leaf(s) as described for MultiVisitor,
// flattening every branch's leaf result into the returned slice, per §4.3
// "traverse_multi".
func (t *Tree) TraverseMulti(v MultiVisitor) []interface{} {
	if t.root == nil {
		return nil
	}
	var results []interface{}
	var walk func(n *node)
	walk = func(n *node) {
		if n.isLeaf {
			results = append(results, v.VisitLeaf(t.ps.Get(n.handle), n.mass))
			return
		}
		if v.Fork(n.cutDim) {
			walk(n.left)
			walk(n.right)
			return
		}
		if v.Left(n.cutDim, n.cutValue) {
			walk(n.left)
		} else {
			walk(n.right)
		}
	}
	walk(t.root)
	return results
}
