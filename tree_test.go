package rcforest

import (
	"math/rand"
	"testing"
)

func newTestTree(t *testing.T, dims, capacity int, seed int64) (*Tree, *PointStore) {
	t.Helper()
	ps, err := NewPointStore(dims, capacity)
	if err != nil {
		t.Fatalf("NewPointStore: %v", err)
	}
	tr := NewTree(ps, rand.New(rand.NewSource(seed)), 1.0, false, true)
	return tr, ps
}

func TestTreeAddDuplicateBumpsMass(t *testing.T) {
	tr, ps := newTestTree(t, 2, 8, 1)
	h, err := ps.Intern(Point{1, 1})
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	tr.Add(h, 0)
	tr.Add(h, 1)
	if tr.Mass() != 2 {
		t.Fatalf("expected mass 2 after two inserts of the same handle, got %d", tr.Mass())
	}
	if !tr.root.isLeaf {
		t.Fatalf("a tree with one distinct point must be a single leaf")
	}
	if len(tr.root.sequenceIndexes) != 2 {
		t.Fatalf("expected 2 recorded sequence indexes, got %v", tr.root.sequenceIndexes)
	}
}

func TestTreeAddDistinctPointsSplits(t *testing.T) {
	tr, ps := newTestTree(t, 2, 8, 2)
	h1, _ := ps.Intern(Point{0, 0})
	h2, _ := ps.Intern(Point{10, 10})
	tr.Add(h1, 0)
	tr.Add(h2, 1)
	if tr.root.isLeaf {
		t.Fatalf("two distinct points must produce an internal node")
	}
	if tr.Mass() != 2 {
		t.Fatalf("expected mass 2, got %d", tr.Mass())
	}
}

func TestTreeDeleteRestoresSibling(t *testing.T) {
	tr, ps := newTestTree(t, 2, 8, 3)
	h1, _ := ps.Intern(Point{0, 0})
	h2, _ := ps.Intern(Point{10, 10})
	tr.Add(h1, 0)
	tr.Add(h2, 1)
	tr.Delete(h2)
	if !tr.root.isLeaf || tr.root.handle != h1 {
		t.Fatalf("deleting one of two leaves must splice up the sibling")
	}
	if tr.Mass() != 1 {
		t.Fatalf("expected mass 1 after delete, got %d", tr.Mass())
	}
}

func TestTreeCachedBoxMatchesRecomputed(t *testing.T) {
	tr, ps := newTestTree(t, 2, 32, 4)
	pts := [][2]float32{{0, 0}, {10, 0}, {0, 10}, {5, 5}, {-3, 7}}
	for i, p := range pts {
		h, err := ps.Intern(Point{p[0], p[1]})
		if err != nil {
			t.Fatalf("Intern: %v", err)
		}
		tr.Add(h, int64(i))
	}
	if tr.root.isLeaf {
		t.Fatalf("expected an internal root for 5 distinct points")
	}
	cached := tr.root.box
	if cached == nil {
		// cache fraction 1.0 guarantees every internal node caches.
		t.Fatalf("expected the root to have a permanently cached box")
	}
	recomputed := tr.boxOf(tr.root.left).merge(tr.boxOf(tr.root.right))
	if !cached.equalBox(recomputed) {
		t.Fatalf("cached root box %+v does not match recomputed box %+v", cached, recomputed)
	}
}

func TestAttributionSumMatchesScore(t *testing.T) {
	tr, ps := newTestTree(t, 3, 64, 5)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 40; i++ {
		p := Point{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
		h, err := ps.Intern(p)
		if err != nil {
			t.Fatalf("Intern: %v", err)
		}
		tr.Add(h, int64(i))
	}

	query := Point{3, -2, 1}
	score := tr.Traverse(query, NewAnomalyScoreVisitor(query)).(float64)
	vec := tr.Traverse(query, NewAnomalyAttributionVisitor(query, 3)).(*DirectionalVector)

	sum := vec.HighLowSum()
	if diff := sum - score; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("attribution.HighLowSum() = %v, want %v (score)", sum, score)
	}
}

func TestImputeVisitorPreservesObservedCoordinates(t *testing.T) {
	tr, ps := newTestTree(t, 3, 64, 6)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 30; i++ {
		p := Point{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
		h, err := ps.Intern(p)
		if err != nil {
			t.Fatalf("Intern: %v", err)
		}
		tr.Add(h, int64(i))
	}

	query := Point{1.5, -0.5, 0.25}
	leaves := tr.TraverseMulti(NewImputeVisitor(query, []int{1}))
	if len(leaves) == 0 {
		t.Fatalf("expected at least one imputation candidate")
	}
	for _, l := range leaves {
		c := l.(*ImputeCandidate)
		if c.Point[0] != query[0] || c.Point[2] != query[2] {
			t.Fatalf("observed coordinates must be preserved, got %v for query %v", c.Point, query)
		}
	}
}
