package rcforest

import "testing"

func TestBoundingBoxExtendContains(t *testing.T) {
	b := newBoundingBoxFromPoint(Point{0, 0})
	if !b.contains(Point{0, 0}) {
		t.Fatalf("box does not contain its own defining point")
	}
	if b.contains(Point{1, 0}) {
		t.Fatalf("box should not contain a point outside its range")
	}

	extended := b.extend(Point{2, -1})
	if extended.equalBox(b) {
		t.Fatalf("extend by an outside point must change the box")
	}
	if extended.Max[0] != 2 || extended.Min[1] != -1 {
		t.Fatalf("unexpected extended box: %+v", extended)
	}
	if !b.equalBox(newBoundingBoxFromPoint(Point{0, 0})) {
		t.Fatalf("extend must not mutate the receiver")
	}
}

func TestBoundingBoxMerge(t *testing.T) {
	a := &BoundingBox{Min: Point{0, 0}, Max: Point{1, 1}}
	b := &BoundingBox{Min: Point{-1, 2}, Max: Point{0.5, 3}}
	m := a.merge(b)
	if m.Min[0] != -1 || m.Min[1] != 0 || m.Max[0] != 1 || m.Max[1] != 3 {
		t.Fatalf("unexpected merged box: %+v", m)
	}
}

func TestBoundingBoxEnlargementInsideIsZero(t *testing.T) {
	b := &BoundingBox{Min: Point{0, 0}, Max: Point{10, 10}}
	pCut, high, low := b.enlargement(Point{5, 5})
	if pCut != 0 || high != nil || low != nil {
		t.Fatalf("query already inside box must report zero enlargement, got pCut=%f high=%v low=%v", pCut, high, low)
	}
}

func TestBoundingBoxEnlargementDirection(t *testing.T) {
	b := &BoundingBox{Min: Point{0, 0}, Max: Point{10, 10}}
	pCut, high, low := b.enlargement(Point{15, 0})
	if pCut <= 0 {
		t.Fatalf("expected positive pCut for an outside query, got %f", pCut)
	}
	if high[0] <= 0 {
		t.Fatalf("enlargement above Max[0] must attribute to high[0], got %v", high)
	}
	if low[0] != 0 {
		t.Fatalf("enlargement above Max[0] must not attribute to low[0], got %v", low)
	}
	sum := high[0] + high[1] + low[0] + low[1]
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("high+low shares must sum to 1, got %f", sum)
	}
}
