package rcforest

import "math"

// BoundingBox is the axis-aligned min/max envelope over a set of points,
// per §2/§4.3. It is the one primitive every other component is built on.
type BoundingBox struct {
	Min Point
	Max Point
}

func newBoundingBoxFromPoint(p Point) *BoundingBox {
	return &BoundingBox{Min: p.clone(), Max: p.clone()}
}

// merge returns the tightest box containing both b and o, without
// mutating either.
func (b *BoundingBox) merge(o *BoundingBox) *BoundingBox {
	r := &BoundingBox{Min: make(Point, len(b.Min)), Max: make(Point, len(b.Max))}
	for i := range b.Min {
		r.Min[i] = minf32(b.Min[i], o.Min[i])
		r.Max[i] = maxf32(b.Max[i], o.Max[i])
	}
	return r
}

// extend returns the tightest box containing b and the point p.
func (b *BoundingBox) extend(p Point) *BoundingBox {
	r := &BoundingBox{Min: make(Point, len(b.Min)), Max: make(Point, len(b.Max))}
	for i := range b.Min {
		r.Min[i] = minf32(b.Min[i], p[i])
		r.Max[i] = maxf32(b.Max[i], p[i])
	}
	return r
}

// contains reports whether p lies within b on every axis (inclusive).
func (b *BoundingBox) contains(p Point) bool {
	for i := range b.Min {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// equalBox reports whether b and o describe the same envelope, used to
// detect "point already inside" (B' == B) per the insertion algorithm.
func (b *BoundingBox) equalBox(o *BoundingBox) bool {
	for i := range b.Min {
		if b.Min[i] != o.Min[i] || b.Max[i] != o.Max[i] {
			return false
		}
	}
	return true
}

// rangeSum returns the sum of (Max[i]-Min[i]) across every axis.
func (b *BoundingBox) rangeSum() float64 {
	var sum float64
	for i := range b.Min {
		sum += float64(b.Max[i]) - float64(b.Min[i])
	}
	return sum
}

// rangeAt returns the range on a single axis.
func (b *BoundingBox) rangeAt(dim int) float64 {
	return float64(b.Max[dim]) - float64(b.Min[dim])
}

func minf32(a, b float32) float32 {
	return float32(math.Min(float64(a), float64(b)))
}

func maxf32(a, b float32) float32 {
	return float32(math.Max(float64(a), float64(b)))
}

// clone returns a deep copy, used when a box is about to be cached.
func (b *BoundingBox) clone() *BoundingBox {
	return &BoundingBox{Min: b.Min.clone(), Max: b.Max.clone()}
}

// enlargement computes, for box b probed by query, the probability p_cut
// that a uniformly chosen cut of the enlarged box b.extend(query) falls in
// the enlargement (§4.4 "Anomaly score"), and the normalized per-axis,
// per-direction share of that enlargement (summing to 1 across High+Low).
// Returns pCut == 0 and nil shares once query is already contained in b.
func (b *BoundingBox) enlargement(query Point) (pCut float64, high, low []float64) {
	extended := b.extend(query)
	if extended.equalBox(b) {
		return 0, nil, nil
	}

	dims := len(b.Min)
	high = make([]float64, dims)
	low = make([]float64, dims)
	var enlargeSum float64
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
		enlargeSum += diff
	}

	total := extended.rangeSum()
	if total <= 0 || enlargeSum <= 0 {
		return 0, nil, nil
	}
	pCut = enlargeSum / total
	for i := 0; i < dims; i++ {
		high[i] /= enlargeSum
		low[i] /= enlargeSum
	}
	return pCut, high, low
}
