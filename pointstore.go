package rcforest

import (
	"math"
	"strings"

	"k8s.io/klog/v2"
)

// Handle is an opaque, non-negative integer identifying a point held by a
// PointStore. It is stable for the point's lifetime and reusable once its
// reference count drops to zero (§3 "Handle").
type Handle int32

// NoHandle is returned by shingling operations that have not yet filled
// their internal buffer.
const NoHandle Handle = -1

type slot struct {
	point    Point
	refCount int32
	occupied bool
}

// PointStore is the arena described in §4.1: it owns every point's memory,
// addresses points by stable integer handles, deduplicates bitwise-equal
// vectors, and optionally maintains an internal shingling buffer. Adapted
// from the teacher's arena-style structures (circbuff.go's fixed backing
// array with a cursor, array.go's append-only slot slice) generalized from
// a log of commands to an arena of dedup'd float vectors.
type PointStore struct {
	dimensions int
	capacity   int

	slots    []slot
	freeList []Handle
	dedup    map[string]Handle

	shingle *shingleBuffer
}

// NewPointStore constructs a point store of the given dimension and
// capacity. capacity must be >= 1.
func NewPointStore(dimensions, capacity int) (*PointStore, error) {
	if dimensions <= 0 {
		return nil, newErr(InvalidConfiguration, "dimensions must be > 0, got %d", dimensions)
	}
	if capacity <= 0 {
		return nil, newErr(InvalidConfiguration, "capacity must be > 0, got %d", capacity)
	}
	return &PointStore{
		dimensions: dimensions,
		capacity:   capacity,
		slots:      make([]slot, 0, capacity),
		dedup:      make(map[string]Handle, capacity),
	}, nil
}

// enableShingling turns on the internal sliding/rotating buffer described
// in §4.1. blockSize*shingleSize must equal the store's dimension.
func (ps *PointStore) enableShingling(blockSize, shingleSize int, rotation bool) error {
	if blockSize*shingleSize != ps.dimensions {
		return newErr(InvalidConfiguration,
			"blockSize (%d) * shingleSize (%d) must equal dimensions (%d)", blockSize, shingleSize, ps.dimensions)
	}
	ps.shingle = &shingleBuffer{
		blockSize: blockSize,
		size:      shingleSize,
		blocks:    make([]Point, shingleSize),
		rotation:  rotation,
	}
	return nil
}

func keyOf(p Point) string {
	var sb strings.Builder
	sb.Grow(len(p) * 4)
	for _, f := range p {
		// bitwise key: math.Float32bits distinguishes +0/-0 and NaN payloads,
		// matching the bitwise-equality dedup contract of §4.1.
		bits := math.Float32bits(f)
		sb.WriteByte(byte(bits))
		sb.WriteByte(byte(bits >> 8))
		sb.WriteByte(byte(bits >> 16))
		sb.WriteByte(byte(bits >> 24))
	}
	return sb.String()
}

// Intern returns a handle for p, allocating a new slot unless an
// equal-valued point is already stored (in which case its reference count
// is incremented and its existing handle returned). Fails with
// CapacityExhausted if the arena is full and no free slot is available.
func (ps *PointStore) Intern(p Point) (Handle, error) {
	if len(p) != ps.dimensions {
		return NoHandle, newErr(InvalidInput, "point has %d dimensions, store expects %d", len(p), ps.dimensions)
	}
	key := keyOf(p)
	if h, ok := ps.dedup[key]; ok {
		ps.slots[h].refCount++
		return h, nil
	}

	if len(ps.freeList) > 0 {
		h := ps.freeList[len(ps.freeList)-1]
		ps.freeList = ps.freeList[:len(ps.freeList)-1]
		ps.slots[h] = slot{point: p.clone(), refCount: 1, occupied: true}
		ps.dedup[key] = h
		return h, nil
	}

	if len(ps.slots) >= ps.capacity {
		return NoHandle, newErr(CapacityExhausted, "point store full at capacity %d", ps.capacity)
	}
	h := Handle(len(ps.slots))
	ps.slots = append(ps.slots, slot{point: p.clone(), refCount: 1, occupied: true})
	ps.dedup[key] = h
	return h, nil
}

// Retain increments h's reference count. Used whenever a tree's sampler
// accepts an already-interned handle.
func (ps *PointStore) Retain(h Handle) {
	ps.slots[h].refCount++
}

// Release decrements h's reference count, freeing the slot (and its dedup
// entry) once the count reaches zero.
func (ps *PointStore) Release(h Handle) {
	s := &ps.slots[h]
	s.refCount--
	if s.refCount > 0 {
		return
	}
	if s.refCount < 0 {
		klog.Warningf("pointstore: handle %d released below zero refcount", h)
	}
	key := keyOf(s.point)
	delete(ps.dedup, key)
	*s = slot{}
	ps.freeList = append(ps.freeList, h)
}

// Get borrows the stored vector for h. h must currently be occupied; this
// is a precondition, not a recoverable error path (§4.1).
func (ps *PointStore) Get(h Handle) Point {
	s := &ps.slots[h]
	if !s.occupied {
		panic(&Error{Kind: PreconditionViolation, Msg: "Get on a released handle"})
	}
	return s.point
}

// RefCount returns the current reference count of h, 0 if free.
func (ps *PointStore) RefCount(h Handle) int32 {
	return ps.slots[h].refCount
}

// Resize grows the arena's capacity to newCapacity; shrinking is
// rejected. Existing handles are never invalidated or compacted (§3).
func (ps *PointStore) Resize(newCapacity int) error {
	if newCapacity < ps.capacity {
		return newErr(InvalidConfiguration, "cannot shrink point store capacity (%d -> %d)", ps.capacity, newCapacity)
	}
	ps.capacity = newCapacity
	return nil
}

// Dimensions returns the configured point dimension.
func (ps *PointStore) Dimensions() int { return ps.dimensions }

// --- shingling ---

type shingleBuffer struct {
	blockSize int
	size      int
	blocks    []Point
	count     int
	rotation  bool
}

// assemble concatenates the buffer's blocks oldest-to-newest. In rotation
// mode the physical backing slots wrap with sb.count, so the oldest slot
// is wherever the next push will land (sb.count % sb.size) rather than
// always index 0; reading from there canonicalizes the output so that two
// streams with identical cyclic content — regardless of phase — assemble
// to the same vector and intern to the same handle (§3 "internal
// rotation"). The sliding (non-rotation) buffer is already physically
// stored oldest-to-newest, so it needs no reordering.
func (sb *shingleBuffer) assemble() Point {
	p := make(Point, 0, sb.size*sb.blockSize)
	if sb.rotation {
		oldest := sb.count % sb.size
		for i := 0; i < sb.size; i++ {
			p = append(p, sb.blocks[(oldest+i)%sb.size]...)
		}
		return p
	}
	for _, b := range sb.blocks {
		p = append(p, b...)
	}
	return p
}

// push appends raw to the buffer (mutating state) and reports the
// resulting shingle once the buffer has filled at least once.
func (sb *shingleBuffer) push(raw Point) (Point, bool) {
	if sb.rotation {
		idx := sb.count % sb.size
		sb.blocks[idx] = raw.clone()
		sb.count++
	} else if sb.count < sb.size {
		sb.blocks[sb.count] = raw.clone()
		sb.count++
	} else {
		copy(sb.blocks, sb.blocks[1:])
		sb.blocks[sb.size-1] = raw.clone()
		sb.count++
	}
	if sb.count < sb.size {
		return nil, false
	}
	return sb.assemble(), true
}

// lastBlockOffset returns the coordinate offset, in shingle space, of the
// most recently pushed raw block. assemble's oldest-to-newest
// canonicalization (including under rotation) means the newest block
// always lands at the final blockSize coordinates, regardless of mode.
func (sb *shingleBuffer) lastBlockOffset() int {
	return (sb.size - 1) * sb.blockSize
}

// IsShingleFull reports whether the internal buffer has observed at least
// shingleSize raw blocks.
func (ps *PointStore) IsShingleFull() bool {
	return ps.shingle != nil && ps.shingle.count >= ps.shingle.size
}

// InternShingled appends raw to the internal buffer and, once it has
// filled, interns and returns the resulting handle. Returns NoHandle,false
// while still warming up (§4.1).
func (ps *PointStore) InternShingled(raw Point) (Handle, bool, error) {
	if ps.shingle == nil {
		return NoHandle, false, newErr(PreconditionViolation, "internal shingling not enabled")
	}
	if len(raw) != ps.shingle.blockSize {
		return NoHandle, false, newErr(InvalidInput, "raw block has %d elements, expected %d", len(raw), ps.shingle.blockSize)
	}
	shingled, ready := ps.shingle.push(raw)
	if !ready {
		return NoHandle, false, nil
	}
	h, err := ps.Intern(shingled)
	if err != nil {
		return NoHandle, false, err
	}
	return h, true, nil
}

// TransformToShingled computes, without mutating internal state, the
// shingle that would result from appending raw to the current buffer.
// Used by read-only query paths (scoring/imputing a hypothetical next
// point without committing it).
func (ps *PointStore) TransformToShingled(raw Point) (Point, error) {
	if ps.shingle == nil {
		return nil, newErr(PreconditionViolation, "internal shingling not enabled")
	}
	if len(raw) != ps.shingle.blockSize {
		return nil, newErr(InvalidInput, "raw block has %d elements, expected %d", len(raw), ps.shingle.blockSize)
	}
	clone := &shingleBuffer{
		blockSize: ps.shingle.blockSize,
		size:      ps.shingle.size,
		blocks:    make([]Point, ps.shingle.size),
		count:     ps.shingle.count,
		rotation:  ps.shingle.rotation,
	}
	copy(clone.blocks, ps.shingle.blocks)
	shingled, ready := clone.push(raw)
	if !ready {
		return nil, nil
	}
	return shingled, nil
}

// TransformIndices translates coordinate indices from raw-input space
// into shingle space, mapping each index in missingInRaw to the offset of
// the most recently observed block, honoring rotation (§4.1).
func (ps *PointStore) TransformIndices(missingInRaw []int) ([]int, error) {
	if ps.shingle == nil {
		return nil, newErr(PreconditionViolation, "internal shingling not enabled")
	}
	offset := ps.shingle.lastBlockOffset()
	out := make([]int, len(missingInRaw))
	for i, idx := range missingInRaw {
		if idx < 0 || idx >= ps.shingle.blockSize {
			return nil, newErr(InvalidInput, "missing index %d out of raw-block range [0,%d)", idx, ps.shingle.blockSize)
		}
		out[i] = offset + idx
	}
	return out, nil
}
