package rcforest

import (
	"container/heap"
	"math"
	"math/rand"

	"k8s.io/klog/v2"
)

// samplerEntry is the triple (handle, weight, sequence_index) of §3. Lower
// weight means higher priority to remain in the sample.
type samplerEntry struct {
	handle Handle
	weight float64
	seq    int64
}

// entryHeap is a max-heap by weight: the entry most eligible for eviction
// (highest weight) sits at the top, per §3 "Sampler". container/heap is
// the idiomatic stdlib priority queue; no third-party heap package
// appears anywhere in the retrieval pack, so this is left on the standard
// library deliberately (see DESIGN.md).
type entryHeap struct {
	entries []samplerEntry
	index   map[Handle]int
}

func (h *entryHeap) Len() int { return len(h.entries) }
func (h *entryHeap) Less(i, j int) bool {
	return h.entries[i].weight > h.entries[j].weight // max-heap
}
func (h *entryHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.index[h.entries[i].handle] = i
	h.index[h.entries[j].handle] = j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(samplerEntry)
	h.index[e.handle] = len(h.entries)
	h.entries = append(h.entries, e)
}
func (h *entryHeap) Pop() interface{} {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	delete(h.index, e.handle)
	return e
}

// Decision is the pure result of Sampler.Accept, per the two-phase
// accept/commit protocol of §4.2.
type Decision struct {
	Accepted bool
	Weight   float64
	Evicted  Handle // NoHandle if the sample wasn't yet full
}

// Sampler realizes weighted time-decayed reservoir sampling of fixed
// capacity K, per §3/§4.2. Adapted from the teacher's fixed-capacity,
// mutex-guarded structures (array.go/circbuff.go), replacing their plain
// backing array with a weight-ordered heap since eviction here is
// priority-driven rather than FIFO.
type Sampler struct {
	capacity int
	h        *entryHeap
	rng      *rand.Rand

	lambda      float64
	f0          float64
	lambdaAccum float64
	t0          int64 // seqOfLastLambdaUpdate
	maxSeq      int64
	hasSeen     bool

	pending       *samplerEntry
	pendingEvict  Handle
	pendingEvictSet bool
}

// NewSampler constructs a sampler of the given capacity, initial time
// decay, and initial accept fraction, seeded from rng.
func NewSampler(capacity int, timeDecay, initialAcceptFraction float64, rng *rand.Rand) (*Sampler, error) {
	if capacity <= 0 {
		return nil, newErr(InvalidConfiguration, "sampler capacity must be > 0, got %d", capacity)
	}
	if timeDecay < 0 {
		return nil, newErr(InvalidConfiguration, "time decay must be >= 0, got %f", timeDecay)
	}
	if initialAcceptFraction <= 0 || initialAcceptFraction > 1 {
		return nil, newErr(InvalidConfiguration, "initial accept fraction must be in (0,1], got %f", initialAcceptFraction)
	}
	return &Sampler{
		capacity: capacity,
		h:        &entryHeap{index: make(map[Handle]int, capacity)},
		rng:      rng,
		lambda:   timeDecay,
		f0:       initialAcceptFraction,
	}, nil
}

// Size returns the number of entries currently held.
func (s *Sampler) Size() int { return s.h.Len() }

// Full reports whether the sampler holds capacity entries.
func (s *Sampler) Full() bool { return s.h.Len() >= s.capacity }

// weightAt computes w(t) for a fresh uniform draw u, per §4.2's formula.
func (s *Sampler) weightAt(seq int64) float64 {
	u := s.rng.Float64()
	// guard against log(0); u is drawn from (0,1) in the open interval.
	for u <= 0 {
		u = s.rng.Float64()
	}
	return -(float64(seq-s.t0))*s.lambda - s.lambdaAccum + math.Log(-math.Log(u))
}

// Accept is the pure decision half of the two-phase protocol: it draws
// randomness and decides, but commits nothing. Exactly one Commit must
// follow a successful Accept before the next Accept call.
func (s *Sampler) Accept(seq int64) (Decision, error) {
	if s.hasSeen && seq < s.maxSeq {
		return Decision{}, newErr(InvalidInput, "sequence index %d regresses below max seen %d", seq, s.maxSeq)
	}
	if s.pending != nil {
		return Decision{}, newErr(PreconditionViolation, "Accept called with an uncommitted prior decision")
	}
	// maxSeq tracks the highest sequence index ever presented to Accept,
	// not just committed ones — the monotonicity guard above and the
	// SetTimeDecay fold both need "how far time has advanced", which
	// elapses whether or not a given candidate ends up sampled.
	s.maxSeq = seq
	s.hasSeen = true

	w := s.weightAt(seq)

	if !s.Full() {
		acceptProb := s.f0 + 1 - float64(s.Size())/float64(s.capacity)
		if acceptProb > 1 {
			acceptProb = 1
		}
		if s.rng.Float64() >= acceptProb {
			return Decision{Accepted: false}, nil
		}
		s.pending = &samplerEntry{weight: w, seq: seq}
		s.pendingEvictSet = false
		return Decision{Accepted: true, Weight: w, Evicted: NoHandle}, nil
	}

	top := s.h.entries[0]
	if w >= top.weight {
		return Decision{Accepted: false}, nil
	}
	s.pending = &samplerEntry{weight: w, seq: seq}
	s.pendingEvict = top.handle
	s.pendingEvictSet = true
	return Decision{Accepted: true, Weight: w, Evicted: top.handle}, nil
}

// Commit finalizes the most recent successful Accept, inserting handle
// with the weight recorded at accept time and, if the sample was full,
// removing the evicted entry. Must be called exactly once per accepted
// Accept.
func (s *Sampler) Commit(handle Handle) error {
	if s.pending == nil {
		return newErr(PreconditionViolation, "Commit called without a pending Accept")
	}
	if s.pendingEvictSet {
		heap.Pop(s.h)
	}
	entry := *s.pending
	entry.handle = handle
	heap.Push(s.h, entry)

	s.pending = nil
	s.pendingEvictSet = false
	return nil
}

// Discard abandons a pending Accept without inserting, used by the
// coordinator when a transaction must be rolled back (§7).
func (s *Sampler) Discard() {
	s.pending = nil
	s.pendingEvictSet = false
}

// SetTimeDecay updates λ on the fly. The accumulator is folded using the
// *old* λ over the span since the previous change, then t0 resets to
// maxSeq — the form under which property 5 of §8 holds exactly (see
// SPEC_FULL.md's Open Question Decisions and DESIGN.md).
func (s *Sampler) SetTimeDecay(newLambda float64) error {
	if newLambda < 0 {
		return newErr(InvalidInput, "time decay must be >= 0, got %f", newLambda)
	}
	s.lambdaAccum += float64(s.maxSeq-s.t0) * s.lambda
	s.t0 = s.maxSeq
	s.lambda = newLambda
	klog.V(2).Infof("sampler: time decay updated to %f at seq %d", newLambda, s.t0)
	return nil
}

// Entries returns a snapshot of the currently-held handles, for traversal
// by callers that need to iterate the sample (e.g. rebuild/debug paths).
func (s *Sampler) Entries() []Handle {
	out := make([]Handle, len(s.h.entries))
	for i, e := range s.h.entries {
		out[i] = e.handle
	}
	return out
}
