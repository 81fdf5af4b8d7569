package rcforest

import (
	"math/rand"
	"testing"
)

func fillSampler(t *testing.T, s *Sampler, ps *PointStore, n int, startSeq int64) {
	t.Helper()
	for i := int64(0); i < int64(n); i++ {
		seq := startSeq + i
		dec, err := s.Accept(seq)
		if err != nil {
			t.Fatalf("Accept(%d): %v", seq, err)
		}
		if !dec.Accepted {
			s.Discard()
			continue
		}
		h, err := ps.Intern(Point{float32(seq)})
		if err != nil {
			t.Fatalf("Intern: %v", err)
		}
		if dec.Evicted != NoHandle {
			ps.Release(dec.Evicted)
		}
		if err := s.Commit(h); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
}

func TestSamplerAcceptsUntilFull(t *testing.T) {
	ps, err := NewPointStore(1, 16)
	if err != nil {
		t.Fatalf("NewPointStore: %v", err)
	}
	s, err := NewSampler(8, 0, 1.0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	fillSampler(t, s, ps, 8, 0)
	if !s.Full() {
		t.Fatalf("expected sampler to be full after 8 unconditional accepts, got size %d", s.Size())
	}
}

func TestSamplerRejectsRegressingSequence(t *testing.T) {
	s, err := NewSampler(4, 0.1, 1.0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	if _, err := s.Accept(10); err != nil {
		t.Fatalf("Accept(10): %v", err)
	}
	s.Discard()
	if _, err := s.Accept(5); err == nil {
		t.Fatalf("expected an error accepting a sequence index below the max seen")
	}
}

func TestSamplerSetTimeDecayResetsT0ToMaxSeq(t *testing.T) {
	const capacity = 32
	const lambda1 = 0.01
	const lambda2 = 0.05
	const switchSeq = 50

	// sampler A: built with lambda1, switches to lambda2 at switchSeq.
	psA, _ := NewPointStore(1, capacity*2)
	a, err := NewSampler(capacity, lambda1, 1.0, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	fillSampler(t, a, psA, switchSeq, 0)
	if err := a.SetTimeDecay(lambda2); err != nil {
		t.Fatalf("SetTimeDecay: %v", err)
	}

	// the weight formula after the switch must depend only on (seq -
	// t0) under the new lambda, with lambdaAccum folding in everything
	// before the switch — i.e. t0 must now equal the max sequence seen.
	if a.t0 != a.maxSeq {
		t.Fatalf("t0 must reset to maxSeq on SetTimeDecay, got t0=%d maxSeq=%d", a.t0, a.maxSeq)
	}
	if a.lambda != lambda2 {
		t.Fatalf("lambda must update to the new value, got %f", a.lambda)
	}
}
