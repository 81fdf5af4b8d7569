package rcforest

import "testing"

func TestFixedOrderAccumulatorMean(t *testing.T) {
	acc := NewFixedOrderAccumulator(4)
	acc.Set(0, 1)
	acc.Set(1, 2)
	acc.Set(2, 3)
	acc.Set(3, 4)
	if mean := acc.Mean(); mean != 2.5 {
		t.Fatalf("expected mean 2.5, got %f", mean)
	}
}

func TestConvergingAccumulatorStopsEarlyOnConstantInput(t *testing.T) {
	acc := NewConvergingAccumulator(0.1, 3)
	stopped := -1
	for i := 0; i < 20; i++ {
		if acc.Accept(1.0) {
			stopped = i
			break
		}
	}
	if stopped < 0 {
		t.Fatalf("a constant input stream should converge well before 20 polls")
	}
	if stopped >= 19 {
		t.Fatalf("expected convergence earlier than the last poll, got %d", stopped)
	}
	if mean := acc.Mean(); mean != 1.0 {
		t.Fatalf("expected converged mean 1.0, got %f", mean)
	}
}

func TestConvergingAccumulatorNeverStopsBeforeMinValues(t *testing.T) {
	acc := NewConvergingAccumulator(0.1, 5)
	for i := 0; i < 4; i++ {
		if acc.Accept(1.0) {
			t.Fatalf("must not converge before minValues polls, converged at poll %d", i)
		}
	}
}

func TestConvergingVectorAccumulatorMean(t *testing.T) {
	acc := NewConvergingVectorAccumulator(0.1, 3, 2)
	for i := 0; i < 5; i++ {
		v := &DirectionalVector{High: []float64{2, 0}, Low: []float64{0, 0}}
		acc.Accept(v)
	}
	mean := acc.Mean()
	if mean.High[0] != 2 {
		t.Fatalf("expected mean.High[0] == 2, got %f", mean.High[0])
	}
}
