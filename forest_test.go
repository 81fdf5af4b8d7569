package rcforest

import (
	"context"
	"math/rand"
	"testing"

	"github.com/Lz-Gustavo/rcforest/internal/streamgen"
)

func newOutlierForest(t *testing.T, seed int64, parallel bool) *Forest {
	t.Helper()
	cfg := NewConfig(3)
	cfg.SampleSize = 256
	cfg.NumberOfTrees = 30
	cfg.WithRandomSeed(seed)
	cfg.ParallelExecutionEnabled = parallel
	if parallel {
		cfg.ThreadPoolSize = 4
	}
	f, err := NewForest(cfg, nil)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	t.Cleanup(func() { f.Close(context.Background()) })

	gen := streamgen.NewGaussianMixtureGenerator(streamgen.GaussianMixtureConfig{
		Dimensions:      3,
		BaseMean:        []float64{0, 0, 0},
		BaseStdDev:      1,
		OutlierMean:     []float64{5, 5, 1.5},
		OutlierStdDev:   1.5,
		OutlierFraction: 0.01,
	}, rand.New(rand.NewSource(seed)))

	for i := 0; i < 4000; i++ {
		if err := f.Update(gen.Next()); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	return f
}

func TestForestOutlierDetection(t *testing.T) {
	f := newOutlierForest(t, 123, false)
	if !f.IsOutputReady() {
		t.Fatalf("expected output ready after 4000 updates with output_after=%d", f.cfg.OutputAfter)
	}
	normal := f.Score(Point{0, 0, 0})
	outlier := f.Score(Point{8, 8, 8})
	if normal >= 1.0 {
		t.Fatalf("expected score(origin) < 1.0, got %f", normal)
	}
	if outlier <= 1.0 {
		t.Fatalf("expected score(outlier) > 1.0, got %f", outlier)
	}
}

func TestForestAttributionSumMatchesScore(t *testing.T) {
	f := newOutlierForest(t, 321, false)
	query := Point{6, 0, 0}
	score := f.Score(query)
	vec := f.Attribution(query)
	if diff := vec.HighLowSum() - score; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("attribution.HighLowSum() = %f, want %f", vec.HighLowSum(), score)
	}
}

func TestForestShadowBoxMaskingLowersScore(t *testing.T) {
	f := newOutlierForest(t, 555, false)
	query := Point{-8, -8, 0}
	before := f.Score(query)
	for i := 0; i < 5; i++ {
		if err := f.Update(query); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	after := f.Score(query)
	if after >= before {
		t.Fatalf("expected score to strictly decrease after repeated insertion, before=%f after=%f", before, after)
	}
	vec := f.Attribution(query)
	if diff := vec.HighLowSum() - after; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("attribution.HighLowSum() = %f, want %f", vec.HighLowSum(), after)
	}
}

func TestForestImpute(t *testing.T) {
	f := newOutlierForest(t, 77, false)
	query := Point{0, 0.02, 0.01}
	imputed, err := f.Impute(query, []int{0})
	if err != nil {
		t.Fatalf("Impute: %v", err)
	}
	if imputed[1] != query[1] || imputed[2] != query[2] {
		t.Fatalf("observed coordinates must be preserved: got %v, query %v", imputed, query)
	}
	if x := imputed[0]; x > 0.5 || x < -0.5 {
		t.Fatalf("expected |imputed[0]| < 0.5, got %f", x)
	}
}

func TestForestNearestNeighbor(t *testing.T) {
	f := newOutlierForest(t, 246, false)

	near := f.NearestNeighbor(Point{0, 0, 0}, 50)
	if near == nil {
		t.Fatalf("expected a near neighbor within a generous threshold of the dense cluster")
	}
	if near.Distance > 50 {
		t.Fatalf("reported neighbor distance %f exceeds threshold", near.Distance)
	}

	far := f.NearestNeighbor(Point{1000, 1000, 1000}, 0.01)
	if far != nil {
		t.Fatalf("expected no neighbor within a near-zero threshold far from every sample, got %v", far)
	}
}

func TestForestDeterminismParallelVsSequential(t *testing.T) {
	seq := newOutlierForest(t, 999, false)
	par := newOutlierForest(t, 999, true)

	queries := []Point{{0, 0, 0}, {8, 8, 8}, {-3, 2, 1}, {6, 0, 0}}
	for _, q := range queries {
		s1, s2 := seq.Score(q), par.Score(q)
		if diff := s1 - s2; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("parallel and sequential scores diverged for %v: %f vs %f", q, s1, s2)
		}
	}
}

func TestForestQuietBeforeReady(t *testing.T) {
	cfg := NewConfig(2)
	cfg.WithRandomSeed(1)
	f, err := NewForest(cfg, nil)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	defer f.Close(context.Background())

	if f.IsOutputReady() {
		t.Fatalf("a freshly constructed forest must not be output-ready")
	}
	if s := f.Score(Point{0, 0}); s != 0 {
		t.Fatalf("expected quiet zero score before warm-up, got %f", s)
	}
	if v := f.Attribution(Point{0, 0}); v.HighLowSum() != 0 {
		t.Fatalf("expected quiet zero attribution before warm-up, got %v", v)
	}
	d := f.Density(Point{0, 0})
	if d.Measure.Probability.HighLowSum() != 0 {
		t.Fatalf("expected quiet zero density before warm-up, got %v", d)
	}
}

func TestForestShingledExtrapolate(t *testing.T) {
	cfg := NewConfig(1)
	cfg.SampleSize = 256
	cfg.NumberOfTrees = 20
	cfg.ShingleSize = 8
	cfg.InternalShinglingEnabled = true
	cfg.OutputAfter = 64
	cfg.WithRandomSeed(42)
	f, err := NewForest(cfg, nil)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	defer f.Close(context.Background())

	gen := streamgen.NewSineWaveGenerator(streamgen.SineWaveConfig{
		Period:      50,
		Amplitude:   1,
		NoiseStdDev: 0.05,
		Step:        1,
	}, rand.New(rand.NewSource(42)))

	for i := 0; i < 3000; i++ {
		if err := f.Update(gen.Next()); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if !f.IsOutputReady() {
		t.Fatalf("expected output ready after 3000 shingled updates")
	}

	forecast, err := f.Extrapolate(20, 1, false)
	if err != nil {
		t.Fatalf("Extrapolate: %v", err)
	}
	if len(forecast) != 20 {
		t.Fatalf("expected 20 forecasted blocks, got %d", len(forecast))
	}
	for i, b := range forecast {
		if len(b) != 1 {
			t.Fatalf("forecast block %d has unexpected length %d", i, len(b))
		}
		v := float64(b[0])
		if v != v { // NaN check
			t.Fatalf("forecast block %d is NaN", i)
		}
	}
}
