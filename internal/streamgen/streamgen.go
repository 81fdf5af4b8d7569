// Package streamgen produces synthetic point streams for exercising a
// forest end to end, adapted from the teacher's Generator interface and
// gen.go/sim harness (which read .toml test cases and produced synthetic
// command logs for log-compaction benchmarks); here the same
// Seed-then-produce shape generates floating-point vectors instead.
package streamgen

import (
	"math"
	"math/rand"
)

// Generator produces an unbounded stream of fixed-dimension points.
type Generator interface {
	Next() []float32
}

// GaussianMixtureConfig describes a two-component Gaussian mixture: a
// dominant "background" component and a rare "outlier" component, used
// to exercise outlier-detection scenarios (§8 scenarios 1-3).
type GaussianMixtureConfig struct {
	Dimensions      int
	BaseMean        []float64
	BaseStdDev      float64
	OutlierMean     []float64
	OutlierStdDev   float64
	OutlierFraction float64
}

// GaussianMixtureGenerator draws from a GaussianMixtureConfig.
type GaussianMixtureGenerator struct {
	cfg GaussianMixtureConfig
	rng *rand.Rand
}

// NewGaussianMixtureGenerator constructs a generator seeded from rng.
func NewGaussianMixtureGenerator(cfg GaussianMixtureConfig, rng *rand.Rand) *GaussianMixtureGenerator {
	return &GaussianMixtureGenerator{cfg: cfg, rng: rng}
}

// Next draws one point, falling in the outlier component with
// probability OutlierFraction.
func (g *GaussianMixtureGenerator) Next() []float32 {
	mean, std := g.cfg.BaseMean, g.cfg.BaseStdDev
	if g.rng.Float64() < g.cfg.OutlierFraction {
		mean, std = g.cfg.OutlierMean, g.cfg.OutlierStdDev
	}
	p := make([]float32, g.cfg.Dimensions)
	for i := range p {
		p[i] = float32(mean[i] + std*g.rng.NormFloat64())
	}
	return p
}

// SineWaveConfig describes a single noisy sinusoid, used to exercise the
// shingled forecasting scenario (§8 scenario 5).
type SineWaveConfig struct {
	Period      float64
	Amplitude   float64
	NoiseStdDev float64
	Step        float64
}

// SineWaveGenerator emits one scalar per call, advancing its phase by
// Step each time.
type SineWaveGenerator struct {
	cfg SineWaveConfig
	rng *rand.Rand
	t   float64
}

// NewSineWaveGenerator constructs a generator seeded from rng.
func NewSineWaveGenerator(cfg SineWaveConfig, rng *rand.Rand) *SineWaveGenerator {
	return &SineWaveGenerator{cfg: cfg, rng: rng}
}

// Next returns the next noisy sample as a single-element point.
func (g *SineWaveGenerator) Next() []float32 {
	v := g.cfg.Amplitude*math.Sin(2*math.Pi*g.t/g.cfg.Period) + g.cfg.NoiseStdDev*g.rng.NormFloat64()
	g.t += g.cfg.Step
	return []float32{float32(v)}
}

// CleanValue returns the noise-free value Next would center around at
// the generator's current phase, used by callers computing forecast RMSE
// against ground truth.
func (g *SineWaveGenerator) CleanValue() float64 {
	return g.cfg.Amplitude * math.Sin(2*math.Pi*g.t/g.cfg.Period)
}
