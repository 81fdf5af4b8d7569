// Command rcfdemo drives a Forest with a synthetic stream and prints
// scores, adapted from the teacher's main.go (parseDir/initTestCases/run
// loop over .toml fixtures) — here a single flag-driven run rather than a
// directory of test cases, since CLI parsing is explicitly out of scope
// for the engine itself (spec §1) and this binary is only a demo harness.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"

	rcforest "github.com/Lz-Gustavo/rcforest"
	"github.com/Lz-Gustavo/rcforest/internal/streamgen"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML forest configuration; defaults built in if empty")
		points     = flag.Int("points", 10000, "number of synthetic points to feed the forest")
		seed       = flag.Int64("seed", 123, "random seed for the synthetic generator")
	)
	flag.Parse()

	cfg := rcforest.NewConfig(3)
	cfg.NumberOfTrees = 100
	cfg.WithRandomSeed(*seed)
	if *configPath != "" {
		loaded, err := rcforest.LoadConfigTOML(*configPath)
		if err != nil {
			log.Fatalf("loading config %q: %v", *configPath, err)
		}
		cfg = loaded
	}

	forest, err := rcforest.NewForest(cfg, nil)
	if err != nil {
		log.Fatalf("constructing forest: %v", err)
	}
	defer forest.Close(context.Background())

	outlierMean := make([]float64, cfg.Dimensions)
	outlier := make(rcforest.Point, cfg.Dimensions)
	for i := range outlierMean {
		outlierMean[i] = 5
		outlier[i] = 8
	}

	gen := streamgen.NewGaussianMixtureGenerator(streamgen.GaussianMixtureConfig{
		Dimensions:      cfg.Dimensions,
		BaseMean:        make([]float64, cfg.Dimensions),
		BaseStdDev:      1.0,
		OutlierMean:     outlierMean,
		OutlierStdDev:   1.5,
		OutlierFraction: 0.01,
	}, rand.New(rand.NewSource(*seed)))

	for i := 0; i < *points; i++ {
		p := gen.Next()
		if err := forest.Update(p); err != nil {
			log.Fatalf("update %d: %v", i, err)
		}
	}

	origin := make(rcforest.Point, cfg.Dimensions)
	log.Printf("forest %s: score(origin)=%f score(outlier)=%f entries_seen=%d total_updates=%d",
		forest.ID(), forest.Score(origin), forest.Score(outlier), forest.EntriesSeen(), forest.TotalUpdates())
}
