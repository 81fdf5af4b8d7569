package rcforest

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config carries every construction parameter of §6. Unlike the teacher's
// DefaultLogConfig, which returns a ready struct outright, a Config is
// validated before use (LoadConfigTOML validates before returning, and
// NewForest validates the Config it is given; NewConfig itself does not),
// since a malformed forest configuration is an InvalidConfiguration error
// rather than a silently-wrong default.
type Config struct {
	Dimensions int `toml:"dimensions"`

	SampleSize    int     `toml:"sample_size"`
	NumberOfTrees int     `toml:"number_of_trees"`
	OutputAfter   int     `toml:"output_after"`
	TimeDecay     float64 `toml:"time_decay"`

	StoreSequenceIndexesEnabled bool `toml:"store_sequence_indexes_enabled"`
	CenterOfMassEnabled         bool `toml:"center_of_mass_enabled"`

	ParallelExecutionEnabled bool `toml:"parallel_execution_enabled"`
	ThreadPoolSize           int  `toml:"thread_pool_size"`

	BoundingBoxCacheFraction float64 `toml:"bounding_box_cache_fraction"`

	ShingleSize              int  `toml:"shingle_size"`
	InternalShinglingEnabled bool `toml:"internal_shingling_enabled"`
	InternalRotationEnabled  bool `toml:"internal_rotation_enabled"`

	InitialAcceptFraction float64 `toml:"initial_accept_fraction"`

	RandomSeed    int64 `toml:"random_seed"`
	RandomSeedSet bool  `toml:"-"`
}

// NewConfig returns a Config populated with §6's defaults, parameterized
// only by dimensions (which has no sensible default).
func NewConfig(dimensions int) *Config {
	sampleSize := 256
	return &Config{
		Dimensions:               dimensions,
		SampleSize:               sampleSize,
		NumberOfTrees:            50,
		OutputAfter:              sampleSize / 4,
		TimeDecay:                1.0 / (10.0 * float64(sampleSize)),
		BoundingBoxCacheFraction: 1.0,
		ShingleSize:              1,
		InitialAcceptFraction:    1.0,
	}
}

// WithRandomSeed fixes the forest's randomness for reproducibility (§6,
// "random_seed: optional"). Returns c for chaining.
func (c *Config) WithRandomSeed(seed int64) *Config {
	c.RandomSeed = seed
	c.RandomSeedSet = true
	return c
}

// LoadConfigTOML reads a Config from a TOML file, applying NewConfig's
// defaults first so the file need only specify overrides. Grounded in
// the teacher's sim/exp.go, which unmarshals its own TestCase TOML files
// the same way with github.com/BurntSushi/toml.
func LoadConfigTOML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(InvalidConfiguration, err, "reading config file %q", path)
	}
	c := NewConfig(0)
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, wrapErr(InvalidConfiguration, err, "decoding config file %q", path)
	}
	if c.RandomSeed != 0 {
		c.RandomSeedSet = true
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every constraint §6 documents, returning the first
// violation found as an InvalidConfiguration error.
func (c *Config) Validate() error {
	switch {
	case c.Dimensions <= 0:
		return newErr(InvalidConfiguration, "dimensions must be > 0, got %d", c.Dimensions)
	case c.SampleSize <= 0:
		return newErr(InvalidConfiguration, "sample_size must be > 0, got %d", c.SampleSize)
	case c.NumberOfTrees <= 0:
		return newErr(InvalidConfiguration, "number_of_trees must be > 0, got %d", c.NumberOfTrees)
	case c.OutputAfter < 0 || c.OutputAfter > c.SampleSize:
		return newErr(InvalidConfiguration, "output_after must be in [0, sample_size], got %d", c.OutputAfter)
	case c.TimeDecay < 0:
		return newErr(InvalidConfiguration, "time_decay must be >= 0, got %f", c.TimeDecay)
	case c.BoundingBoxCacheFraction < 0 || c.BoundingBoxCacheFraction > 1:
		return newErr(InvalidConfiguration, "bounding_box_cache_fraction must be in [0,1], got %f", c.BoundingBoxCacheFraction)
	case c.ShingleSize <= 0:
		return newErr(InvalidConfiguration, "shingle_size must be > 0, got %d", c.ShingleSize)
	case !c.InternalShinglingEnabled && c.Dimensions%c.ShingleSize != 0:
		return newErr(InvalidConfiguration,
			"shingle_size (%d) must divide dimensions (%d) unless internal shingling is enabled", c.ShingleSize, c.Dimensions)
	case c.InternalRotationEnabled && !c.InternalShinglingEnabled:
		return newErr(InvalidConfiguration, "internal_rotation_enabled requires internal_shingling_enabled")
	case c.InitialAcceptFraction <= 0 || c.InitialAcceptFraction > 1:
		return newErr(InvalidConfiguration, "initial_accept_fraction must be in (0,1], got %f", c.InitialAcceptFraction)
	case c.ParallelExecutionEnabled && c.ThreadPoolSize <= 0:
		return newErr(InvalidConfiguration, "thread_pool_size must be > 0 when parallel_execution_enabled")
	}
	return nil
}

// effectiveDimensions returns the dimensionality each tree actually
// stores points in. With internal shingling enabled, Dimensions is the
// raw per-block size and the stored point is shingle_size blocks wide
// (§4.1). Otherwise the caller already feeds fully-shingled vectors of
// length Dimensions — shingle_size only has to divide it evenly, per §6 —
// so the store's dimension is just Dimensions.
func (c *Config) effectiveDimensions() int {
	if !c.InternalShinglingEnabled {
		return c.Dimensions
	}
	return c.Dimensions * c.ShingleSize
}
