package rcforest

import "testing"

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig(5)
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if c.SampleSize != 256 {
		t.Fatalf("expected default sample_size 256, got %d", c.SampleSize)
	}
	if c.OutputAfter != c.SampleSize/4 {
		t.Fatalf("expected output_after = sample_size/4, got %d", c.OutputAfter)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		fn   func(*Config)
	}{
		{"zero dimensions", func(c *Config) { c.Dimensions = 0 }},
		{"zero sample size", func(c *Config) { c.SampleSize = 0 }},
		{"negative time decay", func(c *Config) { c.TimeDecay = -1 }},
		{"cache fraction out of range", func(c *Config) { c.BoundingBoxCacheFraction = 1.5 }},
		{"rotation without shingling", func(c *Config) { c.InternalRotationEnabled = true; c.InternalShinglingEnabled = false }},
		{"parallel without pool size", func(c *Config) { c.ParallelExecutionEnabled = true; c.ThreadPoolSize = 0 }},
	}
	for _, tc := range cases {
		c := NewConfig(3)
		tc.fn(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestConfigEffectiveDimensions(t *testing.T) {
	c := NewConfig(2)
	c.ShingleSize = 4
	c.InternalShinglingEnabled = true
	if got := c.effectiveDimensions(); got != 8 {
		t.Fatalf("expected effective dimensions 8 with internal shingling enabled, got %d", got)
	}
}

func TestConfigEffectiveDimensionsExternalShingling(t *testing.T) {
	c := NewConfig(8)
	c.ShingleSize = 4
	if got := c.effectiveDimensions(); got != 8 {
		t.Fatalf("expected effective dimensions to stay at the already-shingled 8, got %d", got)
	}
}

func TestConfigValidateRejectsIndivisibleShingleSize(t *testing.T) {
	c := NewConfig(5)
	c.ShingleSize = 3
	if err := c.Validate(); err == nil {
		t.Fatalf("expected an error when shingle_size does not divide dimensions without internal shingling")
	}
}
