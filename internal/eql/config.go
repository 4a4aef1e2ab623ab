package eql

import (
	"fmt"
	"math"

	"github.com/banshee-data/eqlayer/internal/config"
)

// Config holds the estimator parameters. It is a builder: start from
// DefaultConfig or ConfigFromFile, adjust with the With* methods, then
// hand it to NewEstimator, which validates it.
type Config struct {
	RelativeDepth float64 // depth of sources below the layout reference, > 0 (default: 500)
	Damping       float64 // Tikhonov damping λ, >= 0 (default: 0)
	Kernel        string  // harmonic, gravity or dipole (default: harmonic)
	Layout        string  // relative-depth, constant-depth or block-averaged
	BlockSize     float64 // block edge for the block-averaged layout

	// Advanced tuning (typically left at defaults)
	MaxCondition float64 // largest accepted condition estimate; 0 means mat.ConditionTolerance
	Workers      int     // kernel matrix goroutines; 0 means GOMAXPROCS
}

// DefaultConfig returns the built-in defaults, matching config/eql.defaults.json.
func DefaultConfig() *Config {
	return ConfigFromFile(config.EmptyEstimatorConfig())
}

// ConfigFromFile builds a Config from a loaded EstimatorConfig.
func ConfigFromFile(fc *config.EstimatorConfig) *Config {
	return &Config{
		RelativeDepth: fc.GetRelativeDepth(),
		Damping:       fc.GetDamping(),
		Kernel:        fc.GetKernel(),
		Layout:        fc.GetLayout(),
		BlockSize:     fc.GetBlockSize(),
		MaxCondition:  fc.GetMaxCondition(),
		Workers:       fc.GetWorkers(),
	}
}

// Validate checks the configuration. Every failure wraps ErrInvalidParameter.
func (c *Config) Validate() error {
	if err := checkRelativeDepth(c.RelativeDepth); err != nil {
		return err
	}
	if c.Damping < 0 || math.IsNaN(c.Damping) || math.IsInf(c.Damping, 0) {
		return fmt.Errorf("%w: damping must be finite and non-negative, got %g", ErrInvalidParameter, c.Damping)
	}
	if _, err := KernelByName(c.Kernel); err != nil {
		return err
	}
	if _, err := LayoutByName(c.Layout, c.BlockSize); err != nil {
		return err
	}
	if c.MaxCondition < 0 || math.IsNaN(c.MaxCondition) {
		return fmt.Errorf("%w: max condition must be non-negative, got %g", ErrInvalidParameter, c.MaxCondition)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidParameter, c.Workers)
	}
	return nil
}

// WithRelativeDepth sets the source depth below the layout reference.
func (c *Config) WithRelativeDepth(d float64) *Config {
	c.RelativeDepth = d
	return c
}

// WithDamping sets the Tikhonov damping.
func (c *Config) WithDamping(d float64) *Config {
	c.Damping = d
	return c
}

// WithKernel sets the kernel by name.
func (c *Config) WithKernel(name string) *Config {
	c.Kernel = name
	return c
}

// WithLayout sets the layout policy by name. blockSize is ignored by the
// per-observation policies.
func (c *Config) WithLayout(name string, blockSize float64) *Config {
	c.Layout = name
	c.BlockSize = blockSize
	return c
}

// WithMaxCondition sets the accepted condition limit.
func (c *Config) WithMaxCondition(limit float64) *Config {
	c.MaxCondition = limit
	return c
}

// WithWorkers sets the kernel matrix parallelism.
func (c *Config) WithWorkers(n int) *Config {
	c.Workers = n
	return c
}
