package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/eqlayer/internal/fsutil"
)

// DefaultConfigPath is the path to the canonical estimator defaults file.
const DefaultConfigPath = "config/eql.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults used when a field is absent from the JSON file.
const (
	DefaultRelativeDepth = 500.0
	DefaultDamping       = 0.0
	DefaultKernel        = "harmonic"
	DefaultLayout        = "relative-depth"
	DefaultMaxCondition  = 1e16
)

// EstimatorConfig is the file form of the equivalent-layer settings.
// Fields omitted from the JSON keep their defaults through the Get* methods,
// so partial files are safe. Unknown keys are rejected.
type EstimatorConfig struct {
	RelativeDepth *float64 `json:"relative_depth,omitempty"`
	Damping       *float64 `json:"damping,omitempty"`
	Kernel        *string  `json:"kernel,omitempty"`
	Layout        *string  `json:"layout,omitempty"`
	BlockSize     *float64 `json:"block_size,omitempty"` // only for the block-averaged layout
	MaxCondition  *float64 `json:"max_condition,omitempty"`
	Workers       *int     `json:"workers,omitempty"` // 0 means GOMAXPROCS
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyEstimatorConfig returns an EstimatorConfig with all fields nil.
func EmptyEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{}
}

// DefaultEstimatorConfig returns an EstimatorConfig with every field set.
func DefaultEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{
		RelativeDepth: ptrFloat64(DefaultRelativeDepth),
		Damping:       ptrFloat64(DefaultDamping),
		Kernel:        ptrString(DefaultKernel),
		Layout:        ptrString(DefaultLayout),
		BlockSize:     ptrFloat64(0),
		MaxCondition:  ptrFloat64(DefaultMaxCondition),
		Workers:       ptrInt(0),
	}
}

// LoadEstimatorConfig loads an EstimatorConfig from a JSON file on disk.
func LoadEstimatorConfig(path string) (*EstimatorConfig, error) {
	return ReadEstimatorConfig(fsutil.OSFileSystem{}, path)
}

// ReadEstimatorConfig loads an EstimatorConfig from a JSON file on fsys.
// The file must have a .json extension and be under 1MB.
func ReadEstimatorConfig(fsys fsutil.FileSystem, path string) (*EstimatorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", len(data), maxFileSize)
	}
	return ParseEstimatorConfig(data)
}

// ParseEstimatorConfig decodes and validates JSON config bytes.
func ParseEstimatorConfig(data []byte) (*EstimatorConfig, error) {
	cfg := EmptyEstimatorConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config JSON: trailing data after object")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *EstimatorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadEstimatorConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that can be checked without the estimator.
func (c *EstimatorConfig) Validate() error {
	if c.RelativeDepth != nil && !(*c.RelativeDepth > 0) {
		return fmt.Errorf("relative_depth must be positive, got %g", *c.RelativeDepth)
	}
	if c.Damping != nil && !(*c.Damping >= 0) {
		return fmt.Errorf("damping must be non-negative, got %g", *c.Damping)
	}
	if c.Kernel != nil {
		switch *c.Kernel {
		case "harmonic", "gravity", "dipole":
		default:
			return fmt.Errorf("kernel must be one of harmonic, gravity, dipole, got %q", *c.Kernel)
		}
	}
	if c.Layout != nil {
		switch *c.Layout {
		case "relative-depth", "constant-depth":
		case "block-averaged":
			if c.BlockSize == nil || !(*c.BlockSize > 0) {
				return fmt.Errorf("block-averaged layout needs a positive block_size")
			}
		default:
			return fmt.Errorf("layout must be one of relative-depth, constant-depth, block-averaged, got %q", *c.Layout)
		}
	}
	if c.BlockSize != nil && *c.BlockSize < 0 {
		return fmt.Errorf("block_size must be non-negative, got %g", *c.BlockSize)
	}
	if c.MaxCondition != nil && !(*c.MaxCondition > 1) {
		return fmt.Errorf("max_condition must be greater than 1, got %g", *c.MaxCondition)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetRelativeDepth returns the relative_depth value or the default.
func (c *EstimatorConfig) GetRelativeDepth() float64 {
	if c.RelativeDepth == nil {
		return DefaultRelativeDepth
	}
	return *c.RelativeDepth
}

// GetDamping returns the damping value or the default.
func (c *EstimatorConfig) GetDamping() float64 {
	if c.Damping == nil {
		return DefaultDamping
	}
	return *c.Damping
}

// GetKernel returns the kernel name or the default.
func (c *EstimatorConfig) GetKernel() string {
	if c.Kernel == nil {
		return DefaultKernel
	}
	return *c.Kernel
}

// GetLayout returns the layout name or the default.
func (c *EstimatorConfig) GetLayout() string {
	if c.Layout == nil {
		return DefaultLayout
	}
	return *c.Layout
}

// GetBlockSize returns the block_size value or 0.
func (c *EstimatorConfig) GetBlockSize() float64 {
	if c.BlockSize == nil {
		return 0
	}
	return *c.BlockSize
}

// GetMaxCondition returns the max_condition value or the default.
func (c *EstimatorConfig) GetMaxCondition() float64 {
	if c.MaxCondition == nil {
		return DefaultMaxCondition
	}
	return *c.MaxCondition
}

// GetWorkers returns the workers value or 0.
func (c *EstimatorConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}
