// Package config provides configuration loading and management for medseg.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"medseg/internal/models"
	"medseg/pkg/kmeans"
	"medseg/pkg/pca"
	"medseg/pkg/regiongrow"
	"medseg/pkg/watershed"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds how many requests a batch runs concurrently
		NumCores int `yaml:"numCores"`

		// DenoiseSigma is the Gaussian low-pass width applied to every input
		// before analysis, 0 disables it
		DenoiseSigma float64 `yaml:"denoiseSigma"`
	} `yaml:"processing"`

	// K-means clustering parameters
	KMeans struct {
		// Clusters is the number of intensity clusters k
		Clusters int `yaml:"clusters"`

		// MaxIterations caps the assignment passes
		MaxIterations int `yaml:"maxIterations"`
	} `yaml:"kmeans"`

	// PCA parameters
	PCA struct {
		// Components is the size of the reduced basis
		Components int `yaml:"components"`
	} `yaml:"pca"`

	// Region growing parameters
	RegionGrowing struct {
		// Tolerance is the admitted intensity difference to the seed
		Tolerance int `yaml:"tolerance"`

		// SeedX and SeedY select the seed pixel, -1 means image center
		SeedX int `yaml:"seedX"`
		SeedY int `yaml:"seedY"`
	} `yaml:"regionGrowing"`

	// Watershed parameters
	Watershed struct {
		// MinMarkerDistance is the distance a local maximum must exceed
		MinMarkerDistance float64 `yaml:"minMarkerDistance"`

		// MarkerSeparation merges markers closer than this many pixels
		MarkerSeparation float64 `yaml:"markerSeparation"`

		// Method is "priority" or "fifo"
		Method string `yaml:"method"`
	} `yaml:"watershed"`

	// Random number generation
	Random struct {
		// Seed is mixed with each request ID to seed that request's generator
		Seed uint64 `yaml:"seed"`
	} `yaml:"random"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// JSON switches from console output to JSON lines
		JSON bool `yaml:"json"`
	} `yaml:"logging"`

	// Output parameters
	Output struct {
		// Dir is where rendered results are written
		Dir string `yaml:"dir"`

		// SaveIntermediaryResults also writes masks and distance maps
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.DenoiseSigma = 0

	cfg.KMeans.Clusters = kmeans.DefaultK
	cfg.KMeans.MaxIterations = kmeans.DefaultMaxIterations

	cfg.PCA.Components = pca.DefaultComponents

	cfg.RegionGrowing.Tolerance = regiongrow.DefaultTolerance
	cfg.RegionGrowing.SeedX = -1
	cfg.RegionGrowing.SeedY = -1

	cfg.Watershed.MinMarkerDistance = watershed.DefaultMinMarkerDistance
	cfg.Watershed.MarkerSeparation = watershed.DefaultMarkerSeparation
	cfg.Watershed.Method = watershed.MethodPriority.String()

	cfg.Random.Seed = 1

	cfg.Logging.Level = "info"
	cfg.Logging.JSON = false

	cfg.Output.Dir = "output"
	cfg.Output.SaveIntermediaryResults = false

	return cfg
}

// Validate checks the configured values before any image is processed
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d: %w", c.Processing.NumCores, models.ErrInvalidInput)
	}
	if c.Processing.DenoiseSigma < 0 {
		return fmt.Errorf("processing.denoiseSigma must not be negative: %w", models.ErrInvalidInput)
	}
	if c.KMeans.Clusters < 1 {
		return fmt.Errorf("kmeans.clusters must be at least 1, got %d: %w", c.KMeans.Clusters, models.ErrInvalidInput)
	}
	if c.KMeans.MaxIterations < 1 {
		return fmt.Errorf("kmeans.maxIterations must be at least 1, got %d: %w", c.KMeans.MaxIterations, models.ErrInvalidInput)
	}
	if c.PCA.Components < 1 {
		return fmt.Errorf("pca.components must be at least 1, got %d: %w", c.PCA.Components, models.ErrInvalidInput)
	}
	if c.RegionGrowing.Tolerance < 0 {
		return fmt.Errorf("regionGrowing.tolerance must not be negative, got %d: %w", c.RegionGrowing.Tolerance, models.ErrInvalidInput)
	}
	if c.Watershed.MinMarkerDistance < 0 {
		return fmt.Errorf("watershed.minMarkerDistance must not be negative: %w", models.ErrInvalidInput)
	}
	if c.Watershed.MarkerSeparation < 0 {
		return fmt.Errorf("watershed.markerSeparation must not be negative: %w", models.ErrInvalidInput)
	}
	if _, err := watershed.ParseMethod(c.Watershed.Method); err != nil {
		return fmt.Errorf("watershed.method: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error: %w", c.Logging.Level, models.ErrInvalidInput)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// KMeansParams builds clustering parameters for a request seed
func (c *Config) KMeansParams(seed uint64) kmeans.Params {
	return kmeans.Params{
		K:             c.KMeans.Clusters,
		MaxIterations: c.KMeans.MaxIterations,
		Seed:          seed,
	}
}

// PCAParams builds reduction parameters
func (c *Config) PCAParams() pca.Params {
	return pca.Params{Components: c.PCA.Components}
}

// RegionGrowParams builds region growing parameters, resolving a negative
// seed coordinate to the image center
func (c *Config) RegionGrowParams(buf models.GrayscaleBuffer) regiongrow.Params {
	seed := regiongrow.CenterSeed(buf)
	if c.RegionGrowing.SeedX >= 0 {
		seed.X = c.RegionGrowing.SeedX
	}
	if c.RegionGrowing.SeedY >= 0 {
		seed.Y = c.RegionGrowing.SeedY
	}
	return regiongrow.Params{Seed: seed, Tolerance: c.RegionGrowing.Tolerance}
}

// WatershedParams builds segmentation parameters. The method has already
// been checked by Validate; an unknown name falls back to priority flooding.
func (c *Config) WatershedParams() watershed.Params {
	method, err := watershed.ParseMethod(c.Watershed.Method)
	if err != nil {
		method = watershed.MethodPriority
	}
	return watershed.Params{
		MinMarkerDistance: c.Watershed.MinMarkerDistance,
		MarkerSeparation:  c.Watershed.MarkerSeparation,
		Method:            method,
	}
}
