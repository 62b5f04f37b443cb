// Package config loads the pipeline configuration from YAML.
//
// A Config is built once, validated, and then handed to each stage by
// value. Stages never mutate it.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/salescv/dataset"
	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Task selects the metric and the learner variants.
const (
	TaskRegression     = "regression"
	TaskClassification = "classification"
)

// Search strategies.
const (
	StrategyGrid   = "grid"
	StrategyRandom = "random"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreS3     = "s3"
)

// Config is the whole pipeline configuration.
type Config struct {
	Run      RunConfig      `yaml:"run"`
	Data     DataConfig     `yaml:"data"`
	Schema   dataset.Schema `yaml:"schema"`
	Features FeatureConfig  `yaml:"features"`
	CrossVal CrossValConfig `yaml:"crossval"`
	Search   SearchConfig   `yaml:"search"`
	Store    StoreConfig    `yaml:"store"`
	Serve    ServeConfig    `yaml:"serve"`
	Log      LogConfig      `yaml:"log"`
}

// RunConfig holds run-wide settings.
type RunConfig struct {
	Seed uint64 `yaml:"seed"`
}

// DataConfig locates the dataset and names its special columns.
type DataConfig struct {
	Source    string `yaml:"source"`
	IngestDir string `yaml:"ingest_dir"`
	Target    string `yaml:"target"`
	// Group is optional; without it every row is its own group.
	Group         string `yaml:"group"`
	Task          string `yaml:"task"`
	ReferenceYear int    `yaml:"reference_year"`
}

// FeatureConfig controls the feature transformer.
type FeatureConfig struct {
	// PCAComponents > 0 appends a PCA projection to the transformer.
	PCAComponents int `yaml:"pca_components"`
}

// CrossValConfig controls fold construction and fold parallelism.
type CrossValConfig struct {
	K       int `yaml:"k"`
	Workers int `yaml:"workers"`
}

// SearchConfig describes the hyperparameter search run inside each fold.
type SearchConfig struct {
	Strategy     string        `yaml:"strategy"`
	NIter        int           `yaml:"n_iter"`
	MaxTrials    int           `yaml:"max_trials"`
	TrialTimeout time.Duration `yaml:"trial_timeout"`
	// Families maps a model family name to its search space.
	Families map[string]map[string][]interface{} `yaml:"families"`
}

// StoreConfig selects the artifact store backend.
type StoreConfig struct {
	Kind     string `yaml:"kind"`
	Root     string `yaml:"root"`
	Compress bool   `yaml:"compress"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
}

// ServeConfig configures the prediction server.
type ServeConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Run: RunConfig{Seed: 42},
		Data: DataConfig{
			Source:        "data/raw/sales.csv",
			IngestDir:     "artifacts/data_ingestion",
			Target:        "Item_Outlet_Sales",
			Group:         "Outlet_Identifier",
			Task:          TaskRegression,
			ReferenceYear: 2024,
		},
		Schema:   dataset.DefaultSchema(),
		CrossVal: CrossValConfig{K: 5, Workers: 1},
		Search: SearchConfig{
			Strategy: StrategyRandom,
			NIter:    10,
			Families: map[string]map[string][]interface{}{
				"random_forest": {
					"n_estimators": {50, 100},
					"max_depth":    {4, 8},
				},
			},
		},
		Store: StoreConfig{Kind: StoreFile, Root: "artifacts"},
		Serve: ServeConfig{Addr: ":5000", MaxUploadBytes: 10 << 20},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads and validates a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewIOError("config.Load", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected. Schema and search families replace the defaults wholesale
// when present.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Schema = nil
	cfg.Search.Families = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.NewConfigurationErrorf("config.Parse", "invalid yaml: %v", err)
	}

	def := Default()
	if cfg.Schema == nil {
		cfg.Schema = def.Schema
	}
	if cfg.Search.Families == nil {
		cfg.Search.Families = def.Search.Families
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	const op = "config.Validate"
	switch {
	case c.CrossVal.K < 2:
		return errors.NewConfigurationErrorf(op, "crossval.k must be >= 2, got %d", c.CrossVal.K)
	case c.CrossVal.Workers < 1:
		return errors.NewConfigurationErrorf(op, "crossval.workers must be >= 1, got %d", c.CrossVal.Workers)
	case c.Data.Task != TaskRegression && c.Data.Task != TaskClassification:
		return errors.NewConfigurationErrorf(op, "unknown data.task %q", c.Data.Task)
	case c.Data.Target == "":
		return errors.NewConfigurationError(op, "data.target is required")
	case c.Data.ReferenceYear <= 0:
		return errors.NewConfigurationErrorf(op, "data.reference_year must be positive, got %d", c.Data.ReferenceYear)
	case c.Features.PCAComponents < 0:
		return errors.NewConfigurationErrorf(op, "features.pca_components must be >= 0, got %d", c.Features.PCAComponents)
	case len(c.Search.Families) == 0:
		return errors.NewConfigurationError(op, "search.families must name at least one model family")
	case c.Search.MaxTrials < 0:
		return errors.NewConfigurationErrorf(op, "search.max_trials must be >= 0, got %d", c.Search.MaxTrials)
	case c.Search.TrialTimeout < 0:
		return errors.NewConfigurationErrorf(op, "search.trial_timeout must be >= 0, got %s", c.Search.TrialTimeout)
	}

	switch c.Search.Strategy {
	case StrategyGrid:
	case StrategyRandom:
		if c.Search.NIter < 1 {
			return errors.NewConfigurationErrorf(op, "search.n_iter must be >= 1, got %d", c.Search.NIter)
		}
	default:
		return errors.NewConfigurationErrorf(op, "unknown search.strategy %q", c.Search.Strategy)
	}

	switch c.Store.Kind {
	case StoreFile:
		if c.Store.Root == "" {
			return errors.NewConfigurationError(op, "store.root is required for a file store")
		}
	case StoreMemory:
	case StoreS3:
		if c.Store.Bucket == "" {
			return errors.NewConfigurationError(op, "store.bucket is required for an s3 store")
		}
	default:
		return errors.NewConfigurationErrorf(op, "unknown store.kind %q", c.Store.Kind)
	}

	if _, ok := c.Schema.Lookup(c.Data.Target); !ok {
		return errors.NewConfigurationErrorf(op, "target %q is not declared in the schema", c.Data.Target)
	}
	if c.Data.Group != "" {
		if _, ok := c.Schema.Lookup(c.Data.Group); !ok {
			return errors.NewConfigurationErrorf(op, "group %q is not declared in the schema", c.Data.Group)
		}
	}
	return nil
}
