package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fwojciec/listgrab"
	"gopkg.in/yaml.v3"
)

// JobConfig holds the tunable settings of a harvest. Fields missing from a
// job file keep their defaults.
type JobConfig struct {
	Detector listgrab.DetectorConfig `yaml:"detector"`
	Scroller listgrab.ScrollerConfig `yaml:"scroller"`

	// Interval is the minimum spacing between harvest passes.
	Interval time.Duration `yaml:"interval"`

	// Fields maps extra item fields to CSS selectors inside each item.
	Fields map[string]string `yaml:"fields"`
}

// DefaultJobConfig returns the settings used without a job file.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Detector: listgrab.DefaultDetectorConfig(),
		Scroller: listgrab.DefaultScrollerConfig(),
		Interval: 500 * time.Millisecond,
	}
}

// LoadJobConfig reads the YAML job file at path over the defaults. An empty
// path returns the defaults.
func LoadJobConfig(path string) (*JobConfig, error) {
	cfg := DefaultJobConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "parsing job file %s: %s", path, err)
	}
	if err := cfg.Detector.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Scroller.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval < 0 {
		return nil, listgrab.Errorf(listgrab.EINVALID, "interval must not be negative, got %s", cfg.Interval)
	}
	return cfg, nil
}
