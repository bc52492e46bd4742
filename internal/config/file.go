package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverrides is the optional YAML overlay for the confidence tuning
// knobs. Pointer fields distinguish "absent" from "explicit zero".
type fileOverrides struct {
	DefaultItemConfidence *float64 `yaml:"default_item_confidence"`
	ReviewThreshold       *float64 `yaml:"review_threshold"`
	ItemReviewThreshold   *float64 `yaml:"item_review_threshold"`
	SimilarityThreshold   *float64 `yaml:"similarity_threshold"`
	CommitThreshold       *float64 `yaml:"commit_threshold"`
}

// ApplyFile overlays threshold values from the YAML file named by
// PIPELINE_CONFIG_FILE onto the environment-derived config. A missing
// setting keeps the env value; an empty path is a no-op.
func (c *Config) ApplyFile() error {
	if c.PipelineConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.PipelineConfigFile)
	if err != nil {
		return fmt.Errorf("read pipeline config file: %w", err)
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse pipeline config file: %w", err)
	}

	if overrides.DefaultItemConfidence != nil {
		c.DefaultItemConfidence = *overrides.DefaultItemConfidence
	}
	if overrides.ReviewThreshold != nil {
		c.ReviewThreshold = *overrides.ReviewThreshold
	}
	if overrides.ItemReviewThreshold != nil {
		c.ItemReviewThreshold = *overrides.ItemReviewThreshold
	}
	if overrides.SimilarityThreshold != nil {
		c.SimilarityThreshold = *overrides.SimilarityThreshold
	}
	if overrides.CommitThreshold != nil {
		c.CommitThreshold = *overrides.CommitThreshold
	}
	return nil
}
