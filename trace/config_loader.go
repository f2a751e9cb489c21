package trace

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate required fields
	if config.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if len(config.Drawings) == 0 {
		return nil, fmt.Errorf("at least one drawing must be defined")
	}

	// Validate drawing configs
	for i, dc := range config.Drawings {
		if dc.ID == "" {
			return nil, fmt.Errorf("drawing[%d].id is required", i)
		}
		if dc.Topic == "" {
			return nil, fmt.Errorf("drawing[%d].topic is required for %s", i, dc.ID)
		}
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// BuildTraceOptions converts the config file's tolerance and threshold
// overrides into engine options. Zero-valued settings keep the package
// defaults.
func BuildTraceOptions(config *Config) Options {
	opts := DefaultOptions()

	t := config.Trace
	if t.SnapTolerance > 0 {
		opts.SnapTolerance = t.SnapTolerance
	}
	if t.ConnectionTolerance > 0 {
		opts.ConnectionTolerance = t.ConnectionTolerance
	}
	if t.CloseTolerance > 0 {
		opts.Tracer.CloseTolerance = t.CloseTolerance
	}
	if t.DedupTolerance > 0 {
		opts.Validator.DedupTolerance = t.DedupTolerance
	}
	if t.AreaEpsilon > 0 {
		opts.Validator.AreaEpsilon = t.AreaEpsilon
	}
	if t.BudgetMillis > 0 {
		opts.BudgetLimit = time.Duration(t.BudgetMillis) * time.Millisecond
	}

	c := config.Classifier
	if c.NestingSlack > 0 {
		opts.Classifier.NestingSlack = c.NestingSlack
	}
	if c.InnerPerimeterRatio > 0 {
		opts.Classifier.InnerPerimeterRatio = c.InnerPerimeterRatio
	}
	opts.Classifier.PreferSheetEdges = c.PreferSheetEdges
	if c.EdgeMarginFraction > 0 {
		opts.Classifier.EdgeMarginFraction = c.EdgeMarginFraction
	}

	if config.Offset.Distance > 0 {
		opts.OffsetDistance = config.Offset.Distance
	}
	opts.EstimateOffsetFromWalls = config.Offset.EstimateFromWalls

	return opts
}
