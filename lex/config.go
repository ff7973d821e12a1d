package lex

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the process-level configuration, usually loaded from
// a YAML file. Market economics live in MarketConfig instead.
type EngineConfig struct {
	MaxMarkets int           `yaml:"max_markets"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Log        LogConfig     `yaml:"log"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxMarkets: DefaultMaxMarkets,
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "lex",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadEngineConfig reads a YAML file over the defaults.
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("read engine config: %w", err)
	}
	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func (c EngineConfig) Validate() error {
	if c.MaxMarkets <= 0 {
		return fmt.Errorf("max_markets must be positive: %w", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics namespace required when metrics are enabled: %w", ErrInvalidConfig)
	}
	return nil
}
