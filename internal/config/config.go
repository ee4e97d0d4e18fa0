package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Source     SourceConfig     `toml:"source"`
	Storage    StorageConfig    `toml:"storage"`
	Bus        BusConfig        `toml:"bus"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Server     ServerConfig     `toml:"server"`
}

type ServiceConfig struct {
	Name    string `toml:"name"`
	RunOnce bool   `toml:"run_once"`
}

// SourceConfig points at the upstream post feed. An empty URL disables
// fetching; the service then serves previously aggregated data only.
type SourceConfig struct {
	URL     string `toml:"url"`
	Timeout string `toml:"timeout"`
}

type StorageConfig struct {
	Type      string `toml:"type"`
	Path      string `toml:"path"`
	Retention string `toml:"retention"`
}

type BusConfig struct {
	QueueSize      int    `toml:"queue_size"`
	PublishTimeout string `toml:"publish_timeout"`
}

type SchedulerConfig struct {
	Workers         int    `toml:"workers"`
	LeaseDuration   string `toml:"lease_duration"`
	SweepInterval   string `toml:"sweep_interval"`
	StarvationBound int    `toml:"starvation_bound"`
	MinInterval     string `toml:"min_interval"`
	MaxInterval     string `toml:"max_interval"`
}

type PipelineConfig struct {
	MaxAttempts    int    `toml:"max_attempts"`
	BaseBackoff    string `toml:"base_backoff"`
	HandlerTimeout string `toml:"handler_timeout"`
}

type AggregatorConfig struct {
	MinIntensitySupport int    `toml:"min_intensity_support"`
	RetentionWindow     string `toml:"retention_window"`
	CacheTTL            string `toml:"cache_ttl"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default returns a fully-defaulted config, used when no file is given.
func Default() *Config {
	config := &Config{}
	if err := validateConfig(config); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return config
}

func validateConfig(config *Config) error {
	if config.Service.Name == "" {
		config.Service.Name = "moodatlas"
	}

	if config.Source.Timeout == "" {
		config.Source.Timeout = "20s"
	}

	if config.Storage.Type == "" {
		config.Storage.Type = "sqlite"
	}
	if config.Storage.Path == "" {
		config.Storage.Path = "./moodatlas.db"
	}
	if config.Storage.Retention == "" {
		config.Storage.Retention = "672h"
	}

	if config.Bus.QueueSize <= 0 {
		config.Bus.QueueSize = 1024
	}
	if config.Bus.PublishTimeout == "" {
		config.Bus.PublishTimeout = "2s"
	}

	if config.Scheduler.Workers <= 0 {
		config.Scheduler.Workers = 4
	}
	if config.Scheduler.LeaseDuration == "" {
		config.Scheduler.LeaseDuration = "90s"
	}
	if config.Scheduler.SweepInterval == "" {
		config.Scheduler.SweepInterval = "30s"
	}
	if config.Scheduler.StarvationBound <= 0 {
		config.Scheduler.StarvationBound = 10
	}
	if config.Scheduler.MinInterval == "" {
		config.Scheduler.MinInterval = "30s"
	}
	if config.Scheduler.MaxInterval == "" {
		config.Scheduler.MaxInterval = "10m"
	}

	if config.Pipeline.MaxAttempts <= 0 {
		config.Pipeline.MaxAttempts = 5
	}
	if config.Pipeline.BaseBackoff == "" {
		config.Pipeline.BaseBackoff = "500ms"
	}
	if config.Pipeline.HandlerTimeout == "" {
		config.Pipeline.HandlerTimeout = "30s"
	}

	if config.Aggregator.MinIntensitySupport <= 0 {
		config.Aggregator.MinIntensitySupport = 2
	}
	if config.Aggregator.RetentionWindow == "" {
		config.Aggregator.RetentionWindow = config.Storage.Retention
	}
	if config.Aggregator.CacheTTL == "" {
		config.Aggregator.CacheTTL = "2m"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}

	for name, value := range map[string]string{
		"source.timeout":          config.Source.Timeout,
		"storage.retention":       config.Storage.Retention,
		"bus.publish_timeout":     config.Bus.PublishTimeout,
		"scheduler.lease_duration": config.Scheduler.LeaseDuration,
		"scheduler.sweep_interval": config.Scheduler.SweepInterval,
		"scheduler.min_interval":   config.Scheduler.MinInterval,
		"scheduler.max_interval":   config.Scheduler.MaxInterval,
		"pipeline.base_backoff":    config.Pipeline.BaseBackoff,
		"pipeline.handler_timeout": config.Pipeline.HandlerTimeout,
		"aggregator.retention_window": config.Aggregator.RetentionWindow,
		"aggregator.cache_ttl":        config.Aggregator.CacheTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// MustDuration parses a duration field already checked by validateConfig.
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", value, err))
	}
	return d
}
