package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig configures the server logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the expectd server configuration.
type Config struct {
	// Listen is the data-plane address, e.g. ":1080".
	Listen string `yaml:"listen"`

	// ControlPathPrefix is the URL prefix of the control-plane API.
	ControlPathPrefix string `yaml:"controlPathPrefix"`

	// MaxExpectations caps the stored expectation count.
	MaxExpectations int `yaml:"maxExpectations"`

	// MaxRecordedRequests caps the recorded request history.
	MaxRecordedRequests int `yaml:"maxRecordedRequests"`

	// SweepInterval is how often expired expectations are collected.
	SweepInterval time.Duration `yaml:"sweepInterval"`

	// PatternCacheSize bounds the compiled regex and schema caches.
	PatternCacheSize int `yaml:"patternCacheSize"`

	// Initializers are expectation files loaded at startup.
	Initializers []string `yaml:"initializers"`

	Log LogConfig `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:              ":1080",
		ControlPathPrefix:   "/mockserver",
		MaxExpectations:     5000,
		MaxRecordedRequests: 1000,
		SweepInterval:       10 * time.Second,
		Log:                 LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML configuration file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides configuration fields from EXPECTD_* environment
// variables. File values lose to the environment; flags are applied later by
// the CLI and win over both.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("EXPECTD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("EXPECTD_CONTROL_PATH_PREFIX"); v != "" {
		c.ControlPathPrefix = v
	}
	if v := os.Getenv("EXPECTD_MAX_EXPECTATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXPECTD_MAX_EXPECTATIONS: %w", err)
		}
		c.MaxExpectations = n
	}
	if v := os.Getenv("EXPECTD_MAX_RECORDED_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXPECTD_MAX_RECORDED_REQUESTS: %w", err)
		}
		c.MaxRecordedRequests = n
	}
	if v := os.Getenv("EXPECTD_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EXPECTD_SWEEP_INTERVAL: %w", err)
		}
		c.SweepInterval = d
	}
	if v := os.Getenv("EXPECTD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EXPECTD_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.ControlPathPrefix == "" {
		c.ControlPathPrefix = def.ControlPathPrefix
	}
	if c.MaxExpectations <= 0 {
		c.MaxExpectations = def.MaxExpectations
	}
	if c.MaxRecordedRequests <= 0 {
		c.MaxRecordedRequests = def.MaxRecordedRequests
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.ControlPathPrefix == "" || c.ControlPathPrefix[0] != '/' {
		return fmt.Errorf("controlPathPrefix must start with '/', got %q", c.ControlPathPrefix)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	for _, path := range c.Initializers {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("initializer %s: %w", path, err)
		}
	}
	return nil
}
