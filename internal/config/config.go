// Package config provides configuration loading and validation for
// treekeeper. Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/treekeeper/treekeeper/coord"
)

// Backend names.
const (
	BackendZooKeeper = "zookeeper"
	BackendOxia      = "oxia"
	BackendMemory    = "memory"
)

// ValidBackends lists the supported coordination backends.
var ValidBackends = []string{BackendZooKeeper, BackendOxia, BackendMemory}

// Config holds all configuration for a treekeeper client process.
type Config struct {
	Coordination  CoordinationConfig  `yaml:"coordination"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type CoordinationConfig struct {
	Backend        string        `yaml:"backend" env:"TREEKEEPER_BACKEND"`
	Servers        []string      `yaml:"servers" env:"TREEKEEPER_SERVERS"`
	Namespace      string        `yaml:"namespace" env:"TREEKEEPER_NAMESPACE"`
	SessionTimeout time.Duration `yaml:"sessionTimeout" env:"TREEKEEPER_SESSION_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"TREEKEEPER_REQUEST_TIMEOUT"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `yaml:"baseDelay" env:"TREEKEEPER_RETRY_BASE_DELAY"`
	MaxRetries int           `yaml:"maxRetries" env:"TREEKEEPER_RETRY_MAX_RETRIES"`
}

// RetryPolicy converts the retry section. Zero fields fall back to the
// coord defaults.
func (c CoordinationConfig) RetryPolicy() coord.RetryPolicy {
	return coord.RetryPolicy{BaseDelay: c.Retry.BaseDelay, MaxRetries: c.Retry.MaxRetries}.WithDefaults()
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"TREEKEEPER_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"TREEKEEPER_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"TREEKEEPER_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Coordination: CoordinationConfig{
			Backend:        BackendZooKeeper,
			Servers:        []string{"localhost:2181"},
			SessionTimeout: 60 * time.Second,
			RequestTimeout: 30 * time.Second,
			Retry: RetryConfig{
				BaseDelay:  time.Second,
				MaxRetries: 10,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load returns the defaults with environment overrides applied.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults and then applies
// environment overrides. A missing file is an error.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	co := &c.Coordination
	if v := os.Getenv("TREEKEEPER_BACKEND"); v != "" {
		co.Backend = v
	}
	if v := os.Getenv("TREEKEEPER_SERVERS"); v != "" {
		co.Servers = splitList(v)
	}
	if v := os.Getenv("TREEKEEPER_NAMESPACE"); v != "" {
		co.Namespace = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"TREEKEEPER_SESSION_TIMEOUT", &co.SessionTimeout},
		{"TREEKEEPER_REQUEST_TIMEOUT", &co.RequestTimeout},
		{"TREEKEEPER_RETRY_BASE_DELAY", &co.Retry.BaseDelay},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.env, err)
		}
		*d.dst = parsed
	}
	if v := os.Getenv("TREEKEEPER_RETRY_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TREEKEEPER_RETRY_MAX_RETRIES: %w", err)
		}
		co.Retry.MaxRetries = n
	}

	ob := &c.Observability
	if v := os.Getenv("TREEKEEPER_METRICS_ADDR"); v != "" {
		ob.MetricsAddr = v
	}
	if v := os.Getenv("TREEKEEPER_LOG_LEVEL"); v != "" {
		ob.LogLevel = v
	}
	if v := os.Getenv("TREEKEEPER_LOG_FORMAT"); v != "" {
		ob.LogFormat = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for values no backend can use.
func (c *Config) Validate() error {
	var errs []error
	co := c.Coordination

	valid := false
	for _, b := range ValidBackends {
		if co.Backend == b {
			valid = true
			break
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("invalid backend %q (valid: %v)", co.Backend, ValidBackends))
	}
	if co.Backend != BackendMemory && len(co.Servers) == 0 {
		errs = append(errs, fmt.Errorf("backend %s needs at least one server", co.Backend))
	}
	if co.Backend == BackendOxia && len(co.Servers) > 1 {
		errs = append(errs, errors.New("backend oxia takes a single service address"))
	}
	if co.SessionTimeout < 0 || co.RequestTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if co.Retry.BaseDelay < 0 || co.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry baseDelay and maxRetries must not be negative"))
	}
	switch c.Observability.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Observability.LogLevel))
	}
	switch c.Observability.LogFormat {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Observability.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
