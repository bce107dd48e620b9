// Package config provides configuration loading and validation for shard
// retention. Supports YAML files with environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/dray-io/retention/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read by Load when RETENTION_CONFIG is unset.
const DefaultPath = "/etc/retention/config.yaml"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for retentionctl.
type Config struct {
	Retention     Retention           `yaml:",inline"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Retention is the per-shard retention configuration. It is also what
// shard.Retention.ApplySettings accepts for dynamic updates.
type Retention struct {
	ShardID     string            `yaml:"shardId" env:"RETENTION_SHARD_ID"`
	Translog    TranslogConfig    `yaml:"translog"`
	SoftDeletes SoftDeletesConfig `yaml:"softDeletes"`
	Debug       DebugConfig       `yaml:"debug"`
}

type TranslogConfig struct {
	RetentionSizeBytes  int64 `yaml:"retentionSizeBytes" env:"RETENTION_TRANSLOG_SIZE_BYTES"`
	RetentionAgeMillis  int64 `yaml:"retentionAgeMillis" env:"RETENTION_TRANSLOG_AGE_MS"`
	RetentionTotalFiles int   `yaml:"retentionTotalFiles" env:"RETENTION_TRANSLOG_TOTAL_FILES"`
}

type SoftDeletesConfig struct {
	RetentionOperations int64 `yaml:"retentionOperations" env:"RETENTION_SOFT_DELETES_OPERATIONS"`
}

type DebugConfig struct {
	TrackLockLeaks bool `yaml:"trackLockLeaks" env:"RETENTION_TRACK_LOCK_LEAKS"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"RETENTION_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"RETENTION_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"RETENTION_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Retention: DefaultRetention(),
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// DefaultRetention returns the retention settings of a fresh shard.
func DefaultRetention() Retention {
	return Retention{
		ShardID: "0",
		Translog: TranslogConfig{
			RetentionSizeBytes:  512 * 1024 * 1024, // 512MB
			RetentionAgeMillis:  12 * 60 * 60 * 1000,
			RetentionTotalFiles: 100,
		},
		SoftDeletes: SoftDeletesConfig{
			RetentionOperations: 0,
		},
	}
}

// Load reads the file named by RETENTION_CONFIG, or DefaultPath. A missing
// default file is not an error: defaults plus environment are used.
func Load() (*Config, error) {
	path, explicit := os.LookupEnv("RETENTION_CONFIG")
	if !explicit {
		path = DefaultPath
	}
	cfg, err := LoadFromPathNoValidate(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg = Default()
			if err := applyEnv(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFromPath reads and validates the YAML file at path.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := LoadFromPathNoValidate(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPathNoValidate reads the YAML file at path over the defaults and
// applies environment overrides without validating the result.
func LoadFromPathNoValidate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the policies cannot accept.
func (c *Config) Validate() error {
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	if _, ok := logging.LookupLevel(c.Observability.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Observability.LogLevel)
	}
	if _, ok := logging.LookupFormat(c.Observability.LogFormat); !ok {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Observability.LogFormat)
	}
	return nil
}

// Validate checks the retention settings alone.
func (r Retention) Validate() error {
	switch {
	case r.Translog.RetentionSizeBytes < -1:
		return fmt.Errorf("%w: translog.retentionSizeBytes must be >= -1, got %d", ErrInvalidConfig, r.Translog.RetentionSizeBytes)
	case r.Translog.RetentionAgeMillis < -1:
		return fmt.Errorf("%w: translog.retentionAgeMillis must be >= -1, got %d", ErrInvalidConfig, r.Translog.RetentionAgeMillis)
	case r.Translog.RetentionTotalFiles < 1:
		return fmt.Errorf("%w: translog.retentionTotalFiles must be >= 1, got %d", ErrInvalidConfig, r.Translog.RetentionTotalFiles)
	case r.SoftDeletes.RetentionOperations < 0:
		return fmt.Errorf("%w: softDeletes.retentionOperations must be >= 0, got %d", ErrInvalidConfig, r.SoftDeletes.RetentionOperations)
	}
	return nil
}

// applyEnv overwrites every field carrying an env tag whose variable is set
// to a non-empty value.
func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	return nil
}
