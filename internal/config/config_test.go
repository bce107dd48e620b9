package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Retention.Translog.RetentionSizeBytes != 512*1024*1024 {
		t.Errorf("expected default retention size 512MB, got %d", cfg.Retention.Translog.RetentionSizeBytes)
	}
	if cfg.Retention.Translog.RetentionAgeMillis != 12*60*60*1000 {
		t.Errorf("expected default retention age 12h, got %d", cfg.Retention.Translog.RetentionAgeMillis)
	}
	if cfg.Retention.Translog.RetentionTotalFiles != 100 {
		t.Errorf("expected default total files 100, got %d", cfg.Retention.Translog.RetentionTotalFiles)
	}
	if cfg.Retention.Debug.TrackLockLeaks {
		t.Error("expected leak tracking to be disabled by default")
	}
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr :9090, got %s", cfg.Observability.MetricsAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
shardId: "idx-0"
translog:
  retentionSizeBytes: -1
  retentionTotalFiles: 3
softDeletes:
  retentionOperations: 1024
debug:
  trackLockLeaks: true
observability:
  logLevel: debug
  logFormat: text
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Retention.ShardID != "idx-0" {
		t.Errorf("shardId = %q, want idx-0", cfg.Retention.ShardID)
	}
	if cfg.Retention.Translog.RetentionSizeBytes != -1 {
		t.Errorf("retentionSizeBytes = %d, want -1", cfg.Retention.Translog.RetentionSizeBytes)
	}
	if cfg.Retention.Translog.RetentionAgeMillis != 12*60*60*1000 {
		t.Errorf("unset retentionAgeMillis should keep its default, got %d", cfg.Retention.Translog.RetentionAgeMillis)
	}
	if cfg.Retention.Translog.RetentionTotalFiles != 3 {
		t.Errorf("retentionTotalFiles = %d, want 3", cfg.Retention.Translog.RetentionTotalFiles)
	}
	if cfg.Retention.SoftDeletes.RetentionOperations != 1024 {
		t.Errorf("retentionOperations = %d, want 1024", cfg.Retention.SoftDeletes.RetentionOperations)
	}
	if !cfg.Retention.Debug.TrackLockLeaks {
		t.Error("trackLockLeaks should be true")
	}
	if cfg.Observability.LogFormat != "text" {
		t.Errorf("logFormat = %q, want text", cfg.Observability.LogFormat)
	}
}

func TestLoadFromPathEnvOverride(t *testing.T) {
	path := writeConfig(t, "translog:\n  retentionTotalFiles: 3\n")
	t.Setenv("RETENTION_TRANSLOG_TOTAL_FILES", "7")
	t.Setenv("RETENTION_SHARD_ID", "idx-9")
	t.Setenv("RETENTION_TRACK_LOCK_LEAKS", "true")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Retention.Translog.RetentionTotalFiles != 7 {
		t.Errorf("env should override file, got %d", cfg.Retention.Translog.RetentionTotalFiles)
	}
	if cfg.Retention.ShardID != "idx-9" {
		t.Errorf("shardId = %q, want idx-9", cfg.Retention.ShardID)
	}
	if !cfg.Retention.Debug.TrackLockLeaks {
		t.Error("trackLockLeaks should be set from env")
	}
}

func TestLoadFromPathBadEnv(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("RETENTION_TRANSLOG_SIZE_BYTES", "lots")

	_, err := LoadFromPath(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadFromPathEnvNestedAndNegative(t *testing.T) {
	path := writeConfig(t, "observability:\n  logLevel: info\n")
	t.Setenv("RETENTION_LOG_LEVEL", "debug")
	t.Setenv("RETENTION_METRICS_ADDR", "127.0.0.1:9191")
	t.Setenv("RETENTION_TRANSLOG_AGE_MS", "-1")
	t.Setenv("RETENTION_SOFT_DELETES_OPERATIONS", "")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("logLevel = %q, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Observability.MetricsAddr != "127.0.0.1:9191" {
		t.Errorf("metricsAddr = %q, want 127.0.0.1:9191", cfg.Observability.MetricsAddr)
	}
	if cfg.Retention.Translog.RetentionAgeMillis != -1 {
		t.Errorf("retentionAgeMillis = %d, want -1", cfg.Retention.Translog.RetentionAgeMillis)
	}
	if cfg.Retention.SoftDeletes.RetentionOperations != 0 {
		t.Errorf("empty variable should leave the default, got %d", cfg.Retention.SoftDeletes.RetentionOperations)
	}
}

func TestLoadFromPathUnknownKey(t *testing.T) {
	path := writeConfig(t, "translog:\n  retentionFiles: 3\n")
	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := writeConfig(t, "shardId: from-file\n")
	t.Setenv("RETENTION_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retention.ShardID != "from-file" {
		t.Errorf("shardId = %q, want from-file", cfg.Retention.ShardID)
	}
}

func TestLoadExplicitMissingPathFails(t *testing.T) {
	t.Setenv("RETENTION_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected an error when RETENTION_CONFIG names a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"size below -1", func(c *Config) { c.Retention.Translog.RetentionSizeBytes = -2 }},
		{"age below -1", func(c *Config) { c.Retention.Translog.RetentionAgeMillis = -5 }},
		{"zero total files", func(c *Config) { c.Retention.Translog.RetentionTotalFiles = 0 }},
		{"negative operations", func(c *Config) { c.Retention.SoftDeletes.RetentionOperations = -1 }},
		{"unknown log level", func(c *Config) { c.Observability.LogLevel = "loud" }},
		{"unknown log format", func(c *Config) { c.Observability.LogFormat = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsDisabledBounds(t *testing.T) {
	cfg := Default()
	cfg.Retention.Translog.RetentionSizeBytes = -1
	cfg.Retention.Translog.RetentionAgeMillis = -1
	cfg.Retention.Translog.RetentionTotalFiles = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled bounds should validate: %v", err)
	}
}
