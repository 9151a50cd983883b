package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// WALConfig controls write-ahead log segmentation and durability.
type WALConfig struct {
	SegmentBytes    datasize.ByteSize `yaml:"segment_bytes"`
	FlushIntervalMS int64             `yaml:"flush_interval_ms"`
	SyncMode        string            `yaml:"sync_mode"` // "data" or "metadata"
}

// WatchConfig bounds per-subscriber change-feed buffering.
type WatchConfig struct {
	BufferEvents int               `yaml:"buffer_events"`
	BufferBytes  datasize.ByteSize `yaml:"buffer_bytes"`
}

// IdempotencyConfig controls idempotency cache entry lifetime.
type IdempotencyConfig struct {
	RetentionSeconds int64 `yaml:"retention_seconds"`
}

// LeaseConfig bounds lease TTL requests.
type LeaseConfig struct {
	DefaultTTLSeconds int64 `yaml:"default_ttl_seconds"`
	MaxTTLSeconds     int64 `yaml:"max_ttl_seconds"`
}

// Config is agentstated's full runtime configuration.
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
	LogJSON     bool              `yaml:"log_json"`
	Region      string            `yaml:"region"`
	WAL         WALConfig         `yaml:"wal"`
	Watch       WatchConfig       `yaml:"watch"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Lease       LeaseConfig       `yaml:"lease"`
}

// Default returns the recognized defaults from the configuration
// reference: a volatile (no DataDir) config suitable for development.
func Default() Config {
	return Config{
		LogLevel: "info",
		WAL: WALConfig{
			SegmentBytes:    64 * datasize.MB,
			FlushIntervalMS: 5,
			SyncMode:        "data",
		},
		Watch: WatchConfig{
			BufferEvents: 1024,
			BufferBytes:  4 * datasize.MB,
		},
		Idempotency: IdempotencyConfig{
			RetentionSeconds: 6 * 3600,
		},
		Lease: LeaseConfig{
			DefaultTTLSeconds: 30,
			MaxTTLSeconds:     3600,
		},
	}
}

// Load reads a YAML config file, merging it over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Durable reports whether the configuration enables on-disk
// durability (WAL + snapshots) as opposed to volatile in-memory mode.
func (c Config) Durable() bool {
	return c.DataDir != ""
}
