// Package config loads the nodecache YAML configuration. Values may reference
// environment variables as ${VAR} or ${VAR:-default}.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/observe"
)

// Sentinel errors for configuration.
var (
	ErrMissingEnv     = errors.New("config: missing required environment variables")
	ErrInvalidBackend = errors.New("config: invalid store backend")
	ErrInvalidLimit   = errors.New("config: invalid store limit")
	ErrInvalidServer  = errors.New("config: invalid server settings")
	ErrInvalidHealth  = errors.New("config: invalid health thresholds")
)

// Store backends.
const (
	BackendSharded = "sharded"
	BackendLRU     = "lru"
	BackendTinyLFU = "tinylfu"
)

// ValidBackends lists the accepted store.backend values.
var ValidBackends = []string{BackendSharded, BackendLRU, BackendTinyLFU}

// Config is the top-level nodecache configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Host      HostConfig      `yaml:"host"`
	Server    ServerConfig    `yaml:"server"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Health    HealthConfig    `yaml:"health"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig selects and sizes the shared cache store.
type StoreConfig struct {
	Backend    string `yaml:"backend"`     // sharded|lru|tinylfu
	Shards     int    `yaml:"shards"`      // sharded only
	MaxEntries int    `yaml:"max_entries"` // required for lru
	MaxBytes   int64  `yaml:"max_bytes"`   // tinylfu weight budget
}

// HostConfig configures the host session.
type HostConfig struct {
	Workers int    `yaml:"workers"` // 0 = GOMAXPROCS
	Version string `yaml:"version"` // overrides the built-in host version
}

// ServerConfig holds inspection HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// APIKeyHashes are hex SHA-256 digests of the keys accepted on mutating
	// routes. Empty leaves those routes open.
	APIKeyHashes []string `yaml:"api_key_hashes"`
	APIKeyHeader string   `yaml:"api_key_header"`
}

// SnapshotConfig controls warm-start snapshots.
type SnapshotConfig struct {
	Path           string `yaml:"path"` // empty disables snapshots
	RestoreOnStart bool   `yaml:"restore_on_start"`
	WriteOnStop    bool   `yaml:"write_on_stop"`
}

// HealthConfig holds store occupancy thresholds.
type HealthConfig struct {
	WarningThreshold  float64       `yaml:"warning_threshold"`
	CriticalThreshold float64       `yaml:"critical_threshold"`
	Timeout           time.Duration `yaml:"timeout"`
}

// PluginsConfig configures the bundled plugins.
type PluginsConfig struct {
	WatchFiles bool `yaml:"watch_files"` // invalidate file-backed stages on change
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	ServiceName string            `yaml:"service_name"`
	Attributes  map[string]string `yaml:"attributes"` // extra resource attributes
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"`    // otlp|stdout|none
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// MetricsConfig controls OpenTelemetry metrics.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // otlp|prometheus|stdout|none
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendSharded,
			Shards:  cache.DefaultShards,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Health: HealthConfig{
			WarningThreshold:  0.8,
			CriticalThreshold: 0.95,
			Timeout:           5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "nodecache",
			Tracing:     TracingConfig{Exporter: "none", SampleRate: 1.0},
			Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging:     LoggingConfig{Level: "info", Format: "json"},
		},
	}
}

// Load reads, expands and parses a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands and parses YAML config data over the defaults, then validates.
func Parse(data []byte) (*Config, error) {
	data, err := expandEnv(data)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	h := c.Health
	if h.WarningThreshold <= 0 || h.CriticalThreshold > 1 || h.WarningThreshold > h.CriticalThreshold {
		return fmt.Errorf("%w: warning %.2f, critical %.2f", ErrInvalidHealth, h.WarningThreshold, h.CriticalThreshold)
	}
	obs := c.Telemetry.ObserveConfig("")
	return obs.Validate()
}

// Validate checks the address, timeouts and key digests.
func (s ServerConfig) Validate() error {
	if s.Addr == "" || s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: addr %q", ErrInvalidServer, s.Addr)
	}
	for _, h := range s.APIKeyHashes {
		if b, err := hex.DecodeString(h); err != nil || len(b) != sha256.Size {
			return fmt.Errorf("%w: api key hash must be 64 hex characters", ErrInvalidServer)
		}
	}
	return nil
}

// Validate checks the backend name and its limits.
func (s StoreConfig) Validate() error {
	if !slices.Contains(ValidBackends, s.Backend) {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, s.Backend)
	}
	if s.Shards < 0 || s.MaxEntries < 0 || s.MaxBytes < 0 {
		return fmt.Errorf("%w: negative value", ErrInvalidLimit)
	}
	switch s.Backend {
	case BackendLRU:
		if s.MaxEntries == 0 {
			return fmt.Errorf("%w: lru requires max_entries", ErrInvalidLimit)
		}
	case BackendTinyLFU:
		if s.MaxEntries == 0 && s.MaxBytes == 0 {
			return fmt.Errorf("%w: tinylfu requires max_entries or max_bytes", ErrInvalidLimit)
		}
	}
	return nil
}

// Store is what Build returns: a cache.Store that can also report its size and
// be iterated for snapshots.
type Store interface {
	cache.Store
	cache.Sizer
	cache.Ranger
}

// Build constructs the configured store. Extra options, such as a recorder,
// are applied after the configured limits.
func (s StoreConfig) Build(opts ...cache.Option) (Store, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var all []cache.Option
	if s.Shards > 0 {
		all = append(all, cache.WithShards(s.Shards))
	}
	if s.MaxEntries > 0 {
		all = append(all, cache.WithMaxEntries(s.MaxEntries))
	}
	if s.MaxBytes > 0 {
		all = append(all, cache.WithMaxBytes(s.MaxBytes))
	}
	all = append(all, opts...)

	switch s.Backend {
	case BackendLRU:
		st, err := cache.NewLRUStore(all...)
		if err != nil {
			return nil, err
		}
		return st, nil
	case BackendTinyLFU:
		st, err := cache.NewTinyLFUStore(all...)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return cache.NewMemoryStore(all...), nil
	}
}

// ObserveConfig maps the telemetry section onto observe.Config.
func (t TelemetryConfig) ObserveConfig(version string) observe.Config {
	return observe.Config{
		ServiceName: t.ServiceName,
		Version:     version,
		Attributes:  t.Attributes,
		Tracing: observe.TracingConfig{
			Enabled:   t.Tracing.Enabled,
			Exporter:  t.Tracing.Exporter,
			Endpoint:  t.Tracing.Endpoint,
			SamplePct: t.Tracing.SampleRate,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  t.Metrics.Enabled,
			Exporter: t.Metrics.Exporter,
			Endpoint: t.Metrics.Endpoint,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   t.Logging.Level,
			Format:  t.Logging.Format,
		},
	}
}
