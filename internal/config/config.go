// Package config holds the vigild configuration: file loading, environment
// overrides, defaults, and validation.
//
// Precedence is file < environment < CLI flags (flags are applied by the
// daemon after Load returns).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "90s" in
// both YAML and environment variables.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the complete vigild configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" env:"VIGIL_LISTEN"`

	// DataDir is the root directory for durable state.
	DataDir string `yaml:"data_dir" env:"VIGIL_DATA_DIR"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Snapshot configures periodic persistence.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Alerts configures the alert engine.
	Alerts AlertsConfig `yaml:"alerts"`

	// Auth lists the accepted API keys. An empty list allows all callers
	// (local/dev use).
	Auth AuthConfig `yaml:"auth"`

	// Query bounds query result sizes.
	Query QueryConfig `yaml:"query"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"VIGIL_LOG_LEVEL"`

	// JSON switches output from text to JSON.
	JSON bool `yaml:"json" env:"VIGIL_LOG_JSON"`
}

// SnapshotConfig configures periodic persistence.
type SnapshotConfig struct {
	// Enabled toggles persistence entirely.
	Enabled bool `yaml:"enabled" env:"VIGIL_SNAPSHOT_ENABLED"`

	// Interval is the periodic save cadence.
	Interval Duration `yaml:"interval" env:"VIGIL_SNAPSHOT_INTERVAL"`

	// Path is the snapshot file. Defaults to {DataDir}/snapshot.json.
	Path string `yaml:"path" env:"VIGIL_SNAPSHOT_PATH"`
}

// AlertsConfig configures the alert engine.
type AlertsConfig struct {
	// QueueSize bounds the outbound notification queue.
	QueueSize int `yaml:"queue_size" env:"VIGIL_ALERT_QUEUE_SIZE"`
}

// AuthConfig lists the accepted API keys.
type AuthConfig struct {
	Keys []KeyConfig `yaml:"keys"`
}

// KeyConfig is one caller identity and its bearer key.
type KeyConfig struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// QueryConfig bounds query result sizes.
type QueryConfig struct {
	// DefaultLimit applies when a query specifies no limit.
	DefaultLimit int `yaml:"default_limit" env:"VIGIL_QUERY_DEFAULT_LIMIT"`

	// MaxLimit caps any requested limit.
	MaxLimit int `yaml:"max_limit" env:"VIGIL_QUERY_MAX_LIMIT"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Listen:  ":8080",
		DataDir: "data",
		Logging: LoggingConfig{
			Level: "info",
		},
		Snapshot: SnapshotConfig{
			Enabled:  true,
			Interval: Duration(60 * time.Second),
		},
		Alerts: AlertsConfig{
			QueueSize: 1024,
		},
		Query: QueryConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
		},
	}
}

// Load reads the config file, applies defaults for unset fields, then
// applies environment overrides. A missing file is not an error; the
// defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// API keys from env in "name1:key1,name2:key2" form replace the
	// file-configured set.
	if raw := os.Getenv("VIGIL_API_KEYS"); raw != "" {
		cfg.Auth.Keys = parseKeyPairs(raw)
	}

	cfg.applyDerived()
	return cfg, nil
}

// applyDerived fills fields whose defaults depend on other fields.
func (c *Config) applyDerived() {
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.DataDir, "snapshot.json")
	}
}

// parseKeyPairs parses "name1:key1,name2:key2". Malformed parts are skipped.
func parseKeyPairs(raw string) []KeyConfig {
	var keys []KeyConfig
	for _, part := range strings.Split(raw, ",") {
		name, key, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" || key == "" {
			continue
		}
		keys = append(keys, KeyConfig{Name: name, Key: key})
	}
	return keys
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Snapshot.Enabled {
		if c.Snapshot.Interval <= 0 {
			return fmt.Errorf("snapshot.interval must be positive, got %s", c.Snapshot.Interval.Std())
		}
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot.path is required when snapshots are enabled")
		}
	}
	if c.Alerts.QueueSize <= 0 {
		return fmt.Errorf("alerts.queue_size must be positive, got %d", c.Alerts.QueueSize)
	}
	if c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be positive, got %d", c.Query.DefaultLimit)
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("query.max_limit (%d) must be >= query.default_limit (%d)",
			c.Query.MaxLimit, c.Query.DefaultLimit)
	}
	for i, k := range c.Auth.Keys {
		if k.Name == "" || k.Key == "" {
			return fmt.Errorf("auth.keys[%d]: name and key are both required", i)
		}
	}
	return nil
}
