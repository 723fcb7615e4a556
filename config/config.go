// Package config loads and validates the pipeline configuration: a JSON
// document checked against an embedded schema, with defaults filled in and a
// small set of environment overrides applied on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quilross/aquil-symbolic-engine-sub003/errors"
	"github.com/quilross/aquil-symbolic-engine-sub003/record"
	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

// Environment variable names recognized by Load.
const (
	EnvConfigPath = "AQUILOG_CONFIG"
	EnvNATSURL    = "AQUILOG_NATS_URL"
	EnvDBPath     = "AQUILOG_DB_PATH"
	EnvStores     = "AQUILOG_STORES"
)

// Duration is a time.Duration that marshals as a duration string ("5s").
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete pipeline configuration.
type Config struct {
	Stores     StoresConfig     `json:"stores"`
	Validation ValidationConfig `json:"validation"`
	Redact     RedactConfig     `json:"redact"`
	Blob       BlobConfig       `json:"blob"`
	NATS       NATSConfig       `json:"nats"`
	Relational RelationalConfig `json:"relational"`
	Vector     VectorConfig     `json:"vector"`
	Server     ServerConfig     `json:"server"`
	Registry   RegistryConfig   `json:"registry"`
}

// StoresConfig selects which adapters are bound. An empty Enabled list is a
// valid degraded deployment: writes report success with no stores.
type StoresConfig struct {
	Enabled        []string `json:"enabled"`
	AdapterTimeout Duration `json:"adapter_timeout"`
}

// ValidationConfig drives the data-driven record validator.
type ValidationConfig struct {
	MaxDetailBytes int      `json:"max_detail_bytes"`
	Kinds          []string `json:"kinds"`
	StoreNames     []string `json:"store_names"`
}

// RedactConfig drives the recursive redactor.
type RedactConfig struct {
	Patterns []string `json:"patterns"`
	MaxDepth int      `json:"max_depth"`
}

// BlobConfig drives detail overflow to the object store.
type BlobConfig struct {
	Bucket          string `json:"bucket"`
	InlineThreshold int    `json:"inline_threshold"`
}

// NATSConfig is the JetStream connection shared by the kv, blob, and vector
// adapters.
type NATSConfig struct {
	URL      string `json:"url"`
	KVBucket string `json:"kv_bucket"`
}

// RelationalConfig is the sqlite-backed relational adapter.
type RelationalConfig struct {
	Path string `json:"path"`
}

// VectorConfig is the embedding index. APIKeyEnv names the environment
// variable holding the provider key; the key itself never lives in the
// config document. An empty key falls back to the deterministic hash
// embedder.
type VectorConfig struct {
	Bucket     string `json:"bucket"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	APIKeyEnv  string `json:"api_key_env"`
}

// APIKey resolves the embedding provider key from the environment.
func (v VectorConfig) APIKey() string {
	return os.Getenv(v.APIKeyEnv)
}

// ServerConfig is the HTTP surface.
type ServerConfig struct {
	Addr            string  `json:"addr"`
	WriteRatePerSec float64 `json:"write_rate_per_sec"`
	WriteBurst      int     `json:"write_burst"`
}

// RegistryConfig extends the built-in operation registry.
type RegistryConfig struct {
	Canonical []string          `json:"canonical,omitempty"`
	Aliases   map[string]string `json:"aliases,omitempty"`
}

// DefaultConfig returns a configuration with every store enabled and the
// built-in enumerations.
func DefaultConfig() *Config {
	return &Config{
		Stores: StoresConfig{
			Enabled: []string{
				store.NameKV, store.NameRelational, store.NameBlob, store.NameVector,
			},
			AdapterTimeout: Duration(5 * time.Second),
		},
		Validation: ValidationConfig{
			MaxDetailBytes: 64 * 1024,
			Kinds: []string{
				record.KindActionSuccess, record.KindActionError,
				record.KindSessionEvent, record.KindSystemEvent, record.KindInsight,
			},
			StoreNames: []string{
				store.NameKV, store.NameRelational, store.NameBlob, store.NameVector,
			},
		},
		Redact: RedactConfig{
			MaxDepth: 10,
		},
		Blob: BlobConfig{
			Bucket:          "AQUIL_ARTIFACTS",
			InlineThreshold: 8 * 1024,
		},
		NATS: NATSConfig{
			URL:      "nats://localhost:4222",
			KVBucket: "AQUIL_LOGS",
		},
		Relational: RelationalConfig{
			Path: "aquilog.db",
		},
		Vector: VectorConfig{
			Bucket:    "AQUIL_VECTORS",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Server: ServerConfig{
			Addr:            ":8787",
			WriteRatePerSec: 50,
			WriteBurst:      100,
		},
	}
}

// Load reads the configuration: defaults, then the JSON document at path
// (empty path means defaults only), then environment overrides. The raw
// document is schema-checked before unmarshaling so a malformed config fails
// at startup with field-level detail.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := validateDocument(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvNATSURL); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Relational.Path = v
	}
	if v := os.Getenv(EnvStores); v != "" {
		enabled := []string{}
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				enabled = append(enabled, s)
			}
		}
		cfg.Stores.Enabled = enabled
	}
}

// Validate checks cross-field consistency that the document schema cannot
// express.
func (c *Config) Validate() error {
	known := map[string]bool{
		store.NameKV: true, store.NameRelational: true,
		store.NameBlob: true, store.NameVector: true,
	}
	for _, s := range c.Stores.Enabled {
		if !known[s] {
			return errors.WrapInvalid(
				fmt.Errorf("unknown store %q", s), "config", "Validate", "check enabled stores")
		}
	}

	if c.Stores.AdapterTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("adapter timeout %s is negative", c.Stores.AdapterTimeout.Std()),
			"config", "Validate", "check timeouts")
	}
	if c.Validation.MaxDetailBytes <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("max detail bytes must be positive, got %d", c.Validation.MaxDetailBytes),
			"config", "Validate", "check validation limits")
	}
	if c.Server.WriteRatePerSec < 0 || c.Server.WriteBurst < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("write rate %v burst %d must not be negative",
				c.Server.WriteRatePerSec, c.Server.WriteBurst),
			"config", "Validate", "check rate limits")
	}

	return nil
}

// StoreEnabled reports whether a store name is in the enabled list.
func (c *Config) StoreEnabled(name string) bool {
	for _, s := range c.Stores.Enabled {
		if s == name {
			return true
		}
	}
	return false
}
