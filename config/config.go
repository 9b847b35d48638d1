// Package config provides configuration loading and management for semtrip.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semtrip/model"
)

// Config represents the complete semtrip configuration
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	HTTPCache HTTPCacheConfig `yaml:"http_cache"`
	HTTP      HTTPConfig      `yaml:"http"`
	Search    SearchConfig    `yaml:"search"`
	Route     RouteConfig     `yaml:"route"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	NATS      NATSConfig      `yaml:"nats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ModelConfig configures text generation. The endpoint registry is inlined
// so endpoints and capability routes sit directly under "model".
type ModelConfig struct {
	model.RegistryConfig `yaml:",inline"`

	// MaxTokens is the completion budget of each stage call
	MaxTokens int `yaml:"max_tokens"`
	// Timeout bounds a single generation request
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts is the retry budget for transient failures (1 = no retry)
	MaxAttempts int `yaml:"max_attempts"`
}

// ProvidersConfig holds upstream base URLs. API keys never live here;
// OpenTripMapKeyEnv names the environment variable holding the key.
type ProvidersConfig struct {
	NominatimURL      string `yaml:"nominatim_url"`
	OpenTripMapURL    string `yaml:"opentripmap_url"`
	OverpassURL       string `yaml:"overpass_url"`
	OpenMeteoURL      string `yaml:"open_meteo_url"`
	OSRMURL           string `yaml:"osrm_url"`
	UserAgent         string `yaml:"user_agent"`
	OpenTripMapKeyEnv string `yaml:"opentripmap_key_env"`
}

// OpenTripMapKey reads the OpenTripMap API key from the environment.
func (p ProvidersConfig) OpenTripMapKey() string {
	if p.OpenTripMapKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.OpenTripMapKeyEnv)
}

// CacheConfig sizes the in-process generation cache
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// HTTPCacheConfig configures the upstream response cache
type HTTPCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "memory" or "sqlite"
	Backend    string        `yaml:"backend"`
	Path       string        `yaml:"path"`
	Expire     time.Duration `yaml:"expire"`
	MaxEntries int           `yaml:"max_entries"`
}

// HTTPConfig sets outbound request timeouts
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	OverpassTimeout time.Duration `yaml:"overpass_timeout"`
}

// SearchConfig tunes the attraction search
type SearchConfig struct {
	Radius int `yaml:"radius"`
	Limit  int `yaml:"limit"`
	TopN   int `yaml:"top_n"`
}

// RouteConfig tunes stop ordering
type RouteConfig struct {
	MaxStops int `yaml:"max_stops"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
}

// StorageConfig configures where finished runs are kept
type StorageConfig struct {
	// Backend is "memory" or "nats" (a JetStream KV bucket)
	Backend    string        `yaml:"backend"`
	Bucket     string        `yaml:"bucket"`
	Retention  time.Duration `yaml:"retention"`
	MaxEntries int           `yaml:"max_entries"`
}

// NATSConfig configures stage event publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = events disabled)
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig toggles Prometheus collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Cache and storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"
)

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			RegistryConfig: model.NewDefaultRegistry().ToConfig(),
			MaxTokens:      512,
			Timeout:        60 * time.Second,
			MaxAttempts:    1,
		},
		Providers: ProvidersConfig{
			NominatimURL:      "https://nominatim.openstreetmap.org/search",
			OpenTripMapURL:    "https://api.opentripmap.com/0.1/en/places",
			OverpassURL:       "https://overpass-api.de/api/interpreter",
			OpenMeteoURL:      "https://api.open-meteo.com/v1/forecast",
			OSRMURL:           "http://router.project-osrm.org",
			UserAgent:         "semtrip/1.0",
			OpenTripMapKeyEnv: "OPENTRIPMAP_KEY",
		},
		Cache: CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 512,
		},
		HTTPCache: HTTPCacheConfig{
			Enabled:    true,
			Backend:    BackendMemory,
			Path:       "http_cache.db",
			Expire:     24 * time.Hour,
			MaxEntries: 1024,
		},
		HTTP: HTTPConfig{
			Timeout:         15 * time.Second,
			OverpassTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			Radius: 12000,
			Limit:  60,
			TopN:   20,
		},
		Route: RouteConfig{
			MaxStops: 25,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 2 * time.Minute,
			MaxConcurrent:  4,
		},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			Bucket:     "SEMTRIP_TRIPS",
			Retention:  24 * time.Hour,
			MaxEntries: 1000,
		},
		NATS: NATSConfig{
			SubjectPrefix: "semtrip.runs",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Model.RegistryConfig.Validate(); err != nil {
		return err
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("model.max_tokens must be positive")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive")
	}
	if c.Model.MaxAttempts < 1 {
		return fmt.Errorf("model.max_attempts must be at least 1")
	}
	if c.Cache.TTL <= 0 || c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.ttl and cache.max_entries must be positive")
	}
	if c.HTTPCache.Enabled {
		switch c.HTTPCache.Backend {
		case BackendMemory:
		case BackendSQLite:
			if c.HTTPCache.Path == "" {
				return fmt.Errorf("http_cache.path is required for the sqlite backend")
			}
		default:
			return fmt.Errorf("http_cache.backend must be %q or %q, got %q", BackendMemory, BackendSQLite, c.HTTPCache.Backend)
		}
		if c.HTTPCache.Expire <= 0 {
			return fmt.Errorf("http_cache.expire must be positive")
		}
	}
	if c.HTTP.Timeout <= 0 || c.HTTP.OverpassTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.Search.Radius <= 0 || c.Search.Limit <= 0 || c.Search.TopN <= 0 {
		return fmt.Errorf("search.radius, search.limit and search.top_n must be positive")
	}
	if c.Route.MaxStops <= 0 {
		return fmt.Errorf("route.max_stops must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RequestTimeout <= 0 || c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.request_timeout and server.max_concurrent must be positive")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("storage.backend %q requires nats.url", BackendNATS)
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendMemory, BackendNATS, c.Storage.Backend)
	}
	if c.Storage.Retention <= 0 || c.Storage.MaxEntries <= 0 {
		return fmt.Errorf("storage.retention and storage.max_entries must be positive")
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when nats.url is set")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := config.MergeFile(path); err != nil {
		return nil, err
	}
	return config, nil
}

// MergeFile decodes a YAML file onto c. Keys absent from the file keep
// their current values; endpoint entries are replaced by name.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
