// Package config loads the service configuration from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/alex-user-go/tripdata/internal/validation"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{"config.yaml", "config.yml"}

// Config is the service configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Places      ProviderConfig    `koanf:"places"`
	Overpass    ProviderConfig    `koanf:"overpass"`
	Directory   ProviderConfig    `koanf:"directory"`
	Social      ProviderConfig    `koanf:"social"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// AggregationConfig configures the aggregation engine.
type AggregationConfig struct {
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gt=0"`
	ProviderTimeout time.Duration `koanf:"provider_timeout" validate:"gt=0"`
	SearchRadius    int           `koanf:"search_radius" validate:"gt=0,lte=50000"`
}

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BaseURL         string        `koanf:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	APIKey          string        `koanf:"api_key"`
	Timeout         time.Duration `koanf:"timeout" validate:"gte=0"`
	RatePerSecond   float64       `koanf:"rate_per_second" validate:"gte=0"`
	Burst           int           `koanf:"burst" validate:"gte=0"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gte=0"`

	// AccountID is the business account whose media the social provider reads.
	AccountID string `koanf:"account_id"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

func defaultProvider(url string, rps float64, burst int) ProviderConfig {
	return ProviderConfig{
		Enabled:         true,
		BaseURL:         url,
		Timeout:         5 * time.Second,
		RatePerSecond:   rps,
		Burst:           burst,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// The Overpass burst covers one aggregation with the default interests:
// geocode, airports and eight searches.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Aggregation: AggregationConfig{
			CacheTTL:        time.Hour,
			ProviderTimeout: 5 * time.Second,
			SearchRadius:    5000,
		},
		Places:    defaultProvider("https://maps.googleapis.com/maps/api", 10, 5),
		Overpass:  defaultProvider("https://overpass-api.de/api/interpreter", 1, 10),
		Directory: defaultProvider("https://api.yelp.com/v3", 5, 5),
		Social:    defaultProvider("https://graph.facebook.com/v18.0", 2, 5),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: struct defaults, then the YAML file if
// one is found, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSecondFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variables to config keys. Unlisted variables
// are ignored.
var envMappings = map[string]string{
	"addr":                          "server.addr",
	"rate_limit_requests":           "server.rate_limit_requests",
	"rate_limit_window":             "server.rate_limit_window",
	"cache_ttl":                     "aggregation.cache_ttl",
	"provider_timeout":              "aggregation.provider_timeout",
	"search_radius":                 "aggregation.search_radius",
	"google_maps_api_key":           "places.api_key",
	"places_url":                    "places.base_url",
	"overpass_url":                  "overpass.base_url",
	"overpass_enabled":              "overpass.enabled",
	"yelp_api_key":                  "directory.api_key",
	"directory_url":                 "directory.base_url",
	"instagram_access_token":        "social.api_key",
	"instagram_business_account_id": "social.account_id",
	"social_url":                    "social.base_url",
	"log_level":                     "logging.level",
	"log_format":                    "logging.format",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// secondPaths are durations that also accept a bare number of seconds,
// as in CACHE_TTL=3600.
var secondPaths = []string{
	"aggregation.cache_ttl",
	"aggregation.provider_timeout",
}

func processSecondFields(k *koanf.Koanf) error {
	for _, path := range secondPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		if err := k.Set(path, time.Duration(n)*time.Second); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
