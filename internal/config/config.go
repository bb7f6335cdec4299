// Package config loads wheelmate configuration from config.yaml and
// WHEELMATE_* environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Provider names accepted in providers.enabled.
const (
	ProviderOSM      = "osm"
	ProviderWheelmap = "wheelmap"
	ProviderGoogle   = "google"
)

// KnownProviders lists every provider in default registration order.
var KnownProviders = []string{ProviderOSM, ProviderWheelmap, ProviderGoogle}

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig controls the search coordinator.
type SearchConfig struct {
	RadiusKM       float64 `yaml:"radius_km" mapstructure:"radius_km"`
	MaxResults     int     `yaml:"max_results" mapstructure:"max_results"`
	DropUnknown    bool    `yaml:"drop_unknown" mapstructure:"drop_unknown"`
	OfflineMode    bool    `yaml:"offline_mode" mapstructure:"offline_mode"`
	SyntheticCount int     `yaml:"synthetic_count" mapstructure:"synthetic_count"`
	Seed           uint64  `yaml:"seed" mapstructure:"seed"` // 0 picks a random seed per process
	Workers        int     `yaml:"workers" mapstructure:"workers"`
}

// ProvidersConfig configures the live data providers.
type ProvidersConfig struct {
	Enabled       []string       `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs   int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults    int            `yaml:"max_results" mapstructure:"max_results"`
	MaxExtraPages int            `yaml:"max_extra_pages" mapstructure:"max_extra_pages"`
	PageDelayMs   int            `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	RateLimit     float64        `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent     string         `yaml:"user_agent" mapstructure:"user_agent"`
	OSM           OSMConfig      `yaml:"osm" mapstructure:"osm"`
	Wheelmap      WheelmapConfig `yaml:"wheelmap" mapstructure:"wheelmap"`
	Google        GoogleConfig   `yaml:"google" mapstructure:"google"`
}

// OSMConfig configures the Overpass provider.
type OSMConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// WheelmapConfig configures the Wheelmap provider.
type WheelmapConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// GoogleConfig configures the Google Places provider.
type GoogleConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	PlaceType string `yaml:"place_type" mapstructure:"place_type"`
}

// GeocodeConfig configures query resolution.
type GeocodeConfig struct {
	NominatimURL  string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// RetryConfig configures provider retries.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs   int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int  `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WHEELMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "wheelmate_cache.db")
	v.SetDefault("search.radius_km", 10.0)
	v.SetDefault("search.max_results", 200)
	v.SetDefault("search.drop_unknown", false)
	v.SetDefault("search.offline_mode", false)
	v.SetDefault("search.synthetic_count", 12)
	v.SetDefault("search.seed", 0)
	v.SetDefault("search.workers", 4)
	v.SetDefault("providers.enabled", KnownProviders)
	v.SetDefault("providers.timeout_secs", 15)
	v.SetDefault("providers.max_results", 50)
	v.SetDefault("providers.max_extra_pages", 2)
	v.SetDefault("providers.page_delay_ms", 2000)
	v.SetDefault("providers.rate_limit", 5.0)
	v.SetDefault("providers.user_agent", "wheelmate/1.0")
	v.SetDefault("providers.osm.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("providers.wheelmap.base_url", "https://wheelmap.org/api/nodes")
	v.SetDefault("providers.google.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("providers.google.place_type", "restaurant")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.cache_ttl_hours", 24)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff_ms", 2000)
	v.SetDefault("circuit.enabled", true)
	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. Mode "search" covers
// live searches; "store" only needs a usable cache backend.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "store":
	case "search":
		if c.Search.RadiusKM <= 0 {
			errs = append(errs, "search.radius_km must be positive")
		}
		if c.Search.MaxResults < 1 {
			errs = append(errs, "search.max_results must be at least 1")
		}
		if c.Search.Workers < 1 {
			errs = append(errs, "search.workers must be at least 1")
		}
		if c.Search.SyntheticCount < 1 {
			errs = append(errs, "search.synthetic_count must be at least 1")
		}
		if c.Providers.TimeoutSecs < 1 {
			errs = append(errs, "providers.timeout_secs must be at least 1")
		}
		if c.Providers.RateLimit < 0 {
			errs = append(errs, "providers.rate_limit must not be negative")
		}
		for _, name := range c.Providers.Enabled {
			if !slices.Contains(KnownProviders, name) {
				errs = append(errs, fmt.Sprintf("providers.enabled: unknown provider %q", name))
			}
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, "retry.max_attempts must be at least 1")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
