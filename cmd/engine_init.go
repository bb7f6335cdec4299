package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/aggregate"
	"github.com/wheelmate/wheelmate/internal/config"
	"github.com/wheelmate/wheelmate/internal/provider"
	"github.com/wheelmate/wheelmate/internal/resilience"
	"github.com/wheelmate/wheelmate/internal/search"
	"github.com/wheelmate/wheelmate/internal/store"
	"github.com/wheelmate/wheelmate/pkg/geocode"
	"github.com/wheelmate/wheelmate/pkg/google"
)

// searchEnv holds the store and the engine used by the search, verify,
// rate and photo commands.
type searchEnv struct {
	Store    store.Store
	Engine   *search.Engine
	Breakers *resilience.ServiceBreakers // nil when circuit breaking is off
}

// Close releases resources held by the environment.
func (se *searchEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initStore opens the configured cache backend. Callers must Migrate.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "wheelmate_cache.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the cache for commands that only touch it.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEngine builds the store, providers, geocoder and search engine.
// Callers should defer env.Close().
func initEngine(ctx context.Context) (*searchEnv, error) {
	if err := cfg.Validate("search"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	// One transport for every outbound request; per-request timeouts are
	// applied by the providers.
	hc := &http.Client{Timeout: time.Duration(cfg.Providers.TimeoutSecs) * time.Second}

	reg, err := buildRegistry(cfg, hc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &searchEnv{Store: st}
	var aggOpts []aggregate.Option
	if cfg.Circuit.Enabled {
		env.Breakers = resilience.NewServiceBreakers(circuitConfig(cfg.Circuit))
		aggOpts = append(aggOpts, aggregate.WithBreakers(env.Breakers))
	}

	env.Engine = search.New(
		cfg.Search,
		st,
		aggregate.New(reg, aggOpts...),
		buildGeocoder(cfg, hc),
	)

	zap.L().Debug("search engine ready",
		zap.Strings("providers", reg.Names()),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("offline", cfg.Search.OfflineMode),
	)
	return env, nil
}

func providerOptions(c *config.Config) provider.Options {
	return provider.Options{
		Timeout:       time.Duration(c.Providers.TimeoutSecs) * time.Second,
		Policy:        resilience.PolicyFromConfig(c.Retry.MaxAttempts, c.Retry.BackoffMs),
		MaxResults:    c.Providers.MaxResults,
		MaxExtraPages: c.Providers.MaxExtraPages,
		PageDelay:     time.Duration(c.Providers.PageDelayMs) * time.Millisecond,
		RateLimit:     c.Providers.RateLimit,
		UserAgent:     c.Providers.UserAgent,
	}
}

// buildRegistry registers the enabled providers in configuration order,
// which is also the dedup priority order.
func buildRegistry(c *config.Config, hc *http.Client) (*provider.Registry, error) {
	opts := providerOptions(c)
	reg := provider.NewRegistry()
	for _, name := range c.Providers.Enabled {
		var p provider.Provider
		switch name {
		case config.ProviderOSM:
			p = provider.NewOverpass(hc, c.Providers.OSM.BaseURL, opts)
		case config.ProviderWheelmap:
			p = provider.NewWheelmap(hc, c.Providers.Wheelmap.BaseURL, c.Providers.Wheelmap.APIKey, opts)
		case config.ProviderGoogle:
			var gc google.Client
			if c.Providers.Google.APIKey != "" {
				gc = google.NewClient(c.Providers.Google.APIKey,
					google.WithBaseURL(c.Providers.Google.BaseURL),
					google.WithHTTPClient(hc),
				)
			}
			p = provider.NewGoogle(gc, c.Providers.Google.PlaceType, opts)
		default:
			return nil, eris.Errorf("unknown provider %q", name)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildGeocoder(c *config.Config, hc *http.Client) geocode.Client {
	opts := []geocode.Option{geocode.WithHTTPClient(hc)}
	if c.Providers.UserAgent != "" {
		opts = append(opts, geocode.WithUserAgent(c.Providers.UserAgent))
	}
	if c.Geocode.NominatimURL != "" {
		opts = append(opts, geocode.WithNominatimURL(c.Geocode.NominatimURL))
	}
	if c.Geocode.RateLimit > 0 {
		opts = append(opts, geocode.WithRateLimit(c.Geocode.RateLimit))
	}
	if c.Geocode.CacheTTLHours > 0 {
		opts = append(opts, geocode.WithCacheTTL(time.Duration(c.Geocode.CacheTTLHours)*time.Hour))
	}
	if c.Providers.Google.APIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(c.Providers.Google.APIKey))
	}
	return geocode.NewClient(opts...)
}

func circuitConfig(c config.CircuitConfig) resilience.CircuitBreakerConfig {
	cb := resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs)
	cb.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("provider circuit state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return cb
}
