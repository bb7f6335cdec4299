// Package geocode resolves free-text place queries to coordinates via
// Nominatim (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client resolves search text to a location.
type Client interface {
	// Geocode resolves a free-text query or a literal "lat,lon" pair.
	Geocode(ctx context.Context, query string) (*Result, error)

	// Reverse resolves coordinates to the nearest address.
	Reverse(ctx context.Context, lat, lon float64) (*ReverseResult, error)
}

// Result holds the geocoding output for a query.
type Result struct {
	Latitude  float64
	Longitude float64
	Label     string // display name of the match
	City      string // best-effort locality, empty if unknown
	Source    string // "literal", "nominatim" or "google"
	Quality   string // "exact", "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Nominatim and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit shared by all
// outbound geocoding calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithNominatimURL overrides the Nominatim base URL.
func WithNominatimURL(u string) Option {
	return func(g *geocoder) {
		g.nominatimURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the User-Agent sent to Nominatim, which its usage
// policy requires to identify the application.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithCacheTTL caches results in memory for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *geocoder) {
		if ttl > 0 {
			g.cache = newMemoryCache(ttl)
		} else {
			g.cache = nil
		}
	}
}

type geocoder struct {
	httpClient   *http.Client
	googleKey    string
	nominatimURL string
	userAgent    string
	limiter      *rate.Limiter
	cache        *memoryCache
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		nominatimURL: defaultNominatimURL,
		userAgent:    "wheelmate/1.0",
		limiter:      rate.NewLimiter(1, 1), // Nominatim usage policy: 1 req/s
		cache:        newMemoryCache(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves query, trying a literal coordinate pair, then Nominatim,
// then Google if configured. An unmatched query is not an error: the
// returned Result has Matched=false.
func (g *geocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Matched: false}, nil
	}

	if lat, lon, ok := ParseCoordinates(query); ok {
		return &Result{
			Latitude:  lat,
			Longitude: lon,
			Label:     query,
			Source:    "literal",
			Quality:   "exact",
			Matched:   true,
		}, nil
	}

	key := cacheKey(query)
	if r, ok := g.cache.get(key); ok {
		return r, nil
	}

	result, nomErr := g.geocodeNominatim(ctx, query)
	if nomErr == nil && result.Matched {
		g.cache.put(key, result)
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, query)
		if googleErr == nil && googleResult.Matched {
			g.cache.put(key, googleResult)
			return googleResult, nil
		}
		if googleErr != nil && nomErr != nil {
			return nil, nomErr
		}
	} else if nomErr != nil {
		return nil, nomErr
	}

	// No match from any provider: not an error, just unmatched.
	return &Result{Matched: false}, nil
}
