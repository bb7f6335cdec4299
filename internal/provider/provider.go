// Package provider holds the clients for the remote accessibility data
// sources (Google Places, OpenStreetMap Overpass, Wheelmap). Every client
// implements Provider and maps its native records onto model.Place.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/resilience"
)

// Provider fetches accessibility places around a point.
type Provider interface {
	// Name returns the unique identifier (e.g. "google", "osm", "wheelmap").
	Name() string

	// Fetch returns at most the provider's record cap. Retries happen
	// inside Fetch; a returned error is final.
	Fetch(ctx context.Context, q Query) ([]model.Place, error)
}

// Query is the search area handed to every provider.
type Query struct {
	Center   model.Coordinates
	RadiusKM float64
	City     string // used for synthesized names and placeholder addresses
}

// RadiusMeters returns the radius rounded to whole meters.
func (q Query) RadiusMeters() int {
	return int(q.RadiusKM*1000 + 0.5)
}

// FetchError is the final failure of one provider fetch.
type FetchError struct {
	Provider   string
	StatusCode int // 0 when the failure was not an HTTP response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options are the knobs shared by every provider client.
type Options struct {
	// Timeout bounds each outbound request (not the whole fetch).
	Timeout time.Duration

	// Policy is applied around each request.
	Policy resilience.Policy

	// MaxResults caps the raw records a client returns.
	MaxResults int

	// MaxExtraPages caps pagination beyond the first page.
	MaxExtraPages int

	// PageDelay is waited before each extra page when the provider
	// requires it.
	PageDelay time.Duration

	// RateLimit is the per-provider request rate in requests per second.
	// Zero means unlimited.
	RateLimit float64

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultOptions returns the standard provider settings.
func DefaultOptions() Options {
	return Options{
		Timeout:       15 * time.Second,
		Policy:        resilience.DefaultPolicy(),
		MaxResults:    50,
		MaxExtraPages: 2,
		PageDelay:     2 * time.Second,
		RateLimit:     5,
		UserAgent:     "wheelmate/1.0",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Policy.MaxAttempts <= 0 {
		o.Policy = d.Policy
	}
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.MaxExtraPages < 0 {
		o.MaxExtraPages = 0
	}
	if o.PageDelay < 0 {
		o.PageDelay = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	return o
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
