package provider

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/rating"
	"github.com/wheelmate/wheelmate/internal/resilience"
	"github.com/wheelmate/wheelmate/pkg/google"
)

// detailConcurrency bounds parallel Place Details lookups per fetch.
const detailConcurrency = 8

// Google queries Google Places Nearby Search and enriches every summary
// record with a Place Details lookup for the wheelchair flags.
type Google struct {
	client    google.Client
	enabled   bool
	placeType string
	limiter   *rate.Limiter
	opts      Options
}

// NewGoogle creates a Google Places provider. placeType optionally limits
// Nearby Search to one Places type (e.g. "restaurant"). A nil client
// disables the provider: Fetch returns no places.
func NewGoogle(client google.Client, placeType string, opts Options) *Google {
	opts = opts.withDefaults()
	return &Google{
		client:    client,
		enabled:   client != nil,
		placeType: placeType,
		limiter:   newLimiter(opts.RateLimit),
		opts:      opts,
	}
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Fetch implements Provider.
func (g *Google) Fetch(ctx context.Context, q Query) ([]model.Place, error) {
	log := zap.L().With(zap.String("provider", g.Name()))
	if !g.enabled {
		log.Debug("no api key configured, skipping")
		return []model.Place{}, nil
	}

	summaries, err := g.nearby(ctx, q)
	if err != nil {
		return nil, err
	}

	places := g.enrich(ctx, summaries, q)
	log.Debug("google fetch complete",
		zap.Int("summaries", len(summaries)),
		zap.Int("places", len(places)),
	)
	return places, nil
}

// nearby collects summary records from the first page and up to
// MaxExtraPages continuation pages. Only a first-page failure is an error.
func (g *Google) nearby(ctx context.Context, q Query) ([]google.SearchResult, error) {
	req := google.NearbySearchRequest{
		Lat:     q.Center.Lat,
		Lng:     q.Center.Lon,
		RadiusM: q.RadiusMeters(),
		Type:    g.placeType,
	}

	resp, err := googleCall(ctx, g, "nearbysearch", func(ctx context.Context) (*google.NearbySearchResponse, error) {
		return g.client.NearbySearch(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	results := resp.Results
	token := resp.NextPageToken
	for page := 0; page < g.opts.MaxExtraPages && token != "" && len(results) < g.opts.MaxResults; page++ {
		// Google rejects a continuation token used too soon after issue.
		if err := sleepCtx(ctx, g.opts.PageDelay); err != nil {
			return nil, g.wrap(err)
		}
		pageReq := google.NearbySearchRequest{PageToken: token}
		next, err := googleCall(ctx, g, "nearbysearch_page", func(ctx context.Context) (*google.NearbySearchResponse, error) {
			return g.client.NearbySearch(ctx, pageReq)
		})
		if err != nil {
			zap.L().Warn("google: extra page failed, keeping earlier pages",
				zap.Int("page", page+2), zap.Error(err))
			break
		}
		results = append(results, next.Results...)
		token = next.NextPageToken
	}

	if len(results) > g.opts.MaxResults {
		results = results[:g.opts.MaxResults]
	}
	return results, nil
}

// enrich looks up details for every summary with bounded concurrency,
// keeping the summary order. Records whose lookup fails are dropped.
func (g *Google) enrich(ctx context.Context, summaries []google.SearchResult, q Query) []model.Place {
	slots := make([]*model.Place, len(summaries))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(detailConcurrency)
	for i, s := range summaries {
		if s.PlaceID == "" {
			continue
		}
		eg.Go(func() error {
			resp, err := googleCall(egCtx, g, "details", func(ctx context.Context) (*google.DetailsResponse, error) {
				return g.client.Details(ctx, s.PlaceID)
			})
			if err != nil {
				zap.L().Debug("google: details failed, dropping record",
					zap.String("place_id", s.PlaceID), zap.Error(err))
				return nil
			}
			if p, ok := detailsToPlace(resp.Result, s, q); ok {
				slots[i] = &p
			}
			return nil
		})
	}
	_ = eg.Wait() // per-record failures are dropped above

	places := make([]model.Place, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			places = append(places, *p)
		}
	}
	return places
}

// googleCall runs one Places request under the rate limiter, per-request
// timeout and retry policy.
func googleCall[T any](ctx context.Context, g *Google, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := g.opts.Policy.WithLogging(g.Name(), operation)
	policy.ShouldRetry = isRetryableGoogle
	val, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (T, error) {
		var zero T
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
		return fn(reqCtx)
	})
	if err != nil {
		return val, g.wrap(err)
	}
	return val, nil
}

func (g *Google) wrap(err error) error {
	fe := &FetchError{Provider: g.Name(), Err: err}
	var apiErr *google.APIError
	if errors.As(err, &apiErr) {
		fe.StatusCode = apiErr.StatusCode
	}
	return fe
}

// isRetryableGoogle treats temporary API errors and transport failures as
// transient. Permanent API statuses (REQUEST_DENIED, INVALID_REQUEST, 4xx)
// and caller cancellation are not retried.
func isRetryableGoogle(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *google.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func detailsToPlace(d google.PlaceDetails, s google.SearchResult, q Query) (model.Place, bool) {
	loc := d.Geometry.Location
	if loc == nil {
		loc = s.Geometry.Location
	}
	if loc == nil {
		return model.Place{}, false
	}

	name := d.Name
	if name == "" {
		name = s.Name
	}
	types := d.Types
	if len(types) == 0 {
		types = s.Types
	}
	placeType := "unknown"
	if len(types) > 0 {
		placeType = types[0]
	}
	address := d.FormattedAddress
	if address == "" {
		address = s.Vicinity
	}

	sig := rating.Signals{
		Entrance: d.WheelchairAccessibleEntrance,
		Restroom: d.WheelchairAccessibleRestroom,
		Seating:  d.WheelchairAccessibleSeating,
		Parking:  d.WheelchairAccessibleParking,
	}
	return buildPlace("google", name, placeType, model.Coordinates{Lat: loc.Lat, Lon: loc.Lng}, sig, address, q)
}
