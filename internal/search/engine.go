// Package search coordinates a search: live providers first, then the
// local cache, then synthetic demo data.
package search

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/wheelmate/wheelmate/internal/aggregate"
	"github.com/wheelmate/wheelmate/internal/config"
	"github.com/wheelmate/wheelmate/internal/fallback"
	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/provider"
	"github.com/wheelmate/wheelmate/internal/store"
	"github.com/wheelmate/wheelmate/pkg/geocode"
)

// DefaultRadiusKM is used when neither the caller nor the config sets a radius.
const DefaultRadiusKM = 10.0

// DemoDataWarning is attached to every synthetic result.
const DemoDataWarning = "Live accessibility data is unavailable; showing generated demo data."

// ErrInvalidQuery is returned when the search text cannot be resolved to a
// location or the coordinates and radius are out of range.
var ErrInvalidQuery = eris.New("search: invalid query")

// Aggregator fetches raw places from the live providers.
type Aggregator interface {
	Aggregate(ctx context.Context, q provider.Query) ([]model.Place, aggregate.Report, error)
}

// Result is the outcome of one search.
type Result struct {
	SearchID string            `json:"search_id" yaml:"search_id"`
	Query    string            `json:"query,omitempty" yaml:"query,omitempty"`
	Location model.Coordinates `json:"location" yaml:"location"`
	City     string            `json:"city,omitempty" yaml:"city,omitempty"`
	RadiusKM float64           `json:"radius_km" yaml:"radius_km"`
	Places   []model.Place     `json:"places" yaml:"places"`
	Source   model.Source      `json:"source" yaml:"source"`
	Warning  string            `json:"warning,omitempty" yaml:"warning,omitempty"`
	Report   aggregate.Report  `json:"-" yaml:"-"`
	Elapsed  time.Duration     `json:"elapsed" yaml:"elapsed"`
}

// Engine is the long-lived search context. It is safe for concurrent use.
type Engine struct {
	cfg      config.SearchConfig
	store    store.Store
	agg      Aggregator
	geocoder geocode.Client
	gen      *fallback.Generator
	now      func() time.Time

	sem   *semaphore.Weighted
	group singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for timings.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithGenerator overrides the synthetic place generator.
func WithGenerator(g *fallback.Generator) Option {
	return func(e *Engine) {
		e.gen = g
	}
}

// New creates an Engine. A zero seed in cfg picks a random generator seed.
func New(cfg config.SearchConfig, st store.Store, agg Aggregator, gc geocode.Client, opts ...Option) *Engine {
	if cfg.RadiusKM <= 0 {
		cfg.RadiusKM = DefaultRadiusKM
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SyntheticCount <= 0 {
		cfg.SyntheticCount = fallback.DefaultCount
	}

	e := &Engine{
		cfg:      cfg,
		store:    st,
		agg:      agg,
		geocoder: gc,
		now:      time.Now,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
	}
	for _, o := range opts {
		o(e)
	}
	if e.gen == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		e.gen = fallback.New(seed, fallback.WithClock(e.now))
	}
	return e
}

// Search resolves query to a location and searches around it. A radius of
// zero uses the configured default.
func (e *Engine) Search(ctx context.Context, query string, radiusKM float64) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.Wrap(ErrInvalidQuery, "empty query")
	}
	if e.geocoder == nil {
		return nil, eris.New("search: no geocoder configured")
	}

	loc, err := e.geocoder.Geocode(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "search: geocode %q", query)
	}
	if loc == nil || !loc.Matched {
		return nil, eris.Wrapf(ErrInvalidQuery, "no location matches %q", query)
	}

	city := loc.City
	if city == "" && !e.cfg.OfflineMode {
		city = e.reverseCity(ctx, loc.Latitude, loc.Longitude)
	}

	res, err := e.SearchAt(ctx, provider.Query{
		Center:   model.Coordinates{Lat: loc.Latitude, Lon: loc.Longitude},
		RadiusKM: radiusKM,
		City:     city,
	})
	if err != nil {
		return nil, err
	}
	res.Query = query
	return res, nil
}

// reverseCity names the locality at lat/lon when the geocoder returned none,
// as for literal coordinates. Lookup failures leave the city empty.
func (e *Engine) reverseCity(ctx context.Context, lat, lon float64) string {
	rev, err := e.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		zap.L().Debug("search: reverse geocode failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return ""
	}
	if rev == nil {
		return ""
	}
	return rev.City
}

// SearchAt searches around an already resolved location. Identical
// concurrent searches share one execution, which is detached from any
// single caller's cancellation: a caller whose ctx ends gets ctx.Err()
// while the others still receive the result.
func (e *Engine) SearchAt(ctx context.Context, q provider.Query) (*Result, error) {
	if q.RadiusKM == 0 {
		q.RadiusKM = e.cfg.RadiusKM
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "search: canceled")
	}

	key := fmt.Sprintf("%.6f|%.6f|%g|%s", q.Center.Lat, q.Center.Lon, q.RadiusKM, q.City)
	ch := e.group.DoChan(key, func() (any, error) {
		return e.run(context.WithoutCancel(ctx), q)
	})

	var shared *Result
	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "search: canceled")
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		shared = r.Val.(*Result)
	}

	// Shared results are copied so callers can sort or filter freely.
	res := *shared
	res.Places = append([]model.Place(nil), shared.Places...)
	return &res, nil
}

// Submit runs Search on the engine's worker pool. The channel receives
// exactly one outcome and is then closed.
func (e *Engine) Submit(ctx context.Context, query string, radiusKM float64) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		if err := e.sem.Acquire(ctx, 1); err != nil {
			out <- Outcome{Err: eris.Wrap(err, "search: wait for worker")}
			return
		}
		defer e.sem.Release(1)

		res, err := e.Search(ctx, query, radiusKM)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

// Outcome is delivered by Submit.
type Outcome struct {
	Result *Result
	Err    error
}

func validateQuery(q provider.Query) error {
	if err := q.Center.Validate(); err != nil {
		return eris.Wrap(ErrInvalidQuery, err.Error())
	}
	if math.IsNaN(q.RadiusKM) || math.IsInf(q.RadiusKM, 0) || q.RadiusKM <= 0 {
		return eris.Wrapf(ErrInvalidQuery, "radius %v km must be positive", q.RadiusKM)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, q provider.Query) (res *Result, err error) {
	start := e.now()
	searchID := uuid.New().String()
	log := zap.L().With(
		zap.String("component", "search"),
		zap.String("search_id", searchID),
		zap.Float64("lat", q.Center.Lat),
		zap.Float64("lon", q.Center.Lon),
		zap.Float64("radius_km", q.RadiusKM),
	)

	res = &Result{
		SearchID: searchID,
		Location: q.Center,
		City:     q.City,
		RadiusKM: q.RadiusKM,
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("search: recovered panic, serving synthetic data", zap.Any("panic", r))
			res.Report = aggregate.Report{}
			e.serveSynthetic(ctx, log, q, res)
			err = nil
		}
		if res != nil {
			res.Elapsed = e.now().Sub(start)
		}
	}()

	if e.cfg.OfflineMode {
		log.Info("search: offline mode, skipping live providers")
	} else if e.serveLive(ctx, log, q, res) {
		return res, nil
	}

	if e.serveCached(ctx, log, q, res) {
		return res, nil
	}

	e.serveSynthetic(ctx, log, q, res)
	return res, nil
}

func (e *Engine) reduceOptions() aggregate.Options {
	return aggregate.Options{
		DropUnknown: e.cfg.DropUnknown,
		MaxResults:  e.cfg.MaxResults,
	}
}

func (e *Engine) serveLive(ctx context.Context, log *zap.Logger, q provider.Query, res *Result) bool {
	if e.agg == nil {
		return false
	}
	raw, report, err := e.agg.Aggregate(ctx, q)
	res.Report = report
	if err != nil {
		log.Warn("search: live providers failed", zap.Error(err))
	} else if failed := report.Failed(); len(failed) > 0 {
		log.Warn("search: some providers failed", zap.Strings("providers", failed))
	}

	places := aggregate.Reduce(raw, q.Center, q.RadiusKM, e.reduceOptions())
	if len(places) == 0 {
		log.Info("search: no live results", zap.Int("raw", len(raw)))
		return false
	}

	if upErr := e.store.Upsert(ctx, places); upErr != nil {
		log.Error("search: cache write failed", zap.Error(upErr))
	}
	res.Places = places
	res.Source = model.SourceLive
	log.Info("search: serving live results", zap.Int("places", len(places)), zap.Int("raw", len(raw)))
	return true
}

func (e *Engine) serveCached(ctx context.Context, log *zap.Logger, q provider.Query, res *Result) bool {
	cached, err := e.store.ReadNear(ctx, q.Center, q.RadiusKM)
	if err != nil {
		log.Error("search: cache read failed", zap.Error(err))
		return false
	}
	if len(cached) == 0 {
		return false
	}

	fresh, err := e.store.IsFresh(ctx, q.Center, q.RadiusKM)
	if err != nil {
		log.Error("search: cache freshness check failed", zap.Error(err))
		return false
	}
	if !fresh {
		log.Info("search: cached results are stale", zap.Int("places", len(cached)))
		return false
	}

	places := aggregate.Reduce(cached, q.Center, q.RadiusKM, e.reduceOptions())
	if len(places) == 0 {
		return false
	}
	res.Places = places
	res.Source = model.SourceCached
	if hasSynthetic(places) {
		res.Warning = DemoDataWarning
	}
	log.Info("search: serving cached results", zap.Int("places", len(places)))
	return true
}

// hasSynthetic reports whether any cached place was generated demo data.
func hasSynthetic(places []model.Place) bool {
	for _, p := range places {
		if p.Provider == fallback.ProviderName {
			return true
		}
	}
	return false
}

func (e *Engine) serveSynthetic(ctx context.Context, log *zap.Logger, q provider.Query, res *Result) {
	places := e.gen.Synthesize(q.Center, q.RadiusKM, q.City, e.cfg.SyntheticCount)
	if err := e.store.Upsert(ctx, places); err != nil {
		log.Error("search: cache write of synthetic places failed", zap.Error(err))
	}
	res.Places = places
	res.Source = model.SourceSynthetic
	res.Warning = DemoDataWarning
	log.Warn("search: serving synthetic demo data", zap.Int("places", len(places)))
}
