// Package aggregate fans a query out to every registered provider, joins
// the outcomes in registration order and reduces them to one deduplicated,
// radius-bounded result list.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/provider"
	"github.com/wheelmate/wheelmate/internal/resilience"
)

// Outcome is the result of one provider within a single aggregation.
type Outcome struct {
	Provider string
	Count    int
	Elapsed  time.Duration
	Err      error
}

// Report lists every provider outcome in registration order.
type Report struct {
	Outcomes []Outcome
}

// Succeeded returns the number of providers that returned without error.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the names of the providers that failed.
func (r Report) Failed() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Err != nil {
			names = append(names, o.Provider)
		}
	}
	return names
}

// TotalFailureError is returned when no provider succeeded.
type TotalFailureError struct {
	// Causes holds every provider error combined with multierr.
	Causes error
}

func (e *TotalFailureError) Error() string {
	if e.Causes == nil {
		return "aggregate: no providers registered"
	}
	errs := multierr.Errors(e.Causes)
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("aggregate: all %d providers failed: %s", len(errs), strings.Join(msgs, "; "))
}

func (e *TotalFailureError) Unwrap() []error {
	return multierr.Errors(e.Causes)
}

// Aggregator runs every registered provider concurrently.
type Aggregator struct {
	reg      *provider.Registry
	breakers *resilience.ServiceBreakers
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBreakers puts each provider behind its own circuit breaker.
func WithBreakers(sb *resilience.ServiceBreakers) Option {
	return func(a *Aggregator) {
		a.breakers = sb
	}
}

// New creates an Aggregator over reg.
func New(reg *provider.Registry, opts ...Option) *Aggregator {
	a := &Aggregator{reg: reg}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate fetches from every provider and concatenates the successful
// lists in registration order. A failing provider never aborts the others.
// When every provider fails the error is a *TotalFailureError.
func (a *Aggregator) Aggregate(ctx context.Context, q provider.Query) ([]model.Place, Report, error) {
	log := zap.L().With(zap.String("component", "aggregate"))
	providers := a.reg.All()
	if len(providers) == 0 {
		return nil, Report{}, &TotalFailureError{}
	}

	type slot struct {
		places []model.Place
		out    Outcome
	}
	slots := make([]slot, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			start := time.Now()
			places, err := a.fetch(ctx, p, q)
			slots[i] = slot{
				places: places,
				out: Outcome{
					Provider: p.Name(),
					Count:    len(places),
					Elapsed:  time.Since(start),
					Err:      err,
				},
			}
			return nil // per-provider failures are recorded, not propagated
		})
	}
	_ = g.Wait()

	var (
		all    []model.Place
		causes error
		report = Report{Outcomes: make([]Outcome, 0, len(slots))}
	)
	for _, s := range slots {
		report.Outcomes = append(report.Outcomes, s.out)
		if s.out.Err != nil {
			log.Warn("provider failed",
				zap.String("provider", s.out.Provider),
				zap.Duration("elapsed", s.out.Elapsed),
				zap.Error(s.out.Err),
			)
			causes = multierr.Append(causes, s.out.Err)
			continue
		}
		all = append(all, s.places...)
	}

	if report.Succeeded() == 0 {
		return nil, report, &TotalFailureError{Causes: causes}
	}

	log.Debug("aggregation complete",
		zap.Int("places", len(all)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Strings("failed", report.Failed()),
	)
	return all, report, nil
}

// fetch calls one provider, converting a panic into that provider's error.
func (a *Aggregator) fetch(ctx context.Context, p provider.Provider, q provider.Query) (places []model.Place, err error) {
	defer func() {
		if r := recover(); r != nil {
			places = nil
			err = &provider.FetchError{Provider: p.Name(), Err: eris.Errorf("panic: %v", r)}
		}
	}()

	if a.breakers == nil {
		return p.Fetch(ctx, q)
	}
	return resilience.ExecuteVal(ctx, a.breakers.Get(p.Name()), func(ctx context.Context) ([]model.Place, error) {
		return p.Fetch(ctx, q)
	})
}
