package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wheelmate/wheelmate/internal/resilience"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 32 << 20

// requester issues JSON GET requests for one provider with its own rate
// limiter, per-request timeout and retry policy.
type requester struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
}

func newRequester(name string, hc *http.Client, opts Options) *requester {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &requester{
		name:    name,
		client:  hc,
		limiter: newLimiter(opts.RateLimit),
		opts:    opts,
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// getJSON fetches url and decodes the body into out, retrying transient
// failures under the provider's policy. The final error is a *FetchError.
func (r *requester) getJSON(ctx context.Context, operation, url string, out any) error {
	policy := r.opts.Policy.WithLogging(r.name, operation)
	err := resilience.Do(ctx, policy, func(ctx context.Context) error {
		return r.attempt(ctx, url, out)
	})
	if err == nil {
		return nil
	}
	return r.fetchError(err)
}

// attempt performs a single request bounded by the per-request timeout.
func (r *requester) attempt(ctx context.Context, url string, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "%s: rate limit", r.name)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: build request", r.name)
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return resilience.NewTransientError(eris.Wrapf(err, "%s: request", r.name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "%s: read body", r.name), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &FetchError{Provider: r.name, StatusCode: resp.StatusCode, Err: eris.New(snippet(body))}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		// A truncated or garbled page is usually a flaky upstream.
		return resilience.NewTransientError(eris.Wrapf(err, "%s: malformed payload", r.name), resp.StatusCode)
	}
	return nil
}

func (r *requester) fetchError(err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	status := 0
	var te *resilience.TransientError
	if errors.As(err, &te) {
		status = te.StatusCode
	}
	zap.L().Debug("provider request failed",
		zap.String("provider", r.name),
		zap.Int("status", status),
		zap.Error(err),
	)
	return &FetchError{Provider: r.name, StatusCode: status, Err: err}
}

// snippet returns a short single-line excerpt of a response body.
func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
