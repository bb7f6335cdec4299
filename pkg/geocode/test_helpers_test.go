package geocode

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newTestGeocoder returns a geocoder pointed at a test Nominatim server with
// Google requests redirected to googleSrv (if non-empty).
func newTestGeocoder(nominatimSrv, googleSrv, googleKey string) *geocoder {
	hc := http.DefaultClient
	if googleSrv != "" {
		hc = newRewriteClient(googleSrv, googleGeocodeURL)
	}
	return &geocoder{
		httpClient:   hc,
		googleKey:    googleKey,
		nominatimURL: nominatimSrv,
		userAgent:    "wheelmate-test",
		limiter:      newTestLimiter(),
		cache:        newMemoryCache(time.Hour),
	}
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if !strings.HasPrefix(origURL, t.targetPrefix) {
		return t.base.RoundTrip(req)
	}
	parsed, err := req.URL.Parse(t.testServer + origURL[len(t.targetPrefix):])
	if err != nil {
		return nil, err
	}
	newReq := req.Clone(req.Context())
	newReq.URL = parsed
	newReq.Host = parsed.Host
	return t.base.RoundTrip(newReq)
}
