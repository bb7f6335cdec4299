package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocodeNominatim_City(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Paris", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "wheelmate-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `[{
			"lat": "48.8588897", "lon": "2.3200410",
			"display_name": "Paris, Ile-de-France, France",
			"addresstype": "city",
			"address": {"city": "Paris", "country": "France"}
		}]`)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL, "", "")
	result, err := g.geocodeNominatim(context.Background(), "Paris")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 48.8588897, result.Latitude, 1e-7)
	assert.InDelta(t, 2.3200410, result.Longitude, 1e-7)
	assert.Equal(t, "Paris", result.City)
	assert.Equal(t, "nominatim", result.Source)
	assert.Equal(t, "centroid", result.Quality)
}

func TestGeocodeNominatim_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL, "", "")
	result, err := g.geocodeNominatim(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocodeNominatim_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "north", "lon": "2.0"}]`)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL, "", "")
	_, err := g.geocodeNominatim(context.Background(), "x")
	assert.ErrorContains(t, err, "bad latitude")
}

func TestGeocodeNominatim_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL, "", "")
	_, err := g.geocodeNominatim(context.Background(), "x")
	assert.ErrorContains(t, err, "429")
}

func TestNominatimQuality(t *testing.T) {
	assert.Equal(t, "rooftop", nominatimQuality("amenity"))
	assert.Equal(t, "range", nominatimQuality("road"))
	assert.Equal(t, "centroid", nominatimQuality("town"))
	assert.Equal(t, "approximate", nominatimQuality("country"))
}
