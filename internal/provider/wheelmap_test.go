package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/rating"
)

func wheelmapPage(page, numPages int, nodes ...string) string {
	return fmt.Sprintf(`{"meta": {"page": %d, "num_pages": %d}, "nodes": [%s]}`, page, numPages, strings.Join(nodes, ","))
}

func wheelmapNodeJSON(id int, name, wheelchair string, lat, lon float64) string {
	return fmt.Sprintf(`{"id": %d, "name": %q, "wheelchair": %q, "lat": %f, "lon": %f,
		"node_type": {"identifier": "restaurant"}, "street": "Rue Saint-Denis", "housenumber": "%d", "city": "Paris"}`,
		id, name, wheelchair, lat, lon, id)
}

func TestWheelmap_NoKey(t *testing.T) {
	w := NewWheelmap(http.DefaultClient, "http://127.0.0.1:0", "", testOptions())
	places, err := w.Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	assert.NotNil(t, places)
	assert.Empty(t, places)
}

func TestWheelmap_Paging(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "secret", q.Get("api_key"))
		bbox := strings.Split(q.Get("bbox"), ",")
		require.Len(t, bbox, 4)
		west, _ := strconv.ParseFloat(bbox[0], 64)
		north, _ := strconv.ParseFloat(bbox[3], 64)
		assert.Less(t, west, 2.3522)
		assert.Greater(t, north, 48.8566)

		switch q.Get("page") {
		case "1":
			_, _ = io.WriteString(w, wheelmapPage(1, 5,
				wheelmapNodeJSON(1, "Le Comptoir", "yes", 48.857, 2.351),
				wheelmapNodeJSON(2, "", "limited", 48.858, 2.352)))
		case "2":
			_, _ = io.WriteString(w, wheelmapPage(2, 5,
				wheelmapNodeJSON(3, "Chez Nous", "no", 48.859, 2.353)))
		case "3":
			_, _ = io.WriteString(w, wheelmapPage(3, 5,
				wheelmapNodeJSON(4, "Bistro", "unknown", 48.86, 2.354)))
		default:
			t.Errorf("unexpected page %s", q.Get("page"))
		}
	}))
	defer srv.Close()

	w := NewWheelmap(srv.Client(), srv.URL, "secret", testOptions())
	places, err := w.Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "first page plus two extra pages")
	require.Len(t, places, 4)

	assert.Equal(t, "Le Comptoir", places[0].Name)
	assert.Equal(t, "restaurant", places[0].Type)
	assert.Equal(t, model.RatingFully, places[0].Rating)
	assert.Equal(t, "Rue Saint-Denis 1, Paris", places[0].Address)
	assert.Equal(t, "Restaurant near Paris", places[1].Name)
	assert.Equal(t, model.RatingPartially, places[1].Rating)
	assert.Equal(t, model.RatingNot, places[2].Rating)
	assert.Equal(t, model.RatingUnknown, places[3].Rating)
}

func TestWheelmap_StopsAtLastPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, wheelmapPage(1, 1, wheelmapNodeJSON(1, "Solo", "yes", 48.857, 2.351)))
	}))
	defer srv.Close()

	places, err := NewWheelmap(srv.Client(), srv.URL, "k", testOptions()).Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Len(t, places, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWheelmap_ExtraPageFailureKeepsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_, _ = io.WriteString(w, wheelmapPage(1, 3, wheelmapNodeJSON(1, "First", "yes", 48.857, 2.351)))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	places, err := NewWheelmap(srv.Client(), srv.URL, "k", testOptions()).Fetch(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "First", places[0].Name)
}

func TestWheelmap_FirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewWheelmap(srv.Client(), srv.URL, "bad", testOptions()).Fetch(context.Background(), testQuery())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "wheelmap", fe.Provider)
	assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
}

func TestWheelmapNode_Restroom(t *testing.T) {
	n := wheelmapNode{Name: "WC", Lat: 48.85, Lon: 2.35, Wheelchair: "yes", WheelchairToilet: "yes"}
	p, ok := n.toPlace(testQuery())
	require.True(t, ok)
	assert.Equal(t, []string{rating.FeatureRestroom}, p.Features)
	assert.Equal(t, "unknown", p.Type)
}
