// Package fallback generates synthetic places around a point when neither
// live providers nor the cache can answer a search.
package fallback

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/rating"
)

// DefaultCount is the number of places Synthesize produces by default.
const DefaultCount = 12

// ProviderName tags synthetic places.
const ProviderName = "synthetic"

// minDistanceKM keeps synthetic places off the center point.
const minDistanceKM = 0.1

// PlaceTypes lists the venue types synthetic places are drawn from.
var PlaceTypes = []string{"cafe", "restaurant", "museum", "park", "library", "hotel", "bar"}

// Generator produces deterministic synthetic places. The same seed and the
// same inputs always yield the same places, so repeat searches in one
// session are stable.
type Generator struct {
	seed uint64
	now  func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator with the given seed.
func New(seed uint64, opts ...Option) *Generator {
	g := &Generator{seed: seed, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Synthesize places count synthetic places around center. Place i sits at
// bearing i*2π/count and a random distance in [0.1, radiusKM); radii below
// 0.1 km use [radiusKM/2, radiusKM). A count below 1 uses DefaultCount.
func (g *Generator) Synthesize(center model.Coordinates, radiusKM float64, city string, count int) []model.Place {
	if count < 1 {
		count = DefaultCount
	}
	if radiusKM <= 0 || math.IsNaN(radiusKM) {
		return []model.Place{}
	}

	rng := rand.New(rand.NewPCG(g.seed, streamFor(center, radiusKM, count)))
	title := cases.Title(language.English)
	address := addressFor(center, city)
	now := g.now().UTC()

	lo := minDistanceKM
	if radiusKM < minDistanceKM {
		lo = radiusKM / 2
	}

	places := make([]model.Place, 0, count)
	for i := range count {
		bearing := float64(i) * 2 * math.Pi / float64(count)
		dist := lo + rng.Float64()*(radiusKM-lo)
		typ := PlaceTypes[rng.IntN(len(PlaceTypes))]
		r := model.Rating(rng.IntN(3) + 1)

		places = append(places, model.Place{
			Name:        fmt.Sprintf("%s %d", title.String(typ), i+1),
			Type:        typ,
			Location:    geo.Offset(center, dist, bearing),
			Rating:      r,
			Features:    rating.FeaturesFor(r),
			Address:     address,
			LastUpdated: now,
			Provider:    ProviderName,
		})
	}
	return places
}

// streamFor derives the PCG stream from the inputs so different searches
// get different places under one seed.
func streamFor(center model.Coordinates, radiusKM float64, count int) uint64 {
	s := math.Float64bits(center.Lat)
	s = s*31 ^ math.Float64bits(center.Lon)
	s = s*31 ^ math.Float64bits(radiusKM)
	return s*31 ^ uint64(count)
}

func addressFor(center model.Coordinates, city string) string {
	if city != "" {
		return "Near " + city
	}
	return fmt.Sprintf("Near %.4f, %.4f", center.Lat, center.Lon)
}
