// Package geo provides the great-circle helpers used for radius filtering,
// cache pre-filtering and synthetic place placement.
package geo

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/wheelmate/wheelmate/internal/model"
)

// EarthRadiusKM is the mean Earth radius used by every distance computation.
const EarthRadiusKM = 6371.0

// KMPerDegreeLat is a conservative lower bound for the length of one degree
// of latitude. Using a slightly short value keeps bounding boxes a superset
// of the radius circle.
const KMPerDegreeLat = 110.0

func toRadians(d float64) float64 { return d * math.Pi / 180 }

func toDegrees(r float64) float64 { return r * 180 / math.Pi }

// Distance returns the haversine distance between two points in kilometres.
func Distance(p1, p2 model.Coordinates) float64 {
	lat1, lon1 := toRadians(p1.Lat), toRadians(p1.Lon)
	lat2, lon2 := toRadians(p2.Lat), toRadians(p2.Lon)

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}
	return EarthRadiusKM * 2 * math.Asin(math.Sqrt(a))
}

// Within reports whether p lies inside the closed disc of radiusKM around center.
func Within(center, p model.Coordinates, radiusKM float64) bool {
	return Distance(center, p) <= radiusKM
}

// BoundingBox returns a lon/lat box (X = lon, Y = lat) that contains every
// point within radiusKM of center. A circle that reaches a pole, or a box
// that would cross the antimeridian, spans the full longitude range.
func BoundingBox(center model.Coordinates, radiusKM float64) *geom.Bounds {
	dLat := radiusKM / KMPerDegreeLat

	minLon, maxLon := -180.0, 180.0
	if math.Abs(center.Lat)+dLat < 90 {
		// Widest longitude offset of a spherical circle of angular radius d.
		d := radiusKM / EarthRadiusKM
		if s := math.Sin(d) / math.Cos(toRadians(center.Lat)); d < math.Pi/2 && s < 1 {
			dLon := toDegrees(math.Asin(s)) + lonMarginDeg
			if center.Lon-dLon >= -180 && center.Lon+dLon <= 180 {
				minLon, maxLon = center.Lon-dLon, center.Lon+dLon
			}
		}
	}

	return geom.NewBounds(geom.XY).Set(
		minLon,
		math.Max(center.Lat-dLat, -90),
		maxLon,
		math.Min(center.Lat+dLat, 90),
	)
}

// lonMarginDeg absorbs rounding at the exact circle edge.
const lonMarginDeg = 1e-9

// InBounds reports whether p falls inside b (edges included).
func InBounds(b *geom.Bounds, p model.Coordinates) bool {
	return b.OverlapsPoint(geom.XY, geom.Coord{p.Lon, p.Lat})
}

// Offset moves center by distanceKM along the given bearing (radians,
// clockwise from north) on the sphere.
func Offset(center model.Coordinates, distanceKM, bearing float64) model.Coordinates {
	lat1 := toRadians(center.Lat)
	lon1 := toRadians(center.Lon)
	d := distanceKM / EarthRadiusKM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon := toDegrees(lon2)
	// Normalize to [-180, 180].
	lon = math.Mod(lon+540, 360) - 180
	return model.Coordinates{Lat: toDegrees(lat2), Lon: lon}
}

// SortByDistance orders places by proximity to center, nearest first. Ties
// keep their input order.
func SortByDistance(center model.Coordinates, places []model.Place) {
	sort.SliceStable(places, func(i, j int) bool {
		return Distance(center, places[i].Location) < Distance(center, places[j].Location)
	})
}

// Quadrant names the compass quarter a point lies in relative to a center.
type Quadrant string

const (
	QuadrantNE Quadrant = "NE"
	QuadrantNW Quadrant = "NW"
	QuadrantSE Quadrant = "SE"
	QuadrantSW Quadrant = "SW"
)

// QuadrantOf returns the quadrant of p around center. Points on an axis
// fall to the north and east sides.
func QuadrantOf(center, p model.Coordinates) Quadrant {
	north := p.Lat >= center.Lat
	east := p.Lon >= center.Lon
	switch {
	case north && east:
		return QuadrantNE
	case north:
		return QuadrantNW
	case east:
		return QuadrantSE
	default:
		return QuadrantSW
	}
}
