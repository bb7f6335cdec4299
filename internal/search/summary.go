package search

import (
	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
)

var quadrants = []geo.Quadrant{geo.QuadrantNE, geo.QuadrantNW, geo.QuadrantSE, geo.QuadrantSW}

// Summary describes the accessibility of an area at a glance. Rating keys
// are rating names ("fully", "partially", "not", "unknown").
type Summary struct {
	Total                int                  `json:"total" yaml:"total"`
	ByRating             map[string]int       `json:"by_rating" yaml:"by_rating"`
	ByQuadrant           map[geo.Quadrant]int `json:"by_quadrant" yaml:"by_quadrant"`
	AccessibleByQuadrant map[geo.Quadrant]int `json:"accessible_by_quadrant" yaml:"accessible_by_quadrant"`
	AccessibleShare      float64              `json:"accessible_share" yaml:"accessible_share"`
	NearestAccessibleKM  *float64             `json:"nearest_accessible_km,omitempty" yaml:"nearest_accessible_km,omitempty"`
}

// Summarize counts places per rating and per quadrant around center. The
// accessible share counts fully and partially accessible places.
func Summarize(center model.Coordinates, places []model.Place) Summary {
	s := Summary{
		Total:                len(places),
		ByRating:             make(map[string]int, len(model.Ratings)),
		ByQuadrant:           make(map[geo.Quadrant]int, len(quadrants)),
		AccessibleByQuadrant: make(map[geo.Quadrant]int, len(quadrants)),
	}
	for _, r := range model.Ratings {
		s.ByRating[r.String()] = 0
	}
	for _, q := range quadrants {
		s.ByQuadrant[q] = 0
		s.AccessibleByQuadrant[q] = 0
	}

	accessible := 0
	for _, p := range places {
		q := geo.QuadrantOf(center, p.Location)
		s.ByRating[p.Rating.String()]++
		s.ByQuadrant[q]++
		if !IsAccessible(p.Rating) {
			continue
		}
		accessible++
		s.AccessibleByQuadrant[q]++
		d := geo.Distance(center, p.Location)
		if s.NearestAccessibleKM == nil || d < *s.NearestAccessibleKM {
			s.NearestAccessibleKM = &d
		}
	}
	if len(places) > 0 {
		s.AccessibleShare = float64(accessible) / float64(len(places))
	}
	return s
}
