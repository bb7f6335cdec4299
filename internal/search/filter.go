package search

import (
	"strings"

	"github.com/wheelmate/wheelmate/internal/model"
)

// Feature keys accepted by Filter.Features.
const (
	FeatureRamp     = "ramp"
	FeatureRestroom = "restroom"
	FeatureElevator = "elevator"
	FeatureWideDoor = "wide_door"
)

// WideDoorCM is the narrowest door counted as wide.
const WideDoorCM = 80.0

// smoothSurfaces are the surface values accepted by Filter.SmoothSurface.
var smoothSurfaces = []string{"smooth", "paved"}

// Filter narrows a result list. The zero Filter keeps every place.
//
// Unknown physical attributes never exclude a place unless the filter
// requires that attribute: MaxSlopeDeg only drops places with a known slope
// above it, while RequireLowSlope also drops places whose slope is unknown.
type Filter struct {
	Features        []string
	SmoothSurface   bool
	MaxSlopeDeg     *float64
	RequireLowSlope bool
	MinDoorWidthCM  *float64
	MinRating       model.Rating
	Types           []string
}

// Apply returns the places that match f, preserving order.
func (f Filter) Apply(places []model.Place) []model.Place {
	out := make([]model.Place, 0, len(places))
	for _, p := range places {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Match reports whether p passes every criterion of f.
func (f Filter) Match(p model.Place) bool {
	if f.MinRating != model.RatingUnknown && p.Rating < f.MinRating {
		return false
	}
	if len(f.Types) > 0 && !matchesType(p.Type, f.Types) {
		return false
	}
	for _, feat := range f.Features {
		if !hasFeature(p, feat) {
			return false
		}
	}

	phys := p.Physical
	if f.SmoothSurface && (phys.Surface == nil || !isSmooth(*phys.Surface)) {
		return false
	}
	if f.MaxSlopeDeg != nil {
		if phys.SlopeDeg == nil {
			if f.RequireLowSlope {
				return false
			}
		} else if *phys.SlopeDeg > *f.MaxSlopeDeg {
			return false
		}
	}
	if f.MinDoorWidthCM != nil && phys.DoorWidthCM != nil && *phys.DoorWidthCM < *f.MinDoorWidthCM {
		return false
	}
	return true
}

func hasFeature(p model.Place, key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case FeatureRamp:
		return p.HasFeature("ramp")
	case FeatureRestroom:
		return p.HasFeature("restroom")
	case FeatureElevator:
		return p.HasFeature("elevator")
	case FeatureWideDoor:
		if p.Physical.DoorWidthCM != nil {
			return *p.Physical.DoorWidthCM >= WideDoorCM
		}
		return p.HasFeature("wide door")
	default:
		return p.HasFeature(key)
	}
}

func isSmooth(surface string) bool {
	surface = strings.ToLower(strings.TrimSpace(surface))
	for _, s := range smoothSurfaces {
		if surface == s {
			return true
		}
	}
	return false
}

func matchesType(t string, types []string) bool {
	for _, want := range types {
		if strings.EqualFold(strings.TrimSpace(want), t) {
			return true
		}
	}
	return false
}

// ParseFeatures splits a comma-separated feature list into known keys and
// unrecognized ones.
func ParseFeatures(s string) ([]string, []string) {
	var ok, unknown []string
	for _, part := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		switch key {
		case "":
		case FeatureRamp, FeatureRestroom, FeatureElevator, FeatureWideDoor:
			ok = append(ok, key)
		default:
			unknown = append(unknown, key)
		}
	}
	return ok, unknown
}

// IsAccessible reports whether the rating counts as accessible in summaries.
func IsAccessible(r model.Rating) bool {
	return r == model.RatingFully || r == model.RatingPartially
}
