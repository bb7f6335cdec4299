// Package rating maps provider accessibility signals onto the four-tier
// model.Rating and derives the human-readable feature list. Everything here
// is pure so it can be tested without a network.
package rating

import (
	"strings"

	"github.com/wheelmate/wheelmate/internal/model"
)

// Level is an enumerated overall accessibility flag as reported by sources
// such as OSM (wheelchair=yes|limited|no) or Wheelmap.
type Level int

const (
	// LevelUnreported means the source said nothing about overall access.
	LevelUnreported Level = iota
	LevelYes
	LevelLimited
	LevelNo
)

// ParseLevel maps the common OSM/Wheelmap vocabulary onto a Level. Values
// such as "unknown" or anything unrecognized yield LevelUnreported.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "designated", "fully_accessible", "full":
		return LevelYes
	case "limited", "partial", "partially_accessible":
		return LevelLimited
	case "no", "not_accessible":
		return LevelNo
	default:
		return LevelUnreported
	}
}

// Signals is the provider-agnostic set of accessibility facts about one
// record. A nil pointer means the provider did not report that flag.
type Signals struct {
	Overall  Level
	Entrance *bool
	Restroom *bool
	Elevator *bool
	Ramp     *bool
	Seating  *bool
	Parking  *bool
}

// Feature names, in the order Features emits them.
const (
	FeatureEntrance = "Wheelchair-accessible entrance"
	FeatureRestroom = "Wheelchair-accessible restroom"
	FeatureElevator = "Elevator"
	FeatureRamp     = "Ramp"
	FeatureSeating  = "Wheelchair-accessible seating"
	FeatureParking  = "Wheelchair-accessible parking"
)

// AllFeatures is the full feature list in canonical order.
var AllFeatures = []string{
	FeatureEntrance,
	FeatureRestroom,
	FeatureElevator,
	FeatureRamp,
	FeatureSeating,
	FeatureParking,
}

type flag struct {
	value   *bool
	feature string
}

func (s Signals) flags() []flag {
	return []flag{
		{s.Entrance, FeatureEntrance},
		{s.Restroom, FeatureRestroom},
		{s.Elevator, FeatureElevator},
		{s.Ramp, FeatureRamp},
		{s.Seating, FeatureSeating},
		{s.Parking, FeatureParking},
	}
}

// Reported reports whether the record carries any accessibility metadata.
func (s Signals) Reported() bool {
	if s.Overall != LevelUnreported {
		return true
	}
	for _, f := range s.flags() {
		if f.value != nil {
			return true
		}
	}
	return false
}

// Classify returns the rating for a record. An overall level wins when
// present; otherwise the rating is computed from the reported booleans:
//
//	Fully      every reported flag is true and the entrance is true
//	Partially  at least one reported flag is true
//	Not        every reported flag is false
//	Unknown    nothing reported
func Classify(s Signals) model.Rating {
	switch s.Overall {
	case LevelYes:
		return model.RatingFully
	case LevelLimited:
		return model.RatingPartially
	case LevelNo:
		return model.RatingNot
	}

	var reported, trueCount int
	for _, f := range s.flags() {
		if f.value == nil {
			continue
		}
		reported++
		if *f.value {
			trueCount++
		}
	}

	switch {
	case reported == 0:
		return model.RatingUnknown
	case trueCount == 0:
		return model.RatingNot
	case trueCount == reported && s.Entrance != nil && *s.Entrance:
		return model.RatingFully
	default:
		return model.RatingPartially
	}
}

// Features lists the features of every flag reported true, in canonical
// order. Flags the provider did not report never produce a feature.
func Features(s Signals) []string {
	out := []string{}
	for _, f := range s.flags() {
		if f.value != nil && *f.value {
			out = append(out, f.feature)
		}
	}
	return out
}

// FeaturesFor returns the feature set the fallback generator attaches to a
// synthetic place of the given rating.
func FeaturesFor(r model.Rating) []string {
	switch r {
	case model.RatingFully:
		return append([]string(nil), AllFeatures...)
	case model.RatingPartially:
		return []string{FeatureEntrance}
	default:
		return []string{}
	}
}

// Bool returns a pointer to b, for building Signals.
func Bool(b bool) *bool { return &b }
