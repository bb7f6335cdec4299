package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Rating is the accessibility tier assigned to a place. The numeric values
// are persisted and define the scoring order Fully > Partially > Not > Unknown.
type Rating int

const (
	RatingUnknown   Rating = 0
	RatingNot       Rating = 1
	RatingPartially Rating = 2
	RatingFully     Rating = 3
)

// Ratings lists every rating from best to worst.
var Ratings = []Rating{RatingFully, RatingPartially, RatingNot, RatingUnknown}

func (r Rating) String() string {
	switch r {
	case RatingFully:
		return "fully"
	case RatingPartially:
		return "partially"
	case RatingNot:
		return "not"
	default:
		return "unknown"
	}
}

// Label returns the display text used in listings and status lines.
func (r Rating) Label() string {
	switch r {
	case RatingFully:
		return "Fully Accessible"
	case RatingPartially:
		return "Partially Accessible"
	case RatingNot:
		return "Not Accessible"
	default:
		return "Unknown"
	}
}

// Resolved reports whether the rating is one of Fully, Partially or Not.
func (r Rating) Resolved() bool {
	return r == RatingFully || r == RatingPartially || r == RatingNot
}

// Valid reports whether r is a known rating value.
func (r Rating) Valid() bool {
	return r == RatingUnknown || r.Resolved()
}

// ParseRating accepts the rating names ("fully", "partially", "not",
// "unknown") and their numeric forms ("3".."0").
func ParseRating(s string) (Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fully", "fully_accessible", "3":
		return RatingFully, nil
	case "partially", "partially_accessible", "2":
		return RatingPartially, nil
	case "not", "not_accessible", "1":
		return RatingNot, nil
	case "unknown", "0":
		return RatingUnknown, nil
	default:
		return RatingUnknown, eris.Errorf("model: unknown rating %q (valid: fully, partially, not, unknown)", s)
	}
}

// MarshalJSON encodes the rating by name.
func (r Rating) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts either the rating name or its integer value.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		parsed := Rating(n)
		if !parsed.Valid() {
			return eris.Errorf("model: rating out of range: %d", n)
		}
		*r = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "model: decode rating")
	}
	parsed, err := ParseRating(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalYAML encodes the rating by name.
func (r Rating) MarshalYAML() (any, error) {
	return r.String(), nil
}

// Source tells the caller where a result set came from.
type Source string

const (
	SourceLive      Source = "live"
	SourceCached    Source = "cached"
	SourceSynthetic Source = "synthetic"
)

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks that both values are finite and within range.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return eris.Errorf("model: non-finite coordinates (%v, %v)", c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return eris.Errorf("model: latitude %v out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return eris.Errorf("model: longitude %v out of range [-180, 180]", c.Lon)
	}
	return nil
}

// PhysicalAttributes holds optional measurements. A nil field means the
// value is unknown, never zero.
type PhysicalAttributes struct {
	SlopeDeg    *float64 `json:"slope_deg,omitempty" yaml:"slope_deg,omitempty"`
	DoorWidthCM *float64 `json:"door_width_cm,omitempty" yaml:"door_width_cm,omitempty"`
	Surface     *string  `json:"surface,omitempty" yaml:"surface,omitempty"`
}

// Place is the canonical accessibility record shared by every provider,
// the cache and the fallback generator.
type Place struct {
	Name        string             `json:"name" yaml:"name"`
	Type        string             `json:"type" yaml:"type"`
	Location    Coordinates        `json:"location" yaml:"location"`
	Rating      Rating             `json:"accessibility" yaml:"accessibility"`
	Features    []string           `json:"features" yaml:"features"`
	Address     string             `json:"address" yaml:"address"`
	LastUpdated time.Time          `json:"last_updated" yaml:"last_updated"`
	Physical    PhysicalAttributes `json:"physical,omitempty" yaml:"physical,omitempty"`
	Photo       []byte             `json:"-" yaml:"-"`

	// Provider names the source that produced the record.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// HasFeature reports whether any feature contains the given keyword,
// ignoring case.
func (p *Place) HasFeature(keyword string) bool {
	keyword = strings.ToLower(keyword)
	for _, f := range p.Features {
		if strings.Contains(strings.ToLower(f), keyword) {
			return true
		}
	}
	return false
}

// Verification is an append-only community confirmation of a place.
type Verification struct {
	PlaceName string    `json:"place_name" yaml:"place_name"`
	User      string    `json:"user" yaml:"user"`
	Verified  bool      `json:"verified" yaml:"verified"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Float64 returns a pointer to v. Handy for optional attributes.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }
