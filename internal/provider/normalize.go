package provider

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/rating"
)

// normalizeType lower-cases a provider category and turns separators into
// spaces ("tourist_attraction" -> "tourist attraction").
func normalizeType(t string) string {
	t = strings.TrimSpace(strings.ReplaceAll(t, "_", " "))
	if t == "" {
		return "unknown"
	}
	return cases.Lower(language.Und).String(t)
}

// synthesizeName builds a display name for records that have none.
func synthesizeName(placeType, city string) string {
	label := cases.Title(language.English).String(placeType)
	if placeType == "" || placeType == "unknown" {
		label = "Venue"
	}
	if city == "" {
		return label
	}
	return label + " near " + city
}

// placeholderAddress is used when a provider has no address for a record.
func placeholderAddress(city string) string {
	if city == "" {
		return ""
	}
	return "Near " + city
}

// buildPlace assembles a Place from normalized pieces, classifying the
// signals and deriving the features from the flags the provider reported.
// It returns false when the coordinates are unusable.
func buildPlace(provider, name, placeType string, loc model.Coordinates, sig rating.Signals, address string, q Query) (model.Place, bool) {
	if loc.Validate() != nil || (loc.Lat == 0 && loc.Lon == 0) {
		return model.Place{}, false
	}

	placeType = normalizeType(placeType)
	name = strings.TrimSpace(name)
	if name == "" {
		name = synthesizeName(placeType, q.City)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		address = placeholderAddress(q.City)
	}

	return model.Place{
		Name:     name,
		Type:     placeType,
		Location: loc,
		Rating:   rating.Classify(sig),
		Features: rating.Features(sig),
		Address:  address,
		Provider: provider,
	}, true
}

// yesNo parses an OSM-style yes/no tag. Anything else is unreported.
func yesNo(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "designated", "true", "1":
		return rating.Bool(true)
	case "no", "false", "0":
		return rating.Bool(false)
	default:
		return nil
	}
}

var numberRe = regexp.MustCompile(`^\s*(-?[0-9]+(?:[.,][0-9]+)?)\s*([a-z%°"']*)\s*$`)

// parseIncline converts an OSM incline value ("10%", "-6%", "5°") to
// degrees. Directional values such as "up" are unknown.
func parseIncline(v string) *float64 {
	m := numberRe.FindStringSubmatch(strings.ToLower(v))
	if m == nil {
		return nil
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return nil
	}
	n = math.Abs(n)
	switch m[2] {
	case "%", "":
		deg := math.Atan(n/100) * 180 / math.Pi
		return &deg
	case "°", "deg":
		return &n
	default:
		return nil
	}
}

// parseWidthCM converts an OSM width ("0.9", "0.9 m", "90 cm", "90") to
// centimeters. Bare numbers below 3 are taken as meters, as OSM prescribes.
func parseWidthCM(v string) *float64 {
	m := numberRe.FindStringSubmatch(strings.ToLower(v))
	if m == nil {
		return nil
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || n <= 0 {
		return nil
	}
	var cm float64
	switch m[2] {
	case "cm":
		cm = n
	case "m":
		cm = n * 100
	case "mm":
		cm = n / 10
	case "":
		if n < 3 {
			cm = n * 100
		} else {
			cm = n
		}
	default:
		return nil
	}
	cm = math.Round(cm*10) / 10
	return &cm
}

// optionalString returns nil for blank values.
func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "unknown") {
		return nil
	}
	return &v
}
