package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/rating"
)

// DefaultOverpassURL is the public Overpass API interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// Overpass queries OpenStreetMap for features tagged wheelchair=*.
type Overpass struct {
	baseURL string
	req     *requester
}

// NewOverpass creates an Overpass provider. An empty baseURL uses
// DefaultOverpassURL.
func NewOverpass(hc *http.Client, baseURL string, opts Options) *Overpass {
	if baseURL == "" {
		baseURL = DefaultOverpassURL
	}
	opts = opts.withDefaults()
	return &Overpass{
		baseURL: baseURL,
		req:     newRequester("osm", hc, opts),
	}
}

// Name implements Provider.
func (o *Overpass) Name() string { return "osm" }

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// buildOverpassQuery returns the Overpass QL for every node and way tagged
// with wheelchair information within radius meters of the point.
func buildOverpassQuery(q Query, timeoutSecs int) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", q.RadiusMeters(),
		formatCoord(q.Center.Lat), formatCoord(q.Center.Lon))
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeoutSecs)
	for _, sel := range []string{
		`node["wheelchair"]`,
		`way["wheelchair"]`,
		`node["toilets:wheelchair"]`,
	} {
		b.WriteString("  " + sel + around + ";\n")
	}
	b.WriteString(");\nout center;\n")
	return b.String()
}

// Fetch implements Provider.
func (o *Overpass) Fetch(ctx context.Context, q Query) ([]model.Place, error) {
	timeoutSecs := int(o.req.opts.Timeout.Seconds())
	if timeoutSecs < 1 {
		timeoutSecs = 1
	}
	u := o.baseURL + "?" + url.Values{"data": {buildOverpassQuery(q, timeoutSecs)}}.Encode()

	var resp overpassResponse
	if err := o.req.getJSON(ctx, "interpreter", u, &resp); err != nil {
		return nil, err
	}

	places := make([]model.Place, 0, min(len(resp.Elements), o.req.opts.MaxResults))
	for _, el := range resp.Elements {
		if len(places) >= o.req.opts.MaxResults {
			break
		}
		if p, ok := el.toPlace(q); ok {
			places = append(places, p)
		}
	}

	zap.L().Debug("overpass fetch complete",
		zap.Int("elements", len(resp.Elements)),
		zap.Int("places", len(places)),
	)
	return places, nil
}

func (el overpassElement) location() (model.Coordinates, bool) {
	switch {
	case el.Type == "node":
		return model.Coordinates{Lat: el.Lat, Lon: el.Lon}, true
	case el.Center != nil:
		return model.Coordinates{Lat: el.Center.Lat, Lon: el.Center.Lon}, true
	default:
		return model.Coordinates{}, false
	}
}

// osmType picks the most descriptive category tag.
func osmType(tags map[string]string) string {
	for _, k := range []string{"amenity", "shop", "tourism", "leisure", "healthcare", "destination", "public_transport", "highway"} {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return "unknown"
}

// osmSignals maps the OSM wheelchair tagging scheme onto rating signals.
func osmSignals(tags map[string]string) rating.Signals {
	ramp := yesNo(tags["ramp:wheelchair"])
	if ramp == nil {
		ramp = yesNo(tags["ramp"])
	}
	return rating.Signals{
		Overall:  rating.ParseLevel(tags["wheelchair"]),
		Entrance: yesNo(tags["entrance:wheelchair"]),
		Restroom: yesNo(tags["toilets:wheelchair"]),
		Elevator: yesNo(tags["elevator"]),
		Ramp:     ramp,
		Parking:  yesNo(tags["capacity:disabled"]),
	}
}

func osmAddress(tags map[string]string) string {
	street := tags["addr:street"]
	if street == "" {
		return ""
	}
	if n := tags["addr:housenumber"]; n != "" {
		return n + " " + street
	}
	return street
}

func (el overpassElement) toPlace(q Query) (model.Place, bool) {
	loc, ok := el.location()
	if !ok {
		return model.Place{}, false
	}
	tags := el.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	p, ok := buildPlace("osm", tags["name"], osmType(tags), loc, osmSignals(tags), osmAddress(tags), q)
	if !ok {
		return model.Place{}, false
	}

	incline := tags["incline"]
	if incline == "" {
		incline = tags["highway:incline"]
	}
	p.Physical = model.PhysicalAttributes{
		SlopeDeg:    parseIncline(incline),
		DoorWidthCM: parseWidthCM(tags["door:width"]),
		Surface:     optionalString(tags["surface"]),
	}
	return p, true
}

func formatCoord(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}
