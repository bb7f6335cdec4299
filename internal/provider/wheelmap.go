package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/rating"
)

// DefaultWheelmapURL is the Wheelmap nodes endpoint.
const DefaultWheelmapURL = "https://wheelmap.org/api/nodes"

// Wheelmap queries the Wheelmap community map by bounding box.
type Wheelmap struct {
	baseURL string
	apiKey  string
	req     *requester
}

// NewWheelmap creates a Wheelmap provider. Without an API key Fetch
// returns no places.
func NewWheelmap(hc *http.Client, baseURL, apiKey string, opts Options) *Wheelmap {
	if baseURL == "" {
		baseURL = DefaultWheelmapURL
	}
	opts = opts.withDefaults()
	return &Wheelmap{
		baseURL: baseURL,
		apiKey:  apiKey,
		req:     newRequester("wheelmap", hc, opts),
	}
}

// Name implements Provider.
func (w *Wheelmap) Name() string { return "wheelmap" }

type wheelmapResponse struct {
	Meta struct {
		Page     int `json:"page"`
		NumPages int `json:"num_pages"`
	} `json:"meta"`
	Nodes []wheelmapNode `json:"nodes"`
}

type wheelmapNode struct {
	ID                    int64         `json:"id"`
	Name                  string        `json:"name"`
	Lat                   float64       `json:"lat"`
	Lon                   float64       `json:"lon"`
	Wheelchair            string        `json:"wheelchair"`
	WheelchairToilet      string        `json:"wheelchair_toilet"`
	WheelchairDescription string        `json:"wheelchair_description"`
	Street                string        `json:"street"`
	HouseNumber           string        `json:"housenumber"`
	City                  string        `json:"city"`
	Category              *wheelmapKind `json:"category"`
	NodeType              *wheelmapKind `json:"node_type"`
}

type wheelmapKind struct {
	Identifier string `json:"identifier"`
}

// Fetch implements Provider. Pages are requested by number, up to the
// extra-page cap.
func (w *Wheelmap) Fetch(ctx context.Context, q Query) ([]model.Place, error) {
	log := zap.L().With(zap.String("provider", w.Name()))
	if w.apiKey == "" {
		log.Debug("no api key configured, skipping")
		return []model.Place{}, nil
	}

	b := geo.BoundingBox(q.Center, q.RadiusKM)
	bbox := strings.Join([]string{
		formatCoord(b.Min(0)), formatCoord(b.Min(1)),
		formatCoord(b.Max(0)), formatCoord(b.Max(1)),
	}, ",")

	maxResults := w.req.opts.MaxResults
	places := make([]model.Place, 0, maxResults)
	for page := 1; page <= 1+w.req.opts.MaxExtraPages && len(places) < maxResults; page++ {
		params := url.Values{
			"api_key":  {w.apiKey},
			"bbox":     {bbox},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(maxResults)},
		}

		var resp wheelmapResponse
		if err := w.req.getJSON(ctx, "nodes", w.baseURL+"?"+params.Encode(), &resp); err != nil {
			if page == 1 {
				return nil, err
			}
			log.Warn("extra page failed, keeping earlier pages", zap.Int("page", page), zap.Error(err))
			break
		}

		for _, n := range resp.Nodes {
			if len(places) >= maxResults {
				break
			}
			if p, ok := n.toPlace(q); ok {
				places = append(places, p)
			}
		}

		if len(resp.Nodes) == 0 || page >= resp.Meta.NumPages {
			break
		}
	}

	log.Debug("wheelmap fetch complete", zap.Int("places", len(places)))
	return places, nil
}

func (n wheelmapNode) placeType() string {
	if n.NodeType != nil && n.NodeType.Identifier != "" {
		return n.NodeType.Identifier
	}
	if n.Category != nil && n.Category.Identifier != "" {
		return n.Category.Identifier
	}
	return "unknown"
}

func (n wheelmapNode) address() string {
	if n.Street == "" {
		return ""
	}
	addr := n.Street
	if n.HouseNumber != "" {
		addr += " " + n.HouseNumber
	}
	if n.City != "" {
		addr += ", " + n.City
	}
	return addr
}

func (n wheelmapNode) toPlace(q Query) (model.Place, bool) {
	sig := rating.Signals{
		Overall:  rating.ParseLevel(n.Wheelchair),
		Restroom: yesNo(n.WheelchairToilet),
	}
	return buildPlace("wheelmap", n.Name, n.placeType(), model.Coordinates{Lat: n.Lat, Lon: n.Lon}, sig, n.address(), q)
}
