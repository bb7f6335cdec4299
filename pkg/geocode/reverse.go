package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReverseResult holds the result of a reverse geocode operation.
type ReverseResult struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
	Label   string `json:"label"`
}

// Reverse converts a lat/lon to an address using Nominatim reverse lookup.
func (g *geocoder) Reverse(ctx context.Context, lat, lon float64) (*ReverseResult, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
	}

	var p nominatimPlace
	if err := g.getNominatim(ctx, "/reverse", params, &p); err != nil {
		return nil, err
	}
	if p.Error != "" {
		zap.L().Debug("reverse geocode: no result",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.String("error", p.Error),
		)
		return nil, eris.Errorf("geocode: reverse geocode: %s", p.Error)
	}

	return &ReverseResult{
		Street:  strings.TrimSpace(p.Address.HouseNumber + " " + p.Address.Road),
		City:    p.Address.locality(),
		State:   p.Address.State,
		ZipCode: p.Address.Postcode,
		Country: p.Address.Country,
		Label:   p.DisplayName,
	}, nil
}
