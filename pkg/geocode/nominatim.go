package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// nominatimPlace is one element of a Nominatim search response, and the
// whole body of a reverse response.
type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	AddressType string           `json:"addresstype"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

type nominatimAddress struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}

// locality returns the most specific settlement name in the address.
func (a nominatimAddress) locality() string {
	switch {
	case a.City != "":
		return a.City
	case a.Town != "":
		return a.Town
	default:
		return a.Village
	}
}

// geocodeNominatim geocodes a single query using the Nominatim search API.
func (g *geocoder) geocodeNominatim(ctx context.Context, query string) (*Result, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}

	var places []nominatimPlace
	if err := g.getNominatim(ctx, "/search", params, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	p := places[0]
	lat, lon, err := p.coordinates()
	if err != nil {
		return nil, err
	}

	city := p.Address.locality()
	if city == "" && p.AddressType == "city" {
		city = query
	}

	return &Result{
		Latitude:  lat,
		Longitude: lon,
		Label:     p.DisplayName,
		City:      city,
		Source:    "nominatim",
		Quality:   nominatimQuality(p.AddressType),
		Matched:   true,
	}, nil
}

func (g *geocoder) getNominatim(ctx context.Context, path string, params url.Values, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: nominatim rate limit")
	}

	reqURL := g.nominatimURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "geocode: nominatim read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "geocode: nominatim parse response")
	}
	return nil
}

func (p nominatimPlace) coordinates() (float64, float64, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: nominatim bad latitude %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: nominatim bad longitude %q", p.Lon)
	}
	return lat, lon, nil
}

// nominatimQuality maps Nominatim's addresstype to our quality taxonomy.
func nominatimQuality(addrType string) string {
	switch addrType {
	case "house", "building", "amenity", "shop", "tourism":
		return "rooftop"
	case "road":
		return "range"
	case "city", "town", "village", "suburb", "neighbourhood", "postcode":
		return "centroid"
	default:
		return "approximate"
	}
}
