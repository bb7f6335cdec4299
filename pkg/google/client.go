// Package google is a small client for the Google Places Nearby Search and
// Place Details endpoints.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// DetailFields is the field mask requested for every detail lookup.
const DetailFields = "name,types,geometry,formatted_address," +
	"wheelchair_accessible_entrance,wheelchair_accessible_restroom," +
	"wheelchair_accessible_seating,wheelchair_accessible_parking"

// Client performs Google Places API operations.
type Client interface {
	NearbySearch(ctx context.Context, req NearbySearchRequest) (*NearbySearchResponse, error)
	Details(ctx context.Context, placeID string) (*DetailsResponse, error)
}

// NearbySearchRequest describes one Nearby Search page. When PageToken is
// set the other parameters are ignored by the API.
type NearbySearchRequest struct {
	Lat       float64
	Lng       float64
	RadiusM   int
	Type      string
	PageToken string
}

// NearbySearchResponse is one page of Nearby Search results.
type NearbySearchResponse struct {
	Results       []SearchResult `json:"results"`
	NextPageToken string         `json:"next_page_token"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// SearchResult is a summary record from Nearby Search.
type SearchResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Types    []string `json:"types"`
	Geometry Geometry `json:"geometry"`
	Vicinity string   `json:"vicinity"`
}

// Geometry holds a place location.
type Geometry struct {
	Location *LatLng `json:"location"`
}

// LatLng is a coordinate pair as encoded by the Places API.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DetailsResponse wraps a Place Details lookup.
type DetailsResponse struct {
	Result       PlaceDetails `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// PlaceDetails holds the detail fields requested by DetailFields. The
// accessibility flags are nil when Google has no data for the place.
type PlaceDetails struct {
	Name                         string   `json:"name"`
	Types                        []string `json:"types"`
	Geometry                     Geometry `json:"geometry"`
	FormattedAddress             string   `json:"formatted_address"`
	WheelchairAccessibleEntrance *bool    `json:"wheelchair_accessible_entrance"`
	WheelchairAccessibleRestroom *bool    `json:"wheelchair_accessible_restroom"`
	WheelchairAccessibleSeating  *bool    `json:"wheelchair_accessible_seating"`
	WheelchairAccessibleParking  *bool    `json:"wheelchair_accessible_parking"`
}

// StatusMalformed is the APIError status used when a 200 response body
// could not be decoded.
const StatusMalformed = "MALFORMED_RESPONSE"

// APIError is returned for non-200 responses and for API statuses other
// than OK and ZERO_RESULTS.
type APIError struct {
	StatusCode int    // HTTP status
	Status     string // Places API status, e.g. OVER_QUERY_LIMIT
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("google: api status %s (http %d): %s", e.Status, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR", StatusMalformed:
		return true
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) NearbySearch(ctx context.Context, req NearbySearchRequest) (*NearbySearchResponse, error) {
	params := url.Values{"key": {c.apiKey}}
	if req.PageToken != "" {
		params.Set("pagetoken", req.PageToken)
	} else {
		params.Set("location", strconv.FormatFloat(req.Lat, 'f', -1, 64)+","+strconv.FormatFloat(req.Lng, 'f', -1, 64))
		params.Set("radius", strconv.Itoa(req.RadiusM))
		if req.Type != "" {
			params.Set("type", req.Type)
		}
	}

	var resp NearbySearchResponse
	if err := c.get(ctx, "/nearbysearch/json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" && resp.Status != "ZERO_RESULTS" {
		return nil, &APIError{StatusCode: http.StatusOK, Status: resp.Status, Message: resp.ErrorMessage}
	}
	return &resp, nil
}

func (c *httpClient) Details(ctx context.Context, placeID string) (*DetailsResponse, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {DetailFields},
		"key":      {c.apiKey},
	}

	var resp DetailsResponse
	if err := c.get(ctx, "/details/json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, &APIError{StatusCode: http.StatusOK, Status: resp.Status, Message: resp.ErrorMessage}
	}
	return &resp, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "google: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Status: StatusMalformed, Message: "unmarshal response: " + err.Error()}
	}
	return nil
}
