// Package store persists accessibility records so searches can be served
// offline when every live provider fails.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wheelmate/wheelmate/internal/db"
	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
)

// StalenessWindow is the maximum age of a fresh record. A record exactly
// this old is stale.
const StalenessWindow = 7 * 24 * time.Hour

// ErrNotFound is returned when no place has the requested name.
var ErrNotFound = eris.New("store: place not found")

// Stats summarizes the cache contents.
type Stats struct {
	Places        int                  `json:"places" yaml:"places"`
	ByRating      map[model.Rating]int `json:"by_rating" yaml:"by_rating"`
	WithPhoto     int                  `json:"with_photo" yaml:"with_photo"`
	Fresh         int                  `json:"fresh" yaml:"fresh"`
	Verifications int                  `json:"verifications" yaml:"verifications"`
	SchemaVersion int                  `json:"schema_version" yaml:"schema_version"`
}

// Store defines the persistence interface for cached places.
type Store interface {
	// Places
	ReadNear(ctx context.Context, center model.Coordinates, radiusKM float64) ([]model.Place, error)
	IsFresh(ctx context.Context, center model.Coordinates, radiusKM float64) (bool, error)
	Upsert(ctx context.Context, places []model.Place) error
	Get(ctx context.Context, name string) (*model.Place, error)
	SetRating(ctx context.Context, name string, rating model.Rating) error
	SetPhoto(ctx context.Context, name string, photo []byte) error

	// Verifications
	RecordVerification(ctx context.Context, v model.Verification) error
	Verifications(ctx context.Context, name string) ([]model.Verification, error)

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for last_updated and freshness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

var placeColumns = []string{
	"name", "lat", "lon", "accessibility", "type", "features", "address",
	"last_updated", "slope", "door_width", "surface", "photo", "provider",
}

const placeSelect = `SELECT name, lat, lon, accessibility, type, features, address, last_updated, slope, door_width, surface, photo, provider FROM places`

var placeUpsert = db.UpsertConfig{
	Table:        "places",
	Columns:      placeColumns,
	ConflictKeys: []string{"name"},
	KeepExisting: []string{"photo"},
}

// isFresh reports whether a record written at updated is younger than the
// staleness window at now.
func isFresh(now, updated time.Time) bool {
	return now.Sub(updated) < StalenessWindow
}

// placeArgs returns the column values for p in placeColumns order. The
// timestamp is passed in so each backend can encode it natively.
func placeArgs(p model.Place, updated any) ([]any, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal features for %q", p.Name)
	}
	var photo any
	if len(p.Photo) > 0 {
		photo = p.Photo
	}
	return []any{
		p.Name, p.Location.Lat, p.Location.Lon, int(p.Rating), p.Type,
		string(featuresJSON), p.Address, updated,
		p.Physical.SlopeDeg, p.Physical.DoorWidthCM, p.Physical.Surface, photo,
		p.Provider,
	}, nil
}

func validatePlace(p model.Place) error {
	if p.Name == "" {
		return eris.New("store: place name is required")
	}
	if err := p.Location.Validate(); err != nil {
		return eris.Wrapf(err, "store: place %q", p.Name)
	}
	if !p.Rating.Valid() {
		return eris.Errorf("store: place %q has invalid rating %d", p.Name, p.Rating)
	}
	return nil
}

// decodeFeatures reads the persisted feature list. Rows migrated from the
// legacy layout may hold a plain comma separated string.
func decodeFeatures(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		if out == nil {
			out = []string{}
		}
		return out
	}
	return splitLegacyFeatures(raw)
}

// filterNear keeps the places within radiusKM of center (boundary
// included).
func filterNear(center model.Coordinates, radiusKM float64, places []model.Place) []model.Place {
	out := make([]model.Place, 0, len(places))
	for _, p := range places {
		if geo.Within(center, p.Location, radiusKM) {
			out = append(out, p)
		}
	}
	return out
}
