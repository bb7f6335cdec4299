package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
)

var paris = model.Coordinates{Lat: 48.8566, Lon: 2.3522}

// testClock is a settable clock for freshness tests.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st, clock
}

func testPlace(name string, loc model.Coordinates, rating model.Rating) model.Place {
	return model.Place{
		Name:     name,
		Type:     "cafe",
		Location: loc,
		Rating:   rating,
		Features: []string{"Wheelchair-accessible entrance"},
		Address:  "Near Paris",
	}
}

// --- Places ---

func TestSQLite_UpsertAndReadNear(t *testing.T) {
	st, clock := newTestSQLiteStore(t)
	ctx := context.Background()

	near := testPlace("Cafe Near", geo.Offset(paris, 1, 0), model.RatingFully)
	near.Physical = model.PhysicalAttributes{
		SlopeDeg:    model.Float64(2.5),
		DoorWidthCM: model.Float64(90),
		Surface:     model.String("paved"),
	}
	far := testPlace("Cafe Far", geo.Offset(paris, 20, 0), model.RatingNot)

	require.NoError(t, st.Upsert(ctx, []model.Place{near, far}))

	places, err := st.ReadNear(ctx, paris, 5)
	require.NoError(t, err)
	require.Len(t, places, 1)

	got := places[0]
	assert.Equal(t, "Cafe Near", got.Name)
	assert.Equal(t, model.RatingFully, got.Rating)
	assert.Equal(t, []string{"Wheelchair-accessible entrance"}, got.Features)
	assert.Equal(t, "Near Paris", got.Address)
	assert.InDelta(t, near.Location.Lat, got.Location.Lat, 1e-9)
	assert.True(t, got.LastUpdated.Equal(clock.t))
	require.NotNil(t, got.Physical.SlopeDeg)
	assert.InDelta(t, 2.5, *got.Physical.SlopeDeg, 1e-9)
	require.NotNil(t, got.Physical.Surface)
	assert.Equal(t, "paved", *got.Physical.Surface)
	assert.Empty(t, got.Provider)
}

func TestSQLite_ReadNear_BoundaryIncluded(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	edge := testPlace("Edge", geo.Offset(paris, 5, 1.2), model.RatingPartially)
	require.NoError(t, st.Upsert(ctx, []model.Place{edge}))

	radius := geo.Distance(paris, edge.Location)
	places, err := st.ReadNear(ctx, paris, radius)
	require.NoError(t, err)
	assert.Len(t, places, 1)

	places, err = st.ReadNear(ctx, paris, radius-0.001)
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestSQLite_ReadNear_CircleAroundPole(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	center := model.Coordinates{Lat: 89, Lon: 0}
	across := testPlace("Across", model.Coordinates{Lat: 89.5, Lon: 180}, model.RatingFully)
	require.Less(t, geo.Distance(center, across.Location), 200.0)
	require.NoError(t, st.Upsert(ctx, []model.Place{across}))

	places, err := st.ReadNear(ctx, center, 200)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Across", places[0].Name)

	fresh, err := st.IsFresh(ctx, center, 200)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSQLite_Upsert_PersistsProvider(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testPlace("Cafe 1", paris, model.RatingPartially)
	p.Provider = "synthetic"
	require.NoError(t, st.Upsert(ctx, []model.Place{p}))

	got, err := st.Get(ctx, "Cafe 1")
	require.NoError(t, err)
	assert.Equal(t, "synthetic", got.Provider)

	p.Provider = "osm"
	require.NoError(t, st.Upsert(ctx, []model.Place{p}))
	got, err = st.Get(ctx, "Cafe 1")
	require.NoError(t, err)
	assert.Equal(t, "osm", got.Provider)
}

func TestSQLite_ConcurrentWriters(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	const (
		workers   = 8
		perWorker = 5
	)
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]model.Place, perWorker)
			for j := range batch {
				batch[j] = testPlace(fmt.Sprintf("W%d-%d", i, j), geo.Offset(paris, 0.1*float64(j+1), float64(i)), model.RatingFully)
			}
			if err := st.Upsert(ctx, batch); err != nil {
				errs <- err
				return
			}
			if _, err := st.ReadNear(ctx, paris, 2); err != nil {
				errs <- err
			}
			if err := st.RecordVerification(ctx, model.Verification{PlaceName: batch[0].Name, User: "ana", Verified: true}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	places, err := st.ReadNear(ctx, paris, 2)
	require.NoError(t, err)
	assert.Len(t, places, workers*perWorker)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, stats.Places)
	assert.Equal(t, workers, stats.Verifications)
}

func TestSQLite_ReadNear_UnknownPhysicalStaysNil(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("Plain", paris, model.RatingUnknown)}))

	places, err := st.ReadNear(ctx, paris, 1)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Nil(t, places[0].Physical.SlopeDeg)
	assert.Nil(t, places[0].Physical.DoorWidthCM)
	assert.Nil(t, places[0].Physical.Surface)
	assert.Nil(t, places[0].Photo)
}

func TestSQLite_Upsert_ReplacesByNameAndKeepsPhoto(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testPlace("Musee", paris, model.RatingNot)
	first.Photo = []byte{0xFF, 0xD8}
	require.NoError(t, st.Upsert(ctx, []model.Place{first}))

	second := testPlace("Musee", paris, model.RatingFully)
	second.Type = "museum"
	require.NoError(t, st.Upsert(ctx, []model.Place{second}))

	got, err := st.Get(ctx, "Musee")
	require.NoError(t, err)
	assert.Equal(t, model.RatingFully, got.Rating)
	assert.Equal(t, "museum", got.Type)
	assert.Equal(t, []byte{0xFF, 0xD8}, got.Photo)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Places)
}

func TestSQLite_Upsert_RejectsInvalidPlace(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.Upsert(ctx, []model.Place{testPlace("", paris, model.RatingFully)})
	require.Error(t, err)

	bad := testPlace("Bad", model.Coordinates{Lat: 95, Lon: 0}, model.RatingFully)
	require.Error(t, st.Upsert(ctx, []model.Place{bad}))

	places, err := st.ReadNear(ctx, paris, 100)
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestSQLite_Upsert_Empty(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	assert.NoError(t, st.Upsert(context.Background(), nil))
}

// --- Freshness ---

func TestSQLite_IsFresh_StalenessBoundary(t *testing.T) {
	st, clock := newTestSQLiteStore(t)
	ctx := context.Background()
	written := clock.t

	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("Cafe", paris, model.RatingFully)}))

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just written", 0, true},
		{"six days", 6 * 24 * time.Hour, true},
		{"just under seven days", StalenessWindow - time.Nanosecond, true},
		{"exactly seven days", StalenessWindow, false},
		{"eight days", 8 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.t = written.Add(tt.age)
			fresh, err := st.IsFresh(ctx, paris, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fresh)
		})
	}
}

func TestSQLite_IsFresh_OnlyCountsPlacesInRadius(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, []model.Place{
		testPlace("Elsewhere", geo.Offset(paris, 30, 0), model.RatingFully),
	}))

	fresh, err := st.IsFresh(ctx, paris, 5)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestSQLite_IsFresh_Empty(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	fresh, err := st.IsFresh(context.Background(), paris, 5)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestSQLite_IsFresh_AnyFreshRecordSuffices(t *testing.T) {
	st, clock := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("Old", paris, model.RatingNot)}))
	clock.t = clock.t.Add(10 * 24 * time.Hour)
	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("New", geo.Offset(paris, 0.5, 0), model.RatingFully)}))

	fresh, err := st.IsFresh(ctx, paris, 1)
	require.NoError(t, err)
	assert.True(t, fresh)
}

// --- Rating, photo, verification ---

func TestSQLite_SetRating(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("Bar", paris, model.RatingNot)}))

	require.NoError(t, st.SetRating(ctx, "Bar", model.RatingPartially))
	got, err := st.Get(ctx, "Bar")
	require.NoError(t, err)
	assert.Equal(t, model.RatingPartially, got.Rating)

	err = st.SetRating(ctx, "Missing", model.RatingFully)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, st.SetRating(ctx, "Bar", model.Rating(9)))
}

func TestSQLite_SetPhoto(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("Park", paris, model.RatingFully)}))

	require.NoError(t, st.SetPhoto(ctx, "Park", []byte("jpeg")))
	got, err := st.Get(ctx, "Park")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), got.Photo)

	err = st.SetPhoto(ctx, "Missing", []byte("jpeg"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Get_NotFound(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	_, err := st.Get(context.Background(), "nowhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Verifications_AppendOnly(t *testing.T) {
	st, clock := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordVerification(ctx, model.Verification{PlaceName: "Cafe", User: "ana", Verified: true}))
	require.NoError(t, st.RecordVerification(ctx, model.Verification{
		PlaceName: "Cafe", User: "ben", Verified: false, Timestamp: clock.t.Add(time.Hour),
	}))
	require.NoError(t, st.RecordVerification(ctx, model.Verification{PlaceName: "Other", User: "ana", Verified: true}))

	got, err := st.Verifications(ctx, "Cafe")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ana", got[0].User)
	assert.True(t, got[0].Verified)
	assert.True(t, got[0].Timestamp.Equal(clock.t))
	assert.Equal(t, "ben", got[1].User)
	assert.False(t, got[1].Verified)

	none, err := st.Verifications(ctx, "Nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Error(t, st.RecordVerification(ctx, model.Verification{User: "ana"}))
}

func TestSQLite_Stats(t *testing.T) {
	st, clock := newTestSQLiteStore(t)
	ctx := context.Background()

	withPhoto := testPlace("A", paris, model.RatingFully)
	withPhoto.Photo = []byte{1}
	require.NoError(t, st.Upsert(ctx, []model.Place{
		withPhoto,
		testPlace("B", paris, model.RatingFully),
		testPlace("C", paris, model.RatingNot),
	}))
	require.NoError(t, st.RecordVerification(ctx, model.Verification{PlaceName: "A", User: "ana", Verified: true}))

	clock.t = clock.t.Add(StalenessWindow)
	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("D", paris, model.RatingUnknown)}))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Places)
	assert.Equal(t, 2, stats.ByRating[model.RatingFully])
	assert.Equal(t, 1, stats.ByRating[model.RatingNot])
	assert.Equal(t, 1, stats.ByRating[model.RatingUnknown])
	assert.Equal(t, 1, stats.WithPhoto)
	assert.Equal(t, 1, stats.Fresh)
	assert.Equal(t, 1, stats.Verifications)
	assert.Equal(t, len(sqliteMigrations), stats.SchemaVersion)
}

// --- Migrations ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st, _ := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, []model.Place{testPlace("Keep", paris, model.RatingFully)}))

	require.NoError(t, st.Migrate(ctx))

	var versions int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&versions))
	assert.Equal(t, len(sqliteMigrations), versions)

	got, err := st.Get(ctx, "Keep")
	require.NoError(t, err)
	assert.Equal(t, "Keep", got.Name)
}

func TestSQLite_Migrate_CopiesLegacyTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacy(t, dbPath)

	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	st, err := NewSQLite(dbPath, WithClock(clock.Now))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	got, err := st.Get(ctx, "Cafe 1")
	require.NoError(t, err)
	assert.Equal(t, model.RatingPartially, got.Rating)
	assert.Equal(t, []string{"Ramp available", "Accessible restroom"}, got.Features)
	assert.Equal(t, time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC), got.LastUpdated)
	assert.Nil(t, got.Physical.Surface)
	assert.Equal(t, []byte("img"), got.Photo)

	_, err = st.Get(ctx, "Broken")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Legacy rows are kept.
	var legacyRows int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM places_legacy`).Scan(&legacyRows))
	assert.Equal(t, 2, legacyRows)

	verifs, err := st.Verifications(ctx, "Cafe 1")
	require.NoError(t, err)
	require.Len(t, verifs, 1)
	assert.Equal(t, time.Date(2024, 4, 28, 10, 30, 0, 0, time.UTC), verifs[0].Timestamp)

	fresh, err := st.IsFresh(ctx, paris, 1)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSQLite_Migrate_AddsProviderToVersionOne(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "v1.db")
	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`,
		`INSERT INTO schema_version VALUES (1, '2024-04-01T00:00:00.000000000Z')`,
		`CREATE TABLE places (name TEXT PRIMARY KEY, lat REAL NOT NULL, lon REAL NOT NULL,
			accessibility INTEGER NOT NULL DEFAULT 0, type TEXT NOT NULL DEFAULT '',
			features TEXT NOT NULL DEFAULT '[]', address TEXT NOT NULL DEFAULT '',
			last_updated TEXT NOT NULL, slope REAL, door_width REAL, surface TEXT, photo BLOB)`,
		`CREATE TABLE verifications (place_name TEXT NOT NULL, user TEXT, verified INTEGER NOT NULL DEFAULT 1, timestamp TEXT NOT NULL)`,
		`INSERT INTO places (name, lat, lon, accessibility, last_updated) VALUES ('Old', 48.8566, 2.3522, 3, '2024-04-30T00:00:00.000000000Z')`,
	} {
		_, err := raw.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	got, err := st.Get(ctx, "Old")
	require.NoError(t, err)
	assert.Equal(t, model.RatingFully, got.Rating)
	assert.Empty(t, got.Provider)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SchemaVersion)
}

func seedLegacy(t *testing.T, path string) {
	t.Helper()
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close() //nolint:errcheck

	for _, stmt := range []string{
		`CREATE TABLE places (name TEXT, lat REAL, lon REAL, rating INTEGER, type TEXT,
			description TEXT, features TEXT, last_updated TEXT,
			slope REAL, door_width INTEGER, surface TEXT, photo BLOB)`,
		`CREATE INDEX idx_places_lat_lon ON places(lat, lon)`,
		`CREATE TABLE verifications (place_name TEXT, user TEXT, verified INTEGER, timestamp TEXT)`,
		`INSERT INTO places VALUES ('Cafe 1', 48.8566, 2.3522, 2, 'cafe', 'Ramp available, Accessible restroom',
			'Ramp available, Accessible restroom', '2024-04-28', NULL, NULL, 'unknown', X'696D67')`,
		`INSERT INTO places VALUES ('Broken', NULL, 2.35, 1, 'bar', '', '', '2024-04-28', NULL, NULL, NULL, NULL)`,
		`INSERT INTO verifications VALUES ('Cafe 1', 'ana', 1, '2024-04-28 10:30:00')`,
	} {
		_, err := raw.Exec(stmt)
		require.NoError(t, err)
	}
}
