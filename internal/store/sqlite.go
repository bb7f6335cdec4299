package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/wheelmate/wheelmate/internal/db"
	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite. All operations are
// serialized on one mutex.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time

	upsertSQL string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts ...Option) (*SQLiteStore, error) {
	upsertSQL, err := db.UpsertStatement(db.SQLite, placeUpsert)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	o := buildOptions(opts)
	return &SQLiteStore{db: sqlDB, now: o.now, upsertSQL: upsertSQL}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return migrateSQLite(ctx, s.db, s.now().UTC())
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReadNear(ctx context.Context, center model.Coordinates, radiusKM float64) ([]model.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := geo.BoundingBox(center, radiusKM)
	rows, err := s.db.QueryContext(ctx,
		placeSelect+` WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ? ORDER BY name`,
		b.Min(1), b.Max(1), b.Min(0), b.Max(0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read near")
	}
	defer rows.Close() //nolint:errcheck

	var places []model.Place
	for rows.Next() {
		p, err := scanSQLitePlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate places")
	}
	return filterNear(center, radiusKM, places), nil
}

func (s *SQLiteStore) IsFresh(ctx context.Context, center model.Coordinates, radiusKM float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := geo.BoundingBox(center, radiusKM)
	rows, err := s.db.QueryContext(ctx,
		`SELECT lat, lon, last_updated FROM places WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`,
		b.Min(1), b.Max(1), b.Min(0), b.Max(0),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: freshness")
	}
	defer rows.Close() //nolint:errcheck

	now := s.now()
	for rows.Next() {
		var (
			loc     model.Coordinates
			updated string
		)
		if err := rows.Scan(&loc.Lat, &loc.Lon, &updated); err != nil {
			return false, eris.Wrap(err, "sqlite: scan freshness")
		}
		if !geo.Within(center, loc, radiusKM) {
			continue
		}
		if isFresh(now, parseTime(updated)) {
			return true, nil
		}
	}
	return false, eris.Wrap(rows.Err(), "sqlite: iterate freshness")
}

func (s *SQLiteStore) Upsert(ctx context.Context, places []model.Place) error {
	if len(places) == 0 {
		return nil
	}
	for _, p := range places {
		if err := validatePlace(p); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.upsertSQL)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	updated := formatTime(s.now())
	for _, p := range places {
		args, err := placeArgs(p, updated)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert place %q", p.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (*model.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := scanSQLitePlace(s.db.QueryRowContext(ctx, placeSelect+` WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get %q", name)
	}
	return p, err
}

func (s *SQLiteStore) SetRating(ctx context.Context, name string, rating model.Rating) error {
	if !rating.Valid() {
		return eris.Errorf("sqlite: invalid rating %d", rating)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET accessibility = ?, last_updated = ? WHERE name = ?`,
		int(rating), formatTime(s.now()), name,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set rating %q", name)
	}
	return checkRowsAffected(res, name)
}

func (s *SQLiteStore) SetPhoto(ctx context.Context, name string, photo []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value any
	if len(photo) > 0 {
		value = photo
	}
	res, err := s.db.ExecContext(ctx, `UPDATE places SET photo = ? WHERE name = ?`, value, name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set photo %q", name)
	}
	return checkRowsAffected(res, name)
}

func (s *SQLiteStore) RecordVerification(ctx context.Context, v model.Verification) error {
	if v.PlaceName == "" {
		return eris.New("sqlite: verification place name is required")
	}
	ts := v.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications (place_name, user, verified, timestamp) VALUES (?, ?, ?, ?)`,
		v.PlaceName, v.User, v.Verified, formatTime(ts),
	)
	return eris.Wrapf(err, "sqlite: record verification for %q", v.PlaceName)
}

func (s *SQLiteStore) Verifications(ctx context.Context, name string) ([]model.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT place_name, user, verified, timestamp FROM verifications WHERE place_name = ? ORDER BY timestamp, rowid`,
		name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list verifications for %q", name)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Verification{}
	for rows.Next() {
		var (
			v        model.Verification
			user     sql.NullString
			verified sql.NullInt64
			ts       sql.NullString
		)
		if err := rows.Scan(&v.PlaceName, &user, &verified, &ts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verification")
		}
		v.User = user.String
		v.Verified = verified.Int64 != 0
		v.Timestamp = parseTime(ts.String)
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate verifications")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{ByRating: make(map[model.Rating]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT accessibility, COUNT(*) FROM places GROUP BY accessibility`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by rating")
	}
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan stats")
		}
		st.ByRating[model.Rating(rating)] += n
		st.Places += n
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate stats")
	}

	cutoff := formatTime(s.now().Add(-StalenessWindow))
	if err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM places WHERE photo IS NOT NULL),
			(SELECT COUNT(*) FROM places WHERE last_updated > ?),
			(SELECT COUNT(*) FROM verifications),
			(SELECT COALESCE(MAX(version), 0) FROM schema_version)`,
		cutoff,
	).Scan(&st.WithPhoto, &st.Fresh, &st.Verifications, &st.SchemaVersion); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats counts")
	}
	return st, nil
}

func checkRowsAffected(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "place %q", name)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLitePlace(row scannable) (*model.Place, error) {
	var (
		p         model.Place
		rating    int
		typ       sql.NullString
		features  sql.NullString
		address   sql.NullString
		updated   sql.NullString
		slope     sql.NullFloat64
		doorWidth sql.NullFloat64
		surface   sql.NullString
		photo     []byte
		provider  sql.NullString
	)
	err := row.Scan(&p.Name, &p.Location.Lat, &p.Location.Lon, &rating, &typ,
		&features, &address, &updated, &slope, &doorWidth, &surface, &photo, &provider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan place")
	}

	p.Rating = model.Rating(rating)
	if !p.Rating.Valid() {
		p.Rating = model.RatingUnknown
	}
	p.Type = typ.String
	p.Features = decodeFeatures(features.String)
	p.Address = address.String
	p.Provider = provider.String
	p.LastUpdated = parseTime(updated.String)
	if slope.Valid {
		p.Physical.SlopeDeg = model.Float64(slope.Float64)
	}
	if doorWidth.Valid {
		p.Physical.DoorWidthCM = model.Float64(doorWidth.Float64)
	}
	if surface.Valid {
		p.Physical.Surface = model.String(surface.String)
	}
	if len(photo) > 0 {
		p.Photo = photo
	}
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads stored timestamps, including the date-only and
// space-separated forms written by older databases. Unparseable values
// yield the zero time, which is always stale.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
