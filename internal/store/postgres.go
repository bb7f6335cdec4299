package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/db"
	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
)

// PostgresStore implements Store using pgxpool and PostGIS. The pool is
// safe for concurrent use, so no store-level lock is taken.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	o := buildOptions(opts)
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: o.now}, nil
}

type postgresMigration struct {
	version int
	name    string
	sql     string
}

var postgresMigrations = []postgresMigration{
	{version: 1, name: "places and verifications", sql: `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS places (
	name          TEXT PRIMARY KEY,
	lat           DOUBLE PRECISION NOT NULL,
	lon           DOUBLE PRECISION NOT NULL,
	accessibility SMALLINT NOT NULL DEFAULT 0,
	type          TEXT NOT NULL DEFAULT '',
	features      JSONB NOT NULL DEFAULT '[]',
	address       TEXT NOT NULL DEFAULT '',
	last_updated  TIMESTAMPTZ NOT NULL,
	slope         DOUBLE PRECISION,
	door_width    DOUBLE PRECISION,
	surface       TEXT,
	photo         BYTEA,
	geom          geometry(Point, 4326) GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(lon, lat), 4326)) STORED
);

CREATE INDEX IF NOT EXISTS idx_places_geom ON places USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_places_accessibility ON places(accessibility);

CREATE TABLE IF NOT EXISTS verifications (
	id         BIGSERIAL PRIMARY KEY,
	place_name TEXT NOT NULL,
	"user"     TEXT,
	verified   BOOLEAN NOT NULL DEFAULT true,
	timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_verifications_place ON verifications(place_name);
`},
	{version: 2, name: "place provider", sql: `
ALTER TABLE places ADD COLUMN IF NOT EXISTS provider TEXT NOT NULL DEFAULT '';
`},
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: migrate: create schema_version")
	}

	var current int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return eris.Wrap(err, "postgres: migrate: read version")
	}

	for _, m := range postgresMigrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
		zap.L().Info("store: applied migration",
			zap.String("component", "store"),
			zap.Int("version", m.version),
			zap.String("name", m.name),
		)
	}
	return nil
}

func (s *PostgresStore) applyMigration(ctx context.Context, m postgresMigration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: migrate: begin v%d", m.version)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return eris.Wrapf(err, "postgres: migrate: v%d %s", m.version, m.name)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES ($1, $2)`,
		m.version, s.now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: migrate: record v%d", m.version)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: migrate: commit v%d", m.version)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// envelope encodes the search bounding box as an EWKB polygon for the
// geometry index.
func envelope(center model.Coordinates, radiusKM float64) ([]byte, error) {
	poly := geo.BoundingBox(center, radiusKM).Polygon().SetSRID(4326)
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode envelope")
	}
	return data, nil
}

func (s *PostgresStore) ReadNear(ctx context.Context, center model.Coordinates, radiusKM float64) ([]model.Place, error) {
	env, err := envelope(center, radiusKM)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, placeSelect+` WHERE geom && ST_GeomFromEWKB($1) ORDER BY name`, env)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read near")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		p, err := scanPostgresPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate places")
	}
	return filterNear(center, radiusKM, places), nil
}

func (s *PostgresStore) IsFresh(ctx context.Context, center model.Coordinates, radiusKM float64) (bool, error) {
	env, err := envelope(center, radiusKM)
	if err != nil {
		return false, err
	}
	rows, err := s.pool.Query(ctx, `SELECT lat, lon, last_updated FROM places WHERE geom && ST_GeomFromEWKB($1)`, env)
	if err != nil {
		return false, eris.Wrap(err, "postgres: freshness")
	}
	defer rows.Close()

	now := s.now()
	for rows.Next() {
		var (
			loc     model.Coordinates
			updated time.Time
		)
		if err := rows.Scan(&loc.Lat, &loc.Lon, &updated); err != nil {
			return false, eris.Wrap(err, "postgres: scan freshness")
		}
		if geo.Within(center, loc, radiusKM) && isFresh(now, updated) {
			return true, nil
		}
	}
	return false, eris.Wrap(rows.Err(), "postgres: iterate freshness")
}

func (s *PostgresStore) Upsert(ctx context.Context, places []model.Place) error {
	if len(places) == 0 {
		return nil
	}
	updated := s.now().UTC()
	rows := make([][]any, 0, len(places))
	for _, p := range places {
		if err := validatePlace(p); err != nil {
			return err
		}
		args, err := placeArgs(p, updated)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}
	_, err := db.BulkUpsert(ctx, s.pool, placeUpsert, dedupeRows(rows))
	return eris.Wrap(err, "postgres: upsert places")
}

// dedupeRows keeps the last row per name. ON CONFLICT cannot touch the
// same row twice in one statement.
func dedupeRows(rows [][]any) [][]any {
	index := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		name := r[0].(string)
		if i, ok := index[name]; ok {
			out[i] = r
			continue
		}
		index[name] = len(out)
		out = append(out, r)
	}
	return out
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*model.Place, error) {
	p, err := scanPostgresPlace(s.pool.QueryRow(ctx, placeSelect+` WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get %q", name)
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) SetRating(ctx context.Context, name string, rating model.Rating) error {
	if !rating.Valid() {
		return eris.Errorf("postgres: invalid rating %d", rating)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET accessibility = $1, last_updated = $2 WHERE name = $3`,
		int(rating), s.now().UTC(), name,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set rating %q", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "place %q", name)
	}
	return nil
}

func (s *PostgresStore) SetPhoto(ctx context.Context, name string, photo []byte) error {
	var value any
	if len(photo) > 0 {
		value = photo
	}
	tag, err := s.pool.Exec(ctx, `UPDATE places SET photo = $1 WHERE name = $2`, value, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: set photo %q", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "place %q", name)
	}
	return nil
}

func (s *PostgresStore) RecordVerification(ctx context.Context, v model.Verification) error {
	if v.PlaceName == "" {
		return eris.New("postgres: verification place name is required")
	}
	ts := v.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verifications (place_name, "user", verified, timestamp) VALUES ($1, $2, $3, $4)`,
		v.PlaceName, v.User, v.Verified, ts.UTC(),
	)
	return eris.Wrapf(err, "postgres: record verification for %q", v.PlaceName)
}

func (s *PostgresStore) Verifications(ctx context.Context, name string) ([]model.Verification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT place_name, COALESCE("user", ''), verified, timestamp FROM verifications WHERE place_name = $1 ORDER BY timestamp, id`,
		name,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list verifications for %q", name)
	}
	defer rows.Close()

	out := []model.Verification{}
	for rows.Next() {
		var v model.Verification
		if err := rows.Scan(&v.PlaceName, &v.User, &v.Verified, &v.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification")
		}
		v.Timestamp = v.Timestamp.UTC()
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate verifications")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByRating: make(map[model.Rating]int)}

	rows, err := s.pool.Query(ctx, `SELECT accessibility, COUNT(*) FROM places GROUP BY accessibility`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by rating")
	}
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan stats")
		}
		st.ByRating[model.Rating(rating)] += n
		st.Places += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate stats")
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM places WHERE photo IS NOT NULL),
			(SELECT COUNT(*) FROM places WHERE last_updated > $1),
			(SELECT COUNT(*) FROM verifications),
			(SELECT COALESCE(MAX(version), 0) FROM schema_version)`,
		s.now().Add(-StalenessWindow).UTC(),
	).Scan(&st.WithPhoto, &st.Fresh, &st.Verifications, &st.SchemaVersion); err != nil {
		return nil, eris.Wrap(err, "postgres: stats counts")
	}
	return st, nil
}

func scanPostgresPlace(row scannable) (*model.Place, error) {
	var (
		p        model.Place
		rating   int
		features string
		photo    []byte
	)
	err := row.Scan(&p.Name, &p.Location.Lat, &p.Location.Lon, &rating, &p.Type,
		&features, &p.Address, &p.LastUpdated,
		&p.Physical.SlopeDeg, &p.Physical.DoorWidthCM, &p.Physical.Surface, &photo, &p.Provider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan place")
	}
	p.Rating = model.Rating(rating)
	if !p.Rating.Valid() {
		p.Rating = model.RatingUnknown
	}
	p.Features = decodeFeatures(features)
	p.LastUpdated = p.LastUpdated.UTC()
	if len(photo) > 0 {
		p.Photo = photo
	}
	return &p, nil
}
