package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/db"
	"github.com/wheelmate/wheelmate/internal/model"
)

// legacyTable receives an unversioned places table before the current
// layout is created. It is never dropped.
const legacyTable = "places_legacy"

type sqliteMigration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var sqliteMigrations = []sqliteMigration{
	{version: 1, name: "places and verifications", apply: migrateSQLitePlaces},
	{version: 2, name: "place provider", apply: migrateSQLiteProvider},
}

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS places (
	name          TEXT PRIMARY KEY,
	lat           REAL NOT NULL,
	lon           REAL NOT NULL,
	accessibility INTEGER NOT NULL DEFAULT 0,
	type          TEXT NOT NULL DEFAULT '',
	features      TEXT NOT NULL DEFAULT '[]',
	address       TEXT NOT NULL DEFAULT '',
	last_updated  TEXT NOT NULL,
	slope         REAL,
	door_width    REAL,
	surface       TEXT,
	photo         BLOB,
	provider      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_places_location ON places(lat, lon);
CREATE INDEX IF NOT EXISTS idx_places_accessibility ON places(accessibility);

CREATE TABLE IF NOT EXISTS verifications (
	place_name TEXT NOT NULL,
	user       TEXT,
	verified   INTEGER NOT NULL DEFAULT 1,
	timestamp  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verifications_place ON verifications(place_name);
`

// migrateSQLite applies every migration newer than the recorded schema
// version, each in its own transaction.
func migrateSQLite(ctx context.Context, sqlDB *sql.DB, now time.Time) error {
	if _, err := sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return eris.Wrap(err, "sqlite: migrate: create schema_version")
	}

	var current int
	if err := sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return eris.Wrap(err, "sqlite: migrate: read version")
	}

	for _, m := range sqliteMigrations {
		if m.version <= current {
			continue
		}
		tx, err := sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrapf(err, "sqlite: migrate: begin v%d", m.version)
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: migrate: v%d %s", m.version, m.name)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			m.version, formatTime(now),
		); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: migrate: record v%d", m.version)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: migrate: commit v%d", m.version)
		}
		zap.L().Info("store: applied migration",
			zap.String("component", "store"),
			zap.Int("version", m.version),
			zap.String("name", m.name),
		)
	}
	return nil
}

func migrateSQLitePlaces(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "places")
	if err != nil {
		return err
	}

	legacy := len(cols) > 0 && !cols["accessibility"]
	if legacy {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE places RENAME TO `+legacyTable); err != nil {
			return eris.Wrap(err, "rename legacy places")
		}
	}

	if _, err := tx.ExecContext(ctx, sqliteSchemaV1); err != nil {
		return eris.Wrap(err, "create schema")
	}

	if legacy {
		n, err := copyLegacyPlaces(ctx, tx)
		if err != nil {
			return err
		}
		zap.L().Info("store: copied legacy places",
			zap.String("component", "store"),
			zap.Int("rows", n),
			zap.String("table", legacyTable),
		)
	}
	return nil
}

// migrateSQLiteProvider adds the provider column to tables created before it
// was part of the v1 layout.
func migrateSQLiteProvider(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "places")
	if err != nil {
		return err
	}
	if cols["provider"] {
		return nil
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE places ADD COLUMN provider TEXT NOT NULL DEFAULT ''`)
	return eris.Wrap(err, "add provider column")
}

// tableColumns returns the column names of table, or an empty set when the
// table does not exist.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, eris.Wrapf(err, "table info %s", table)
	}
	defer rows.Close() //nolint:errcheck

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "scan table info")
		}
		cols[name] = true
	}
	return cols, eris.Wrap(rows.Err(), "iterate table info")
}

// copyLegacyPlaces converts rows of the original layout (integer rating,
// description, comma separated features, date-only timestamps) into the
// current table. Rows without a name or with invalid coordinates are
// skipped.
func copyLegacyPlaces(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name, lat, lon, rating, type, features, last_updated, slope, door_width, surface, photo FROM `+legacyTable)
	if err != nil {
		return 0, eris.Wrap(err, "read legacy places")
	}

	var places []legacyPlace
	for rows.Next() {
		var lp legacyPlace
		if err := rows.Scan(&lp.name, &lp.lat, &lp.lon, &lp.rating, &lp.typ, &lp.features,
			&lp.updated, &lp.slope, &lp.doorWidth, &lp.surface, &lp.photo); err != nil {
			rows.Close() //nolint:errcheck
			return 0, eris.Wrap(err, "scan legacy place")
		}
		places = append(places, lp)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "iterate legacy places")
	}

	stmt, err := db.UpsertStatement(db.SQLite, placeUpsert)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, lp := range places {
		p, ok := lp.place()
		if !ok {
			continue
		}
		args, err := placeArgs(p, formatTime(p.LastUpdated))
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, eris.Wrapf(err, "copy legacy place %q", p.Name)
		}
		copied++
	}
	return copied, nil
}

type legacyPlace struct {
	name      sql.NullString
	lat, lon  sql.NullFloat64
	rating    sql.NullInt64
	typ       sql.NullString
	features  sql.NullString
	updated   sql.NullString
	slope     sql.NullFloat64
	doorWidth sql.NullFloat64
	surface   sql.NullString
	photo     []byte
}

func (lp legacyPlace) place() (model.Place, bool) {
	if !lp.name.Valid || lp.name.String == "" || !lp.lat.Valid || !lp.lon.Valid {
		return model.Place{}, false
	}
	p := model.Place{
		Name:        lp.name.String,
		Type:        lp.typ.String,
		Location:    model.Coordinates{Lat: lp.lat.Float64, Lon: lp.lon.Float64},
		Rating:      model.Rating(lp.rating.Int64),
		Features:    splitLegacyFeatures(lp.features.String),
		LastUpdated: parseTime(lp.updated.String),
		Photo:       lp.photo,
	}
	if p.Location.Validate() != nil {
		return model.Place{}, false
	}
	if !p.Rating.Valid() {
		p.Rating = model.RatingUnknown
	}
	if lp.slope.Valid {
		p.Physical.SlopeDeg = model.Float64(lp.slope.Float64)
	}
	if lp.doorWidth.Valid {
		p.Physical.DoorWidthCM = model.Float64(lp.doorWidth.Float64)
	}
	if lp.surface.Valid && lp.surface.String != "" && lp.surface.String != "unknown" {
		p.Physical.Surface = model.String(lp.surface.String)
	}
	return p, true
}

// splitLegacyFeatures splits the comma separated feature text of the
// original layout.
func splitLegacyFeatures(raw string) []string {
	out := []string{}
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
