package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	meter_id TEXT NOT NULL,
	meter_name TEXT NOT NULL DEFAULT '',
	driver TEXT NOT NULL,
	field TEXT NOT NULL,
	numeric_value REAL,
	text_value TEXT,
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_meter_field ON readings(meter_id, field);
`

// Store archives decoded readings in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the readings database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveFields writes one row per scalar field of a decoded telegram. Numeric
// values land in numeric_value, everything else in text_value. Keys starting
// with an underscore are framing metadata and are skipped.
func (s *Store) SaveFields(ctx context.Context, meterID, meterName, driver string, receivedAt time.Time, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings
		(meter_id, meter_name, driver, field, numeric_value, text_value, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	ts := receivedAt.UTC().Format(time.RFC3339)
	for key, value := range fields {
		if len(key) == 0 || key[0] == '_' {
			continue
		}
		var numeric sql.NullFloat64
		var text sql.NullString
		switch v := value.(type) {
		case float64:
			numeric = sql.NullFloat64{Float64: v, Valid: true}
		case float32:
			numeric = sql.NullFloat64{Float64: float64(v), Valid: true}
		case int:
			numeric = sql.NullFloat64{Float64: float64(v), Valid: true}
		case int64:
			numeric = sql.NullFloat64{Float64: float64(v), Valid: true}
		case bool:
			text = sql.NullString{String: fmt.Sprintf("%t", v), Valid: true}
		case string:
			text = sql.NullString{String: v, Valid: true}
		default:
			text = sql.NullString{String: fmt.Sprintf("%v", v), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, meterID, meterName, driver, key, numeric, text, ts); err != nil {
			return fmt.Errorf("store: insert %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// CountReadings returns how many rows are archived for a meter.
func (s *Store) CountReadings(ctx context.Context, meterID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE meter_id = ?`, meterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// LatestNumeric returns the most recent numeric value archived for a field.
func (s *Store) LatestNumeric(ctx context.Context, meterID, field string) (float64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT numeric_value FROM readings
		WHERE meter_id = ? AND field = ? ORDER BY id DESC LIMIT 1`, meterID, field).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("store: latest %s: %w", field, err)
	}
	if !v.Valid {
		return 0, fmt.Errorf("store: field %s is not numeric", field)
	}
	return v.Float64, nil
}
