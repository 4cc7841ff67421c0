package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Latest for a serial with no readings.
var ErrNotFound = errors.New("no readings")

const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		serial            INTEGER NOT NULL,
		device_type       TEXT    NOT NULL,
		recorded_at       INTEGER NOT NULL,
		received_at       INTEGER NOT NULL,
		ph                REAL,
		redox             INTEGER,
		cl_free           REAL,
		salinity          REAL,
		water_temperature REAL,
		air_temperature   REAL,
		pump_running      INTEGER NOT NULL,
		water_flow        INTEGER NOT NULL,
		state             TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS readings_serial_time ON readings (serial, recorded_at)`,
}

// Reading is one stored snapshot.
type Reading struct {
	ID         int64                 `json:"id"`
	Serial     uint32                `json:"serial_number"`
	RecordedAt time.Time             `json:"recorded_at"`
	ReceivedAt time.Time             `json:"received_at"`
	State      *protocol.DeviceState `json:"state"`
}

// Store keeps device history in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Debug("History database opened", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("history database schema %d is newer than supported %d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate history schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return tx.Commit()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Insert stores one snapshot.
func (s *Store) Insert(ctx context.Context, state *protocol.DeviceState) error {
	if state == nil {
		return errors.New("nil device state")
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO readings
		(serial, device_type, recorded_at, received_at, ph, redox, cl_free, salinity,
		 water_temperature, air_temperature, pump_running, water_flow, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(state.SerialNumber),
		state.Type.String(),
		state.Timestamp.UnixMilli(),
		s.now().UnixMilli(),
		nullFloat(state.PH),
		nullInt(state.Redox),
		nullFloat(state.ClFree),
		nullFloat(state.Salinity),
		nullFloat(state.WaterTemperature),
		nullFloat(state.AirTemperature),
		state.PumpRunning,
		state.WaterFlowToProbes,
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// Latest returns the most recent reading for serial.
func (s *Store) Latest(ctx context.Context, serial uint32) (Reading, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, serial, recorded_at, received_at, state
		FROM readings WHERE serial = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, int64(serial))
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, fmt.Errorf("serial %d: %w", serial, ErrNotFound)
	}
	return r, err
}

// History returns readings for serial recorded at or after since, oldest
// first. With limit > 0 only the newest limit readings are returned.
func (s *Store) History(ctx context.Context, serial uint32, since time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, serial, recorded_at, received_at, state
		FROM readings WHERE serial = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		int64(serial), since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Serials lists every unit with stored readings.
func (s *Store) Serials(ctx context.Context) ([]uint32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT serial FROM readings ORDER BY serial`)
	if err != nil {
		return nil, fmt.Errorf("failed to list serials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []uint32
	for rows.Next() {
		var serial int64
		if err := rows.Scan(&serial); err != nil {
			return nil, err
		}
		out = append(out, uint32(serial))
	}
	return out, rows.Err()
}

// Prune deletes readings recorded before the cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE recorded_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(row scanner) (Reading, error) {
	var (
		r         Reading
		serial    int64
		recorded  int64
		received  int64
		stateJSON string
	)
	if err := row.Scan(&r.ID, &serial, &recorded, &received, &stateJSON); err != nil {
		return Reading{}, err
	}
	r.Serial = uint32(serial)
	r.RecordedAt = time.UnixMilli(recorded)
	r.ReceivedAt = time.UnixMilli(received)

	var state protocol.DeviceState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return Reading{}, fmt.Errorf("reading %d has a corrupt state: %w", r.ID, err)
	}
	r.State = &state
	return r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
