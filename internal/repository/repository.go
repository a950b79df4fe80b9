package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/database"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/domain"
	"github.com/jmoiron/sqlx"
)

// DefaultRecentLimit is the size of the "newest window" served to the dashboard.
const DefaultRecentLimit = 50

var schema = map[database.Dialect][]string{
	database.SQLite: {
		`CREATE TABLE IF NOT EXISTS measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			temperature REAL NOT NULL,
			humidity INTEGER NOT NULL,
			status TEXT NOT NULL,
			received_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_sensor ON measurements(sensor_id)`,
	},
	database.Postgres: {
		`CREATE TABLE IF NOT EXISTS measurements (
			id BIGSERIAL PRIMARY KEY,
			sensor_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			humidity BIGINT NOT NULL,
			status TEXT NOT NULL,
			received_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_sensor ON measurements(sensor_id)`,
	},
}

const selectColumns = `id, sensor_id, timestamp, temperature, humidity, status, received_at`

// Store is the append-only measurements table. Appends are serialized; reads are not.
type Store struct {
	db      *sqlx.DB
	dialect database.Dialect
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

func New(db *sqlx.DB, dialect database.Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Open connects to the backend and initializes the schema.
func Open(ctx context.Context, dsn, path string) (*Store, error) {
	db, dialect, err := database.Connect(dsn, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	s := New(db, dialect)
	if err := s.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Initialize creates the table on first run and leaves it untouched otherwise.
func (s *Store) Initialize(ctx context.Context) error {
	stmts, ok := schema[s.dialect]
	if !ok {
		return fmt.Errorf("%w: unsupported dialect %q", domain.ErrStorageUnavailable, s.dialect)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %w", domain.ErrStorageUnavailable, err)
		}
	}

	var last time.Time
	err := s.db.GetContext(ctx, &last, `SELECT received_at FROM measurements ORDER BY id DESC LIMIT 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: load last insertion time: %w", domain.ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	s.last = last
	s.mu.Unlock()
	return nil
}

// Append stores r and returns its id. received_at never goes backwards, even if the wall clock does.
func (s *Store) Append(ctx context.Context, r domain.NewReading) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receivedAt := s.now().UTC().Truncate(time.Microsecond)
	if receivedAt.Before(s.last) {
		receivedAt = s.last
	}

	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`INSERT INTO measurements (sensor_id, timestamp, temperature, humidity, status, received_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		r.SensorID, r.Timestamp, r.Temperature, r.Humidity, r.Status, receivedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert measurement: %w", domain.ErrWriteFailure, err)
	}

	s.last = receivedAt
	return id, nil
}

// Recent returns up to limit readings, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Reading, error) {
	out := []domain.Reading{}
	if limit <= 0 {
		return out, nil
	}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+selectColumns+` FROM measurements ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: select recent: %w", domain.ErrReadFailure, err)
	}
	return out, nil
}

// Since returns up to limit readings with id greater than afterID, oldest first.
func (s *Store) Since(ctx context.Context, afterID int64, limit int) ([]domain.Reading, error) {
	out := []domain.Reading{}
	if limit <= 0 {
		return out, nil
	}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+selectColumns+` FROM measurements WHERE id > ? ORDER BY id ASC LIMIT ?`), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: select since %d: %w", domain.ErrReadFailure, afterID, err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
