// Package telemetry records scalar time series keyed by global step.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Scalar names emitted by the trainer.
const (
	Loss        = "Loss"
	Accuracy    = "Accuracy"
	DevLoss     = "Dev Loss"
	DevAccuracy = "Dev Accuracy"
)

// FileName is the events database written under the save path.
const FileName = "events.db"

// Sink accepts scalar summaries.
type Sink interface {
	AddScalar(ctx context.Context, name string, step int64, value float64) error
	Close() error
}

// SQLite stores scalars in a single table, one row per emission. Rows of
// different runs sharing a save path are told apart by run id.
type SQLite struct {
	db    *sql.DB
	runID uuid.UUID
	now   func() time.Time
}

// OpenSQLite opens or creates <dir>/events.db and starts a new run.
func OpenSQLite(ctx context.Context, dir string) (*SQLite, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS scalars(
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			step INTEGER NOT NULL,
			value REAL NOT NULL,
			wall_time REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS scalars_run_name ON scalars(run_id, name, step)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init telemetry db: %w", err)
		}
	}
	return &SQLite{db: db, runID: uuid.New(), now: time.Now}, nil
}

// RunID identifies the rows written by this sink.
func (s *SQLite) RunID() string { return s.runID.String() }

// AddScalar implements Sink.
func (s *SQLite) AddScalar(ctx context.Context, name string, step int64, value float64) error {
	wall := float64(s.now().UnixNano()) / 1e9
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scalars(run_id, name, step, value, wall_time) VALUES(?,?,?,?,?)`,
		s.runID.String(), name, step, value, wall)
	if err != nil {
		return fmt.Errorf("telemetry %s@%d: %w", name, step, err)
	}
	return nil
}

// Point is one stored scalar.
type Point struct {
	Step  int64
	Value float64
}

// Series returns the points of name written by this run, ordered by step.
func (s *SQLite) Series(ctx context.Context, name string) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, value FROM scalars WHERE run_id = ? AND name = ? ORDER BY step, rowid`,
		s.runID.String(), name)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()
	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Step, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLite) Close() error {
	return s.db.Close()
}
