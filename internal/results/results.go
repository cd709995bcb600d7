// Package results persists finished assignment runs to a SQLite file.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ameisner/fiberassign/internal/logging"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	tiles INTEGER NOT NULL,
	targets INTEGER NOT NULL,
	assigned INTEGER,
	unassigned INTEGER
);

CREATE TABLE IF NOT EXISTS assignments (
	run_id TEXT NOT NULL REFERENCES runs(id),
	tile INTEGER NOT NULL,
	location INTEGER NOT NULL,
	target INTEGER NOT NULL,
	theta REAL NOT NULL,
	phi REAL NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	PRIMARY KEY (run_id, tile, location)
);

CREATE INDEX IF NOT EXISTS assignments_by_target
	ON assignments (run_id, target);
`

// Row is one persisted slot assignment with its positioner solution.
type Row struct {
	Tile   int32
	Loc    int32
	Target int64
	Theta  float64
	Phi    float64
	X      float64
	Y      float64
}

// RunSummary is the stored per-run bookkeeping.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Tiles      int
	Targets    int
	Assigned   int
	Unassigned int
}

// Store writes assignment rows and run summaries to a SQLite database.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("results: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun registers a new run and returns its id.
func (s *Store) BeginRun(ctx context.Context, tiles, targets int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, tiles, targets) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), tiles, targets,
	)
	if err != nil {
		return "", fmt.Errorf("results: begin run: %w", err)
	}
	s.log.Info(ctx, "run registered",
		logging.String("run_id", id),
		logging.Int("tiles", tiles),
		logging.Int("targets", targets),
	)
	return id, nil
}

// WriteTile stores the rows of one tile inside a single transaction.
func (s *Store) WriteTile(ctx context.Context, runID string, tile int32, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("results: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO assignments (run_id, tile, location, target, theta, phi, x, y)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("results: prepare insert: %w", err)
	}
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Tile, r.Loc, r.Target, r.Theta, r.Phi, r.X, r.Y); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("results: insert tile %d loc %d: %w", r.Tile, r.Loc, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("results: commit tile %d: %w", tile, err)
	}
	s.log.Debug(ctx, "tile rows written",
		logging.String("run_id", runID),
		logging.Int("tile", int(tile)),
		logging.Int("rows", len(rows)),
	)
	return nil
}

// FinishRun records the final counters and the finish time of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, assigned, unassigned int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, assigned = ?, unassigned = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), assigned, unassigned, runID,
	)
	if err != nil {
		return fmt.Errorf("results: finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("results: finish run: unknown run %s", runID)
	}
	return nil
}

// Run loads the summary of one run.
func (s *Store) Run(ctx context.Context, runID string) (RunSummary, error) {
	var (
		sum              RunSummary
		started          string
		finished         sql.NullString
		assigned, unassd sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, tiles, targets, assigned, unassigned
		 FROM runs WHERE id = ?`, runID,
	).Scan(&sum.ID, &started, &finished, &sum.Tiles, &sum.Targets, &assigned, &unassd)
	if err != nil {
		return RunSummary{}, fmt.Errorf("results: load run %s: %w", runID, err)
	}
	if sum.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return RunSummary{}, fmt.Errorf("results: parse started_at: %w", err)
	}
	if finished.Valid {
		if sum.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return RunSummary{}, fmt.Errorf("results: parse finished_at: %w", err)
		}
	}
	if assigned.Valid {
		sum.Assigned = int(assigned.Int64)
	}
	if unassd.Valid {
		sum.Unassigned = int(unassd.Int64)
	}
	return sum, nil
}

// TileRows loads the stored rows of one tile, ordered by location.
func (s *Store) TileRows(ctx context.Context, runID string, tile int32) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tile, location, target, theta, phi, x, y
		 FROM assignments WHERE run_id = ? AND tile = ? ORDER BY location`,
		runID, tile,
	)
	if err != nil {
		return nil, fmt.Errorf("results: query tile %d: %w", tile, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Tile, &r.Loc, &r.Target, &r.Theta, &r.Phi, &r.X, &r.Y); err != nil {
			return nil, fmt.Errorf("results: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
