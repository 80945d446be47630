package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Repository handles run history persistence
// Database: runs.db (runs table)
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Create stores a run. A missing ID or timestamp is assigned here.
func (r *Repository) Create(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now()
	}
	run.CreatedAt = run.CreatedAt.UTC().Truncate(time.Second)

	blob, err := encodeSnapshot(run.Snapshot)
	if err != nil {
		return Run{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, created_at, assets, weight_sum, q, unconstrained, objective,
		 condition, at_bound, method, policy, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CreatedAt.Unix(),
		run.Assets,
		run.WeightSum,
		run.Q,
		run.Unconstrained,
		run.Objective,
		run.Condition,
		boolToInt(run.AtBound),
		run.Method,
		run.Policy,
		blob,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	r.log.Debug().Str("run_id", run.ID).Float64("q", run.Q).Msg("Stored run")
	return run, nil
}

// Get returns the run with the given id
func (r *Repository) Get(ctx context.Context, id string) (Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, assets, weight_sum, q, unconstrained, objective,
		       condition, at_bound, method, policy, snapshot
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, assets, weight_sum, q, unconstrained, objective,
		       condition, at_bound, method, policy, snapshot
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run       Run
		createdAt int64
		atBound   int
		blob      []byte
	)
	err := s.Scan(
		&run.ID,
		&createdAt,
		&run.Assets,
		&run.WeightSum,
		&run.Q,
		&run.Unconstrained,
		&run.Objective,
		&run.Condition,
		&atBound,
		&run.Method,
		&run.Policy,
		&blob,
	)
	if err != nil {
		return Run{}, err
	}

	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.AtBound = atBound != 0
	run.Snapshot, err = decodeSnapshot(blob)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
