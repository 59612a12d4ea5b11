// Package postgres provides the Postgres-backed run store.
//
// The store expects this table:
//
//	CREATE TABLE runs (
//	    id             TEXT PRIMARY KEY,
//	    execution_date DATE NOT NULL,
//	    window_start   DATE NOT NULL,
//	    window_end     DATE NOT NULL,
//	    status         TEXT NOT NULL,
//	    error_text     TEXT NOT NULL DEFAULT '',
//	    submitted_at   TIMESTAMPTZ NOT NULL,
//	    started_at     TIMESTAMPTZ,
//	    finished_at    TIMESTAMPTZ,
//	    report         JSONB
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultListLimit = 50

// Config controls the Postgres connection pool used for run rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists run bookkeeping rows in Postgres.
type Store struct {
	pool  querier
	table string
}

// NewStore connects a pool from cfg and returns a Store over it.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("runstore.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run trends.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	reportJSON, err := marshalReport(run.Report)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	execution_date,
	window_start,
	window_end,
	status,
	error_text,
	submitted_at,
	started_at,
	finished_at,
	report
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		run.ID,
		run.ExecutionDate,
		run.Window.Start,
		run.Window.End,
		string(run.Status),
		run.ErrorText,
		run.Submitted,
		run.Started,
		run.Finished,
		reportJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun replaces the mutable columns of an existing run row.
func (s *Store) UpdateRun(ctx context.Context, run trends.Run) error {
	reportJSON, err := marshalReport(run.Report)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	error_text = $3,
	started_at = $4,
	finished_at = $5,
	report = $6
WHERE id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.ErrorText, run.Started, run.Finished, reportJSON)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trends.ErrRunNotFound
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (trends.Run, error) {
	query := fmt.Sprintf(`
SELECT id, execution_date, window_start, window_end, status, error_text,
	submitted_at, started_at, finished_at, report
FROM %s
WHERE id = $1`, s.table)

	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return trends.Run{}, trends.ErrRunNotFound
		}
		return trends.Run{}, fmt.Errorf("select run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. A non-positive limit applies the
// default page size.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]trends.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := fmt.Sprintf(`
SELECT id, execution_date, window_start, window_end, status, error_text,
	submitted_at, started_at, finished_at, report
FROM %s
ORDER BY submitted_at DESC, id DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var runs []trends.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func marshalReport(report *trends.RunReport) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

func scanRun(row interface{ Scan(dest ...any) error }) (trends.Run, error) {
	var (
		run        trends.Run
		status     string
		reportJSON []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.ExecutionDate,
		&run.Window.Start,
		&run.Window.End,
		&status,
		&run.ErrorText,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&reportJSON,
	); err != nil {
		return trends.Run{}, err
	}

	run.Status = trends.RunStatus(status)
	// DATE columns scan as midnight UTC; Day keeps the invariant explicit.
	run.ExecutionDate = trends.Day(run.ExecutionDate)
	run.Window.Start = trends.Day(run.Window.Start)
	run.Window.End = trends.Day(run.Window.End)

	if len(reportJSON) > 0 {
		report := &trends.RunReport{}
		if err := json.Unmarshal(reportJSON, report); err != nil {
			return trends.Run{}, fmt.Errorf("decode report: %w", err)
		}
		run.Report = report
	}
	return run, nil
}
