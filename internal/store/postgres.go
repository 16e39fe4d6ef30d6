package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/minutes-cli/internal/db"
	"github.com/sells-group/minutes-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	applyPoolConfig(pgxCfg, poolCfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// applyPoolConfig sizes the pool. A run writes once at the end, so the
// defaults stay small.
func applyPoolConfig(pgxCfg *pgxpool.Config, poolCfg *PoolConfig) {
	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	input_path  TEXT NOT NULL,
	output_path TEXT NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	usage       JSONB NOT NULL,
	cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	position   INTEGER NOT NULL,
	row_id     TEXT NOT NULL,
	annotation TEXT,
	error      TEXT,
	kind       TEXT NOT NULL DEFAULT '',
	usage      JSONB NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_results_row_id ON run_results(row_id);
`

var resultColumns = []string{"run_id", "position", "row_id", "annotation", "error", "kind", "usage"}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run, table model.Table) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage")
	}

	rows := make([][]any, 0, len(table))
	for i, r := range table {
		u, err := json.Marshal(r.Usage)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal result usage")
		}
		rows = append(rows, []any{run.ID, i, r.ID, r.Annotation, r.Error, r.Kind, u})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, provider, model, input_path, output_path, total, succeeded, failed, usage, cost, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.Provider, run.Model, run.InputPath, run.OutputPath,
		run.Total, run.Succeeded, run.Failed, usageJSON, run.Cost,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "run_results", resultColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert results for run %s", run.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, provider, model, input_path, output_path, total, succeeded, failed, usage, cost, started_at, finished_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider, model, input_path, output_path, total, succeeded, failed, usage, cost, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) (model.Table, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_id, annotation, error, kind, usage FROM run_results WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list results %s", runID)
	}
	defer rows.Close()

	var table model.Table
	for rows.Next() {
		var (
			r         model.Result
			usageJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Annotation, &r.Error, &r.Kind, &usageJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if err := json.Unmarshal(usageJSON, &r.Usage); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result usage")
		}
		table = append(table, r)
	}
	return table, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func scanPgRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		usageJSON []byte
	)
	if err := row.Scan(
		&r.ID, &r.Provider, &r.Model, &r.InputPath, &r.OutputPath,
		&r.Total, &r.Succeeded, &r.Failed, &usageJSON, &r.Cost,
		&r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(usageJSON, &r.Usage); err != nil {
		return nil, eris.Wrap(err, "unmarshal usage")
	}
	return &r, nil
}
