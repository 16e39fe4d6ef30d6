package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/minutes-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	input_path  TEXT NOT NULL,
	output_path TEXT NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	usage       TEXT NOT NULL,
	cost        REAL NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	position   INTEGER NOT NULL,
	row_id     TEXT NOT NULL,
	annotation TEXT,
	error      TEXT,
	kind       TEXT NOT NULL DEFAULT '',
	usage      TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_results_row_id ON run_results(row_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run, table model.Table) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	usageJSON, err := json.Marshal(run.Usage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, provider, model, input_path, output_path, total, succeeded, failed, usage, cost, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Provider, run.Model, run.InputPath, run.OutputPath,
		run.Total, run.Succeeded, run.Failed, string(usageJSON), run.Cost,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_results (run_id, position, row_id, annotation, error, kind, usage) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare result insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range table {
		u, err := json.Marshal(r.Usage)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result usage")
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, r.ID, nullable(r.Annotation), nullable(r.Error), r.Kind, string(u)); err != nil {
			return eris.Wrapf(err, "sqlite: insert result %d", i)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, model, input_path, output_path, total, succeeded, failed, usage, cost, started_at, finished_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, model, input_path, output_path, total, succeeded, failed, usage, cost, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) (model.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, annotation, error, kind, usage FROM run_results WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list results %s", runID)
	}
	defer rows.Close()

	var table model.Table
	for rows.Next() {
		var (
			r                 model.Result
			annotation, errTx sql.NullString
			usageJSON         string
		)
		if err := rows.Scan(&r.ID, &annotation, &errTx, &r.Kind, &usageJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if annotation.Valid {
			r.Annotation = &annotation.String
		}
		if errTx.Valid {
			r.Error = &errTx.String
		}
		if err := json.Unmarshal([]byte(usageJSON), &r.Usage); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result usage")
		}
		table = append(table, r)
	}
	return table, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		usageJSON string
	)
	if err := row.Scan(
		&r.ID, &r.Provider, &r.Model, &r.InputPath, &r.OutputPath,
		&r.Total, &r.Succeeded, &r.Failed, &usageJSON, &r.Cost,
		&r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(usageJSON), &r.Usage); err != nil {
		return nil, eris.Wrap(err, "unmarshal usage")
	}
	return &r, nil
}
