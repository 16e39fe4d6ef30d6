// Package store keeps a history of annotation runs and their per-row results.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/minutes-cli/internal/model"
)

// Store defines the persistence interface for run history.
type Store interface {
	// SaveRun writes a finished run and its full result table atomically.
	// An empty run.ID is filled in.
	SaveRun(ctx context.Context, run *model.Run, table model.Table) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	ListResults(ctx context.Context, runID string) (model.Table, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "minutes.db"

// Open connects to the configured backend and applies migrations. poolCfg
// only applies to postgres and may be nil.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "store: migrate")
	}
	return st, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

const defaultListLimit = 100
