package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/identity"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
// It does NOT run migrations; see App.Migrate.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// migrator is implemented by stores and sinks that own a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

// openGateway builds the identity gateway selected by cfg.StoreDriver.
func (a *App) openGateway(ctx context.Context) (identity.Gateway, error) {
	switch a.cfg.StoreDriver {
	case DriverPostgres:
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		st, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.Schema))
		if err != nil {
			return nil, err
		}
		a.migrators = append(a.migrators, st)
		a.log.Info("store.enabled", "driver", DriverPostgres, "schema", st.Schema())
		return st, nil

	case DriverSQLite:
		db, err := identity.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closeSQLite(db)
		st, err := identity.NewSQLiteStore(db)
		if err != nil {
			return nil, err
		}
		a.migrators = append(a.migrators, st)
		a.log.Info("store.enabled", "driver", DriverSQLite, "path", a.cfg.SQLitePath)
		return st, nil
	}

	a.log.Info("store.enabled", "driver", DriverMemory)
	return identity.NewInMemoryStore(), nil
}

// postgres returns the shared pool, opening it on first use.
func (a *App) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (a *App) closeSQLite(db *sql.DB) {
	a.closers = append(a.closers, db.Close)
}
