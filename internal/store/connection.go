// Package store holds the Postgres-backed repositories for agent runs
// and RCA runs/reports, plus the pgx/sqlx connection pool setup.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/agentops-sre/rca-engine/internal/config"
	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

// Open builds a *sqlx.DB backed by a pgx connection pool, configured
// from the database section of the service config.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, opfail.ParseError("database URL", "pgx DSN", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, opfail.DatabaseError("open connection pool", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db := sqlx.NewDb(sqlDB, "pgx")

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, opfail.DatabaseError("ping database", err)
	}

	return db, nil
}
