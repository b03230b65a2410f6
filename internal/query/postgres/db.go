package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/observability"
)

type PoolConfig struct {
	DSN             string
	MinConns        int
	MaxConns        int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// DB is a pgx connection pool exposed through database/sql. The pool owns
// connection lifecycle; database/sql keeps no idle connections of its own.
type DB struct {
	SQL  *sql.DB
	pool *pgxpool.Pool
}

func Open(ctx context.Context, cfg PoolConfig) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{SQL: stdlib.OpenDBFromPool(pool), pool: pool}, nil
}

func (d *DB) Close() error {
	err := d.SQL.Close()
	d.pool.Close()
	return err
}

// PoolStats reports pool occupancy; it backs the askdb_db_pool_connections gauges.
func (d *DB) PoolStats() observability.DBPoolStats {
	stat := d.pool.Stat()
	return observability.DBPoolStats{
		Acquired: stat.AcquiredConns(),
		Idle:     stat.IdleConns(),
		Total:    stat.TotalConns(),
		Max:      stat.MaxConns(),
	}
}
