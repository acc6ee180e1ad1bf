// Package store opens the relational store and describes how its SQL dialect differs.
//
// Callers get a plain *sql.DB plus a [Dialect]. PostgreSQL is reached through a pgx
// connection pool bridged into database/sql; SQLite uses the pure-Go modernc driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Config describes how to reach the store.
type Config struct {
	Driver          string
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is an open database handle and its dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect

	pool *pgxpool.Pool
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := ForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	switch dialect.(type) {
	case Postgres:
		return openPostgres(ctx, cfg, dialect)
	default:
		return openSQLite(ctx, cfg, dialect)
	}
}

func openPostgres(ctx context.Context, cfg Config, dialect Dialect) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", dialect.Name(), "name", strings.TrimPrefix(u.Path, "/"))
	}

	return &Store{
		DB:      stdlib.OpenDBFromPool(pool),
		Dialect: dialect,
		pool:    pool,
	}, nil
}

func openSQLite(ctx context.Context, cfg Config, dialect Dialect) (*Store, error) {
	db, err := sql.Open("sqlite", sqliteDSN(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer; a single connection turns lock contention into queueing.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	slog.Info("connected to database", "driver", dialect.Name(), "path", strings.TrimPrefix(cfg.URL, "file:"))

	return &Store{DB: db, Dialect: dialect}, nil
}

// sqliteDSN adds a busy timeout unless the caller already chose pragmas.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close releases the database handle and, for PostgreSQL, the underlying pool.
func (s *Store) Close() error {
	err := s.DB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
