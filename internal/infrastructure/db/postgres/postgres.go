// Package postgres is the relational Credential Store driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const DefaultTimeout = 5 * time.Second

//go:embed migrations/*.sql
var migrations embed.FS

// Open creates a pgx pool for dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	// Simple protocol keeps the pool usable by goose through database/sql.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return runGoose(ctx, pool, func(ctx context.Context, db *sql.DB) error {
		return goose.UpContext(ctx, db, "migrations")
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	return runGoose(ctx, pool, func(ctx context.Context, db *sql.DB) error {
		return goose.DownContext(ctx, db, "migrations")
	})
}

// MigrationStatus logs the applied state of every migration through the
// logger installed with SetMigrationLogger.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) error {
	return runGoose(ctx, pool, func(ctx context.Context, db *sql.DB) error {
		return goose.StatusContext(ctx, db, "migrations")
	})
}

// SetMigrationLogger routes goose output, which defaults to the standard
// library logger.
func SetMigrationLogger(l goose.Logger) {
	goose.SetLogger(l)
}

func runGoose(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, *sql.DB) error) error {
	if pool == nil {
		return errors.New("nil pool provided")
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return fn(ctx, db)
}
