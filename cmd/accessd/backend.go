package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/memory"
	mongostore "github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/mongo"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/postgres"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/pkg/config"
	"github.com/faisalazhar1701/destinycreditai-sub000/pkg/logger"
)

// credentialStore is the store plus its readiness probe.
type credentialStore interface {
	ports.CredentialStore
	Ping(ctx context.Context) error
}

// openStore connects the configured driver. Postgres migrations are applied
// on open; close releases the underlying connections.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store credentialStore, closeFn func(context.Context), err error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		postgres.SetMigrationLogger(logger.NewPrintfLogger(log, "migrations"))
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("postgres connected and migrated")
		return postgres.NewStore(pool, cfg.Store.Timeout), func(context.Context) { pool.Close() }, nil

	case "mongo":
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Store.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		s := mongostore.NewIdentityStore(db)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongodb connected")
		return s, func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				log.Warn().Err(err).Msg("mongodb disconnect")
			}
		}, nil

	case "memory":
		log.Warn().Msg("using in-memory credential store; data is lost on restart")
		return memory.New(), func(context.Context) {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
}

// openPostgres is used by the commands that only make sense against postgres.
func openPostgres(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func initLogger(cfg *config.Config) zerolog.Logger {
	return logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty || cfg.Env == "development",
		Service: "accessd",
	})
}
