package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/repo/mongo"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/repo/sqlite"
)

type userStore struct {
	repo  account.Repository
	ping  func(ctx context.Context) error
	close func()
}

// openStore connects the configured backend and brings its schema up to date.
func openStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (*userStore, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &userStore{
			repo:  postgres.NewUsersRepo(pool, prom),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		repo := mongo.NewUsersRepo(client.Database(cfg.MongoDB), prom)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &userStore{
			repo: repo,
			ping: func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.Warn("mongo disconnect failed", "err", err)
				}
			},
		}, nil

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir sqlite dir: %w", err)
			}
		}
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateSQLite(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return &userStore{
			repo:  sqlite.NewUsersRepo(sqlDB, prom),
			ping:  sqlDB.PingContext,
			close: func() { _ = sqlDB.Close() },
		}, nil

	case config.StoreMemory:
		repo := memory.NewUsersRepo()
		log.Warn("using in-memory user store; data is lost on restart")
		return &userStore{repo: repo, ping: repo.Ping, close: func() {}}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
