// Package app wires configuration to concrete services for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sapex/backend/internal/config"
	"sapex/backend/internal/storage"
	"sapex/backend/internal/storage/firestore"
	"sapex/backend/internal/storage/memory"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenStorage connects the backend selected by cfg. The returned func
// releases it.
func OpenStorage(ctx context.Context, cfg config.Config) (storage.Storage, func() error, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return openPostgres(ctx, cfg)
	case config.BackendFirestore:
		s, err := firestore.NewStore(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("firestore backend ready", "project", cfg.FirestoreProject)
		return s, s.Close, nil
	case config.BackendMemory:
		s := memory.New()
		slog.Warn("memory backend selected; data is lost on restart")
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (storage.Storage, func() error, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("postgres handle: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	closeAll := func() error {
		return errors.Join(rdb.Close(), sqlDB.Close())
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = closeAll()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	s := storage.NewStorageService(db, rdb)
	if err := s.AutoMigrate(); err != nil {
		_ = closeAll()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("postgres and redis connections established, migrations complete")
	return s, closeAll, nil
}
