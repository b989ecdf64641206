package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/config"
	"github.com/MarcoPoloResearchLab/lumina/internal/database"
	"github.com/MarcoPoloResearchLab/lumina/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 3 * time.Second

// backend is the key/value store selected by storage.driver plus its teardown.
type backend struct {
	store   storage.KeyValueStore
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for index := len(b.closers) - 1; index >= 0; index-- {
		if err := b.closers[index](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*backend, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverSQLite:
		db, err := database.OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		store, err := storage.NewSQLiteStore(db, time.Now)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return &backend{store: store, closers: []func() error{sqlDB.Close}}, nil

	case config.StorageDriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddress, err)
		}
		store, err := storage.NewRedisStore(client, cfg.RedisKeyPrefix)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("redis store connected", zap.String("address", cfg.RedisAddress))
		return &backend{store: store, closers: []func() error{client.Close}}, nil

	case config.StorageDriverMemory:
		logger.Warn("memory store selected, notes will not survive a restart")
		return &backend{store: storage.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newAdapter(cfg config.AppConfig, store storage.KeyValueStore, logger *zap.Logger) (*storage.Adapter, error) {
	return storage.NewAdapter(storage.AdapterConfig{
		Store:  store,
		Key:    cfg.NotesKey,
		Logger: logger,
	})
}
