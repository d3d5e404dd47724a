package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/config"
	"github.com/rohankatakam/cigraph/internal/storage"
)

// openStore opens the backend selected by the storage section
func openStore(cfg *config.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		return storage.NewMemoryStore(logger), nil
	case config.StorageSQLite:
		return storage.OpenSQLite(cfg.Storage.SQLitePath, logger)
	case config.StoragePostgres:
		return storage.OpenPostgres(cfg.Storage.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// withStore validates cfg for ctx, opens the store and closes it after fn
func withStore(ctx config.ValidationContext, fn func(storage.Store) error) error {
	result := cfg.Validate(ctx)
	for _, warn := range result.Warnings {
		logger.Warn(warn)
	}
	if err := result.Err(); err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}
