// Package store opens the execution state backend selected in the
// configuration.
package store

import (
	"context"
	"errors"
	"fmt"

	"xeroexport/internal/config"
	"xeroexport/internal/logger"
	"xeroexport/internal/store/file"
	"xeroexport/internal/store/postgres"
	"xeroexport/internal/store/s3"
	"xeroexport/internal/store/sqlite"
	"xeroexport/pkg/services"
)

// ErrUnknownBackend is returned for a STATE_STORE value Open does not support
var ErrUnknownBackend = errors.New("unknown state store backend")

// Open connects to the configured backend. The caller closes the store.
func Open(ctx context.Context, cfg *config.Config) (services.StateStore, error) {
	log := logger.WithComponent("store")
	log.Debug().Str("backend", cfg.StateStore).Msg("Opening state store")

	switch cfg.StateStore {
	case config.StoreFile:
		st, err := file.New(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreSQLite:
		st, err := sqlite.New(cfg.StateSQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StorePostgres:
		st, err := postgres.New(ctx, cfg.StatePostgresDSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreS3:
		st, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.StateS3Bucket,
			Region:    cfg.StateS3Region,
			Endpoint:  cfg.StateS3Endpoint,
			Prefix:    cfg.StateS3Prefix,
			AccessKey: cfg.StateS3AccessKey,
			SecretKey: cfg.StateS3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StateStore)
	}
}
