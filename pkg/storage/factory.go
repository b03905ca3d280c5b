package storage

import (
	"context"
	"fmt"

	"github.com/noah-isme/docvault-api/pkg/config"
)

// New returns the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case "", config.StorageDriverLocal:
		return NewLocalStorage(cfg.LocalDir)
	case config.StorageDriverMinIO:
		return NewMinIOStorage(ctx, cfg.MinIO)
	case config.StorageDriverS3:
		return NewS3Storage(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
