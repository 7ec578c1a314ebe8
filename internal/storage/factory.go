package storage

import (
	"context"
	"fmt"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// NewStore creates a blob store for the configured provider
func NewStore(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	if cfg == nil {
		return nil, apperrors.NewValidationError("storage configuration is required", nil)
	}

	switch cfg.Provider {
	case config.StorageProviderAzure:
		return NewAzureStore(cfg.Azure, cfg.Container)

	case config.StorageProviderS3:
		return NewS3Store(cfg.S3, cfg.Container)

	case config.StorageProviderGCS:
		return NewGCSStore(ctx, cfg.GCS, cfg.Container)

	case config.StorageProviderLocal:
		return NewLocalStore(cfg.Local, cfg.Container)

	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unsupported storage provider: %s", cfg.Provider), nil)
	}
}

// SupportedProviders returns the provider types NewStore accepts
func SupportedProviders() []config.StorageProviderType {
	return []config.StorageProviderType{
		config.StorageProviderAzure,
		config.StorageProviderS3,
		config.StorageProviderGCS,
		config.StorageProviderLocal,
	}
}
