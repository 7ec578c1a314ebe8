package storage

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object within the container
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobStore is the transfer surface against one container of a blob store.
// Implementations perform a single attempt per call; retry policy belongs to
// the caller.
type BlobStore interface {
	// EnsureContainer creates the container if missing. An existing
	// container is success.
	EnsureContainer(ctx context.Context) error

	// Upload stores the file at localPath under key
	Upload(ctx context.Context, key, localPath string) error

	// UploadBytes stores a small in-memory payload under key
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error

	// Download materializes the object at key into localPath, creating
	// parent directories as needed
	Download(ctx context.Context, key, localPath string) error

	// List returns every object whose key starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the object at key
	Delete(ctx context.Context, key string) error

	// HealthCheck verifies the store is reachable with the configured
	// credentials
	HealthCheck(ctx context.Context) error

	// Name returns the provider type for logging
	Name() string
}
