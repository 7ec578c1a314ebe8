package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// GCSStore implements BlobStore for Google Cloud Storage
type GCSStore struct {
	client     *gcs.Client
	bucketName string
	projectID  string
}

// NewGCSStore creates a new GCSStore instance
func NewGCSStore(ctx context.Context, cfg *config.GCSConfig, container string) (*GCSStore, error) {
	if cfg == nil {
		return nil, apperrors.NewValidationError("gcs storage configuration is required", nil)
	}

	var client *gcs.Client
	var err error

	if cfg.CredentialsPath != "" {
		client, err = gcs.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		// Use default credentials (e.g., from environment or metadata server)
		client, err = gcs.NewClient(ctx)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create GCS client", err)
	}

	return &GCSStore{
		client:     client,
		bucketName: container,
		projectID:  cfg.ProjectID,
	}, nil
}

// bucket returns the handle with transport retries disabled; the unit driver
// owns retries
func (gs *GCSStore) bucket() *gcs.BucketHandle {
	return gs.client.Bucket(gs.bucketName).Retryer(gcs.WithPolicy(gcs.RetryNever))
}

// EnsureContainer creates the bucket if it does not exist yet
func (gs *GCSStore) EnsureContainer(ctx context.Context) error {
	bucket := gs.bucket()

	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gcs.ErrBucketNotExist) {
		return apperrors.NewStorageError(
			fmt.Sprintf("failed to check bucket %s", gs.bucketName), err)
	}

	if err := bucket.Create(ctx, gs.projectID, nil); err != nil {
		return apperrors.NewStorageError(
			fmt.Sprintf("failed to create bucket %s", gs.bucketName), err)
	}

	return nil
}

// Upload stores a local file as a GCS object
func (gs *GCSStore) Upload(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to open %s for upload", localPath), err)
	}
	defer file.Close()

	writer := gs.bucket().Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to write object %s", key), err)
	}
	if err := writer.Close(); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to upload object %s", key), err)
	}

	return nil
}

// UploadBytes stores a small in-memory payload as a GCS object
func (gs *GCSStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	writer := gs.bucket().Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		writer.Close()
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to write object %s", key), err)
	}
	if err := writer.Close(); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to upload object %s", key), err)
	}

	return nil
}

// Download materializes a GCS object into a local file
func (gs *GCSStore) Download(ctx context.Context, key, localPath string) error {
	reader, err := gs.bucket().Object(key).NewReader(ctx)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to download object %s", key), err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create directory for %s", localPath), err)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create %s", localPath), err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to write object %s to %s", key, localPath), err)
	}

	return nil
}

// List returns every object under prefix
func (gs *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := gs.bucket().Objects(ctx, &gcs.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperrors.NewTransferError(
				fmt.Sprintf("failed to list objects under %s", prefix), err)
		}

		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}

	return objects, nil
}

// Delete removes a GCS object
func (gs *GCSStore) Delete(ctx context.Context, key string) error {
	if err := gs.bucket().Object(key).Delete(ctx); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to delete object %s", key), err)
	}

	return nil
}

// HealthCheck verifies the bucket is reachable
func (gs *GCSStore) HealthCheck(ctx context.Context) error {
	_, err := gs.bucket().Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			// Bucket is created on demand during backup
			return nil
		}
		return apperrors.NewStorageError("gcs health check failed: bucket not accessible", err)
	}

	return nil
}

// Name returns the provider type
func (gs *GCSStore) Name() string {
	return string(config.StorageProviderGCS)
}

// Close releases the underlying client
func (gs *GCSStore) Close() error {
	return gs.client.Close()
}

var _ BlobStore = (*GCSStore)(nil)
