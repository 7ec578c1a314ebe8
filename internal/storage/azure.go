package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// AzureStore implements BlobStore for Azure Blob Storage
type AzureStore struct {
	serviceURL    azblob.ServiceURL
	containerName string
}

// NewAzureStore creates a new AzureStore instance
func NewAzureStore(cfg *config.AzureConfig, container string) (*AzureStore, error) {
	if cfg == nil {
		return nil, apperrors.NewValidationError("azure storage configuration is required", nil)
	}
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, apperrors.NewValidationError("azure account name and key are required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create Azure credentials", err)
	}

	// Single try per call; the unit driver owns retries
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{
		Retry: azblob.RetryOptions{
			Policy:   azblob.RetryPolicyFixed,
			MaxTries: 1,
		},
	})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStore{
		serviceURL:    azblob.NewServiceURL(*serviceURL, pipeline),
		containerName: container,
	}, nil
}

// EnsureContainer creates the container if it does not exist yet
func (as *AzureStore) EnsureContainer(ctx context.Context) error {
	containerURL := as.serviceURL.NewContainerURL(as.containerName)

	_, err := containerURL.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone)
	if err != nil {
		if serr, ok := err.(azblob.StorageError); ok &&
			serr.ServiceCode() == azblob.ServiceCodeContainerAlreadyExists {
			return nil
		}
		return apperrors.NewStorageError(
			fmt.Sprintf("failed to create container %s", as.containerName), err)
	}

	return nil
}

// Upload stores a local file as a block blob
func (as *AzureStore) Upload(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to open %s for upload", localPath), err)
	}
	defer file.Close()

	blobURL := as.serviceURL.NewContainerURL(as.containerName).NewBlockBlobURL(key)
	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024, // 4MB blocks
		Parallelism: 16,
	})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to upload blob %s", key), err)
	}

	return nil
}

// UploadBytes stores a small in-memory payload as a block blob
func (as *AzureStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	blobURL := as.serviceURL.NewContainerURL(as.containerName).NewBlockBlobURL(key)

	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentType,
		},
	})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to upload blob %s", key), err)
	}

	return nil
}

// Download materializes a blob into a local file
func (as *AzureStore) Download(ctx context.Context, key, localPath string) error {
	blobURL := as.serviceURL.NewContainerURL(as.containerName).NewBlockBlobURL(key)

	response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to download blob %s", key), err)
	}

	bodyStream := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer bodyStream.Close()

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

	if _, err := io.Copy(file, bodyStream); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to write blob %s to %s", key, localPath), err)
	}

	return nil
}

// List returns every blob under prefix
func (as *AzureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	containerURL := as.serviceURL.NewContainerURL(as.containerName)

	var objects []ObjectInfo
	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, apperrors.NewTransferError(
				fmt.Sprintf("failed to list blobs under %s", prefix), err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			info := ObjectInfo{
				Key:          blob.Name,
				LastModified: blob.Properties.LastModified,
			}
			if blob.Properties.ContentLength != nil {
				info.Size = *blob.Properties.ContentLength
			}
			objects = append(objects, info)
		}

		marker = listResponse.NextMarker
	}

	return objects, nil
}

// Delete removes a blob including its snapshots
func (as *AzureStore) Delete(ctx context.Context, key string) error {
	blobURL := as.serviceURL.NewContainerURL(as.containerName).NewBlockBlobURL(key)

	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to delete blob %s", key), err)
	}

	return nil
}

// HealthCheck verifies the container is reachable
func (as *AzureStore) HealthCheck(ctx context.Context) error {
	containerURL := as.serviceURL.NewContainerURL(as.containerName)

	_, err := containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		if serr, ok := err.(azblob.StorageError); ok &&
			serr.ServiceCode() == azblob.ServiceCodeContainerNotFound {
			// Container is created on demand during backup
			return nil
		}
		return apperrors.NewStorageError("azure health check failed: container not accessible", err)
	}

	return nil
}

// Name returns the provider type
func (as *AzureStore) Name() string {
	return string(config.StorageProviderAzure)
}

var _ BlobStore = (*AzureStore)(nil)
