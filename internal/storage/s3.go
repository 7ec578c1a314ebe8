package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// S3Store implements BlobStore for Amazon S3
type S3Store struct {
	client *s3.S3
	bucket string
}

// NewS3Store creates a new S3Store instance
func NewS3Store(cfg *config.S3Config, container string) (*S3Store, error) {
	if cfg == nil {
		return nil, apperrors.NewValidationError("s3 storage configuration is required", nil)
	}
	if cfg.Region == "" {
		return nil, apperrors.NewValidationError("s3 region is required", nil)
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
		// Single try per call; the unit driver owns retries
		MaxRetries: aws.Int(0),
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // token
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create AWS session", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: container,
	}, nil
}

// EnsureContainer creates the bucket if it does not exist yet
func (ss *S3Store) EnsureContainer(ctx context.Context) error {
	_, err := ss.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(ss.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = ss.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(ss.bucket),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeBucketAlreadyExists, s3.ErrCodeBucketAlreadyOwnedByYou:
				return nil
			}
		}
		return apperrors.NewStorageError(
			fmt.Sprintf("failed to create bucket %s", ss.bucket), err)
	}

	return nil
}

// Upload stores a local file as an S3 object
func (ss *S3Store) Upload(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to open %s for upload", localPath), err)
	}
	defer file.Close()

	_, err = ss.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to upload object %s", key), err)
	}

	return nil
}

// UploadBytes stores a small in-memory payload as an S3 object
func (ss *S3Store) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := ss.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ss.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to upload object %s", key), err)
	}

	return nil
}

// Download materializes an S3 object into a local file
func (ss *S3Store) Download(ctx context.Context, key, localPath string) error {
	result, err := ss.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to download object %s", key), err)
	}
	defer result.Body.Close()

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

	if _, err := io.Copy(file, result.Body); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to write object %s to %s", key, localPath), err)
	}

	return nil
}

// List returns every object under prefix
func (ss *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(ss.bucket),
		Prefix: aws.String(prefix),
	}

	var objects []ObjectInfo
	err := ss.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				info := ObjectInfo{
					Key: aws.StringValue(obj.Key),
				}
				if obj.Size != nil {
					info.Size = *obj.Size
				}
				if obj.LastModified != nil {
					info.LastModified = *obj.LastModified
				}
				objects = append(objects, info)
			}
			return true
		})
	if err != nil {
		return nil, apperrors.NewTransferError(
			fmt.Sprintf("failed to list objects under %s", prefix), err)
	}

	return objects, nil
}

// Delete removes an S3 object
func (ss *S3Store) Delete(ctx context.Context, key string) error {
	_, err := ss.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to delete object %s", key), err)
	}

	return nil
}

// HealthCheck verifies the bucket is reachable
func (ss *S3Store) HealthCheck(ctx context.Context) error {
	_, err := ss.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(ss.bucket),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchBucket, "NotFound":
				// Bucket is created on demand during backup
				return nil
			}
		}
		return apperrors.NewStorageError("s3 health check failed: bucket not accessible", err)
	}

	return nil
}

// Name returns the provider type
func (ss *S3Store) Name() string {
	return string(config.StorageProviderS3)
}

var _ BlobStore = (*S3Store)(nil)
