package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// LocalStore implements BlobStore on the local file system. It backs on-prem
// targets and the end-to-end tests.
type LocalStore struct {
	basePath    string
	container   string
	permissions os.FileMode
}

// NewLocalStore creates a new LocalStore instance
func NewLocalStore(cfg *config.LocalConfig, container string) (*LocalStore, error) {
	if cfg == nil || cfg.BasePath == "" {
		return nil, apperrors.NewValidationError("local storage base_path is required", nil)
	}

	permissions := cfg.Permissions
	if permissions == 0 {
		permissions = 0o755
	}

	return &LocalStore{
		basePath:    cfg.BasePath,
		container:   container,
		permissions: permissions,
	}, nil
}

// EnsureContainer creates the container directory if it does not exist yet
func (ls *LocalStore) EnsureContainer(ctx context.Context) error {
	if err := os.MkdirAll(ls.containerPath(), ls.permissions); err != nil {
		return apperrors.NewStorageError(
			fmt.Sprintf("failed to create container directory %s", ls.containerPath()), err)
	}
	return nil
}

// Upload copies a local file under the container directory
func (ls *LocalStore) Upload(ctx context.Context, key, localPath string) error {
	target, err := ls.objectPath(key)
	if err != nil {
		return err
	}

	source, err := os.Open(localPath)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to open %s for upload", localPath), err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(target), ls.permissions); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create directory for %s", key), err)
	}

	destination, err := os.Create(target)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create object %s", key), err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to copy object %s", key), err)
	}

	return nil
}

// UploadBytes writes a small in-memory payload under the container directory
func (ls *LocalStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	target, err := ls.objectPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), ls.permissions); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create directory for %s", key), err)
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to write object %s", key), err)
	}

	return nil
}

// Download copies a stored object to localPath
func (ls *LocalStore) Download(ctx context.Context, key, localPath string) error {
	source, err := ls.objectPath(key)
	if err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to open object %s", key), err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), ls.permissions); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create directory for %s", localPath), err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to create %s", localPath), err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to copy object %s to %s", key, localPath), err)
	}

	return nil
}

// List returns every object whose key starts with prefix
func (ls *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	root := ls.containerPath()

	var objects []ObjectInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewTransferError(
			fmt.Sprintf("failed to list objects under %s", prefix), err)
	}

	return objects, nil
}

// Delete removes a stored object
func (ls *LocalStore) Delete(ctx context.Context, key string) error {
	target, err := ls.objectPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil {
		return apperrors.NewTransferError(
			fmt.Sprintf("failed to delete object %s", key), err)
	}

	return nil
}

// HealthCheck verifies that the base directory is writable
func (ls *LocalStore) HealthCheck(ctx context.Context) error {
	if err := os.MkdirAll(ls.basePath, ls.permissions); err != nil {
		return apperrors.NewStorageError("local health check failed: cannot create base directory", err)
	}

	testFile := filepath.Join(ls.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("health_check"), 0o644); err != nil {
		return apperrors.NewStorageError("local health check failed: cannot write to base directory", err)
	}
	if _, err := os.ReadFile(testFile); err != nil {
		return apperrors.NewStorageError("local health check failed: cannot read from base directory", err)
	}
	os.Remove(testFile)

	return nil
}

// Name returns the provider type
func (ls *LocalStore) Name() string {
	return string(config.StorageProviderLocal)
}

// Helper methods

func (ls *LocalStore) containerPath() string {
	return filepath.Join(ls.basePath, ls.container)
}

// objectPath maps a slash-separated key to a path below the container
// directory, rejecting traversal attempts
func (ls *LocalStore) objectPath(key string) (string, error) {
	if key == "" {
		return "", apperrors.NewValidationError("object key cannot be empty", nil)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", apperrors.NewValidationError(
				fmt.Sprintf("object key %q must not contain parent references", key), nil)
		}
	}
	return filepath.Join(ls.containerPath(), filepath.FromSlash(key)), nil
}

var _ BlobStore = (*LocalStore)(nil)
