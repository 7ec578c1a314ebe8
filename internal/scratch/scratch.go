package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/snapshot"
)

// Workspace is the run-scoped scratch area on local disk. Every run gets a
// fresh directory and must release it on every exit path, including
// interruption.
type Workspace struct {
	root     string
	logger   *logging.Logger
	mu       sync.Mutex
	released bool
}

// New creates a fresh workspace below the configured base directory
func New(cfg *config.ScratchConfig, logger *logging.Logger) (*Workspace, error) {
	base := ""
	if cfg != nil {
		base = cfg.BaseDir
	}
	if base == "" {
		base = os.TempDir()
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, apperrors.NewStorageError(
			fmt.Sprintf("failed to create scratch base directory %s", base), err)
	}

	root, err := os.MkdirTemp(base, "mongoblob-*")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create scratch workspace", err)
	}

	logger.WithField("path", root).Debug("Created scratch workspace")

	return &Workspace{
		root:   root,
		logger: logger,
	}, nil
}

// Root returns the workspace directory
func (w *Workspace) Root() string {
	return w.root
}

// UnitDir creates and returns the dump output directory for one unit
func (w *Workspace) UnitDir(unit snapshot.Unit) (string, error) {
	dir := w.unitPath(unit)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.NewStorageError(
			fmt.Sprintf("failed to create unit scratch for %s", unit), err)
	}
	return dir, nil
}

// RemoveUnit hard-deletes a unit's scratch directory. Each unit's local
// artifacts are gone the moment the unit is resolved, so disk usage stays
// bounded by one unit.
func (w *Workspace) RemoveUnit(unit snapshot.Unit) error {
	if err := os.RemoveAll(w.unitPath(unit)); err != nil {
		return apperrors.NewStorageError(
			fmt.Sprintf("failed to remove unit scratch for %s", unit), err)
	}
	return nil
}

func (w *Workspace) unitPath(unit snapshot.Unit) string {
	if unit.IsInstance() {
		return filepath.Join(w.root, "units", "instance")
	}
	return filepath.Join(w.root, "units", unit.Database, unit.Collection)
}

// RestoreDir creates and returns the directory that receives downloaded
// snapshot objects
func (w *Workspace) RestoreDir() (string, error) {
	dir := filepath.Join(w.root, "restore")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.NewStorageError("failed to create restore scratch", err)
	}
	return dir, nil
}

// Release removes the whole workspace. Safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if err := os.RemoveAll(w.root); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"path":  w.root,
			"error": err.Error(),
		}).Warn("Failed to release scratch workspace")
		return apperrors.NewStorageError("failed to release scratch workspace", err)
	}

	w.logger.WithField("path", w.root).Debug("Released scratch workspace")
	return nil
}
