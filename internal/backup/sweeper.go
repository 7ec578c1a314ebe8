package backup

import (
	"context"
	"fmt"
	"time"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/snapshot"
	"mongo-blob-backup/internal/storage"
)

// DefaultRetentionHorizon is how long snapshots are kept when no horizon is
// configured
const DefaultRetentionHorizon = 7 * 24 * time.Hour

// SweepResult summarizes one retention sweep
type SweepResult struct {
	Examined int      `json:"examined"`
	Removed  int      `json:"removed"`
	DryRun   bool     `json:"dry_run,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Sweeper removes snapshot objects that have aged past the retention
// horizon. It works purely from the remote listing, so it cleans up
// snapshots written by earlier runs and other hosts alike.
type Sweeper struct {
	store  storage.BlobStore
	naming snapshot.Naming
	logger *logging.Logger

	// now is swapped in tests to pin the horizon
	now func() time.Time
}

// NewSweeper creates a retention sweeper for one server's snapshots
func NewSweeper(store storage.BlobStore, naming snapshot.Naming, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Sweeper{
		store:  store,
		naming: naming,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep deletes every object under the server prefix whose snapshot is
// strictly older than maxAge. The server root marker is never deleted. An
// object exactly at the horizon is kept. Delete failures are collected per
// object so one stuck object does not shield the rest; the sweep keeps
// going and reports them together.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration, dryRun bool) (*SweepResult, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetentionHorizon
	}
	cutoff := s.now().Add(-maxAge)

	objects, err := s.store.List(ctx, s.naming.ServerPrefix())
	if err != nil {
		s.logger.LogRetentionSweep(s.naming.Server, 0, 0, maxAge, dryRun, err)
		return nil, err
	}

	result := &SweepResult{DryRun: dryRun}
	for _, obj := range objects {
		if s.naming.IsRootMarker(obj.Key) {
			continue
		}
		result.Examined++

		if !s.objectTime(obj).Before(cutoff) {
			continue
		}
		if dryRun {
			result.Removed++
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", obj.Key, err))
			continue
		}
		result.Removed++
	}

	var sweepErr error
	if len(result.Errors) > 0 {
		sweepErr = apperrors.NewStorageError(
			fmt.Sprintf("retention sweep failed to delete %d of %d expired objects", len(result.Errors), len(result.Errors)+result.Removed), nil)
	}
	s.logger.LogRetentionSweep(s.naming.Server, result.Examined, result.Removed, maxAge, dryRun, sweepErr)
	return result, sweepErr
}

// objectTime determines when the object was taken. Objects under a snapshot
// root age by the timestamp embedded in the root name, which keeps the
// sweep deterministic regardless of when uploads finished. Strays that do
// not parse fall back to their stored modification time.
func (s *Sweeper) objectTime(obj storage.ObjectInfo) time.Time {
	if root, ok := snapshot.RootFromKey(obj.Key); ok {
		if _, id, err := snapshot.ParseRoot(root); err == nil {
			return id.Time()
		}
	}
	return obj.LastModified
}
