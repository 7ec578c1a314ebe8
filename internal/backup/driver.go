package backup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"mongo-blob-backup/internal/archive"
	"mongo-blob-backup/internal/dump"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/scratch"
	"mongo-blob-backup/internal/snapshot"
	"mongo-blob-backup/internal/storage"
)

// CollectionCounter reports the estimated document count of a collection.
// The driver uses it to detect units that vanished or were empty at dump
// time, which resolve as skipped rather than failed.
type CollectionCounter interface {
	CollectionCount(ctx context.Context, database, collection string) (int64, error)
}

// Driver resolves one backup unit at a time: dump the namespace to scratch,
// optionally pack it, upload the result, and hard-delete the scratch. A unit
// attempt covers the whole dump-pack-upload pipeline; when any stage fails
// with a recoverable error the entire pipeline is retried under the
// configured policy.
type Driver struct {
	store     storage.BlobStore
	runner    dump.Runner
	tooling   dump.Tooling
	counter   CollectionCounter
	packer    *archive.Packer
	workspace *scratch.Workspace
	naming    snapshot.Naming
	retry     apperrors.RetryPolicy
	logger    *logging.Logger
	uri       string
	gzip      bool
}

// DriverOptions carries the collaborators a Driver needs
type DriverOptions struct {
	Store     storage.BlobStore
	Runner    dump.Runner
	Tooling   dump.Tooling
	Counter   CollectionCounter
	Packer    *archive.Packer
	Workspace *scratch.Workspace
	Naming    snapshot.Naming
	Retry     apperrors.RetryPolicy
	Logger    *logging.Logger
	URI       string
	Gzip      bool
}

// NewDriver creates a unit backup driver from its collaborators
func NewDriver(opts DriverOptions) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	runner := opts.Runner
	if runner == nil {
		runner = dump.NewExecRunner(logger)
	}
	return &Driver{
		store:     opts.Store,
		runner:    runner,
		tooling:   opts.Tooling,
		counter:   opts.Counter,
		packer:    opts.Packer,
		workspace: opts.Workspace,
		naming:    opts.Naming,
		retry:     opts.Retry,
		logger:    logger,
		uri:       opts.URI,
		gzip:      opts.Gzip,
	}
}

// PrepareRun makes the remote side ready for a new snapshot: the container
// exists, no prior run occupies the snapshot root, and the server root
// marker is in place. Creating the container and writing the marker are
// idempotent; a populated snapshot root is a conflict because two runs in
// the same second would interleave their objects.
func (d *Driver) PrepareRun(ctx context.Context, id snapshot.ID) error {
	if err := d.store.EnsureContainer(ctx); err != nil {
		return err
	}

	existing, err := d.store.List(ctx, d.naming.Root(id)+"/")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperrors.NewConflictError(
			fmt.Sprintf("snapshot root %s already holds %d objects", d.naming.DisplayRoot(id), len(existing)), nil)
	}

	return d.store.UploadBytes(ctx, d.naming.RootMarkerKey(), []byte{}, "application/octet-stream")
}

// Execute resolves a single unit and reports how it ended. The returned
// result always carries the attempt count and duration; Error is set only
// for failed units.
func (d *Driver) Execute(ctx context.Context, id snapshot.ID, unit snapshot.Unit) UnitResult {
	start := time.Now()
	result := UnitResult{Unit: unit, Status: UnitFailed}

	if skip := d.checkVanished(ctx, unit); skip {
		result.Status = UnitSkippedNotFound
		result.Duration = time.Since(start)
		d.logger.LogUnitResolved(unit.Database, unit.Collection, string(result.Status), 0, 0, result.Duration)
		return result
	}

	unitDir, err := d.workspace.UnitDir(unit)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		d.logger.LogUnitResolved(unit.Database, unit.Collection, string(result.Status), 0, 0, result.Duration)
		return result
	}
	defer func() {
		if err := d.workspace.RemoveUnit(unit); err != nil {
			d.logger.WithField("error", err.Error()).Warnf("Failed to remove scratch for unit %s", unit)
		}
	}()

	attempts := 0
	uploaded := int64(0)

	policy := d.retry
	chained := policy.OnAttempt
	policy.OnAttempt = func(attempt int, lastErr error) {
		attempts = attempt
		if attempt > 1 {
			d.logger.WithFields(map[string]interface{}{
				"unit":    unit.String(),
				"attempt": attempt,
			}).Infof("Retrying unit %s", unit)
		}
		if chained != nil {
			chained(attempt, lastErr)
		}
	}

	err = policy.Run(ctx, func() error {
		bytes, attemptErr := d.attempt(ctx, id, unit, unitDir, attempts)
		if attemptErr != nil {
			return attemptErr
		}
		uploaded = bytes
		return nil
	})

	result.Attempts = attempts
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		d.logger.LogUnitResolved(unit.Database, unit.Collection, string(result.Status), attempts, 0, result.Duration)
		return result
	}

	result.Status = UnitSucceeded
	result.Bytes = uploaded
	d.logger.LogUnitResolved(unit.Database, unit.Collection, string(result.Status), attempts, uploaded, result.Duration)
	return result
}

// checkVanished reports whether a collection unit should resolve as skipped.
// A count error is not conclusive; the dump itself will surface real
// problems, so only a clean zero answer short-circuits.
func (d *Driver) checkVanished(ctx context.Context, unit snapshot.Unit) bool {
	if unit.IsInstance() || d.counter == nil {
		return false
	}
	count, err := d.counter.CollectionCount(ctx, unit.Database, unit.Collection)
	if err != nil {
		d.logger.WithField("error", err.Error()).Debugf("Count check inconclusive for %s", unit)
		return false
	}
	return count == 0
}

// attempt runs one full dump-pack-upload pipeline for the unit. The dump
// directory is recreated fresh so partial output from a failed attempt never
// leaks into the next one.
func (d *Driver) attempt(ctx context.Context, id snapshot.ID, unit snapshot.Unit, unitDir string, attempt int) (int64, error) {
	dumpDir := filepath.Join(unitDir, "dump")
	if err := os.RemoveAll(dumpDir); err != nil {
		return 0, apperrors.NewStorageError("failed to reset unit dump directory", err)
	}
	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		return 0, apperrors.NewStorageError("failed to create unit dump directory", err)
	}

	bin, args := d.dumpInvocation(unit, dumpDir)
	if _, err := d.runner.Run(ctx, bin, args); err != nil {
		d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "dump", err)
		return 0, err
	}
	d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "dump", nil)

	if d.packer != nil && d.packer.Enabled() {
		return d.uploadPacked(ctx, id, unit, unitDir, dumpDir, attempt)
	}
	return d.uploadRaw(ctx, id, unit, dumpDir, attempt)
}

func (d *Driver) dumpInvocation(unit snapshot.Unit, dumpDir string) (string, []string) {
	if unit.IsInstance() {
		return d.tooling.DumpInstanceCommand(d.uri, dumpDir, d.gzip)
	}
	return d.tooling.DumpCommand(dump.DumpOptions{
		URI:    d.uri,
		Unit:   unit,
		OutDir: dumpDir,
		Gzip:   d.gzip,
	})
}

// uploadPacked wraps the dump output into a single artifact and uploads it
func (d *Driver) uploadPacked(ctx context.Context, id snapshot.ID, unit snapshot.Unit, unitDir, dumpDir string, attempt int) (int64, error) {
	base := unit.Collection
	if unit.IsInstance() {
		base = "instance"
	}
	name := d.packer.ArtifactName(base)
	artifact := filepath.Join(unitDir, name)

	if _, err := d.packer.Pack(dumpDir, artifact); err != nil {
		d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "pack", err)
		return 0, err
	}
	d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "pack", nil)

	key := d.naming.ObjectKey(id, name)
	if !unit.IsInstance() {
		key = d.naming.UnitPrefix(id, unit.Database, unit.Collection) + "/" + name
	}

	bytes, err := d.uploadFile(ctx, key, artifact)
	if err != nil {
		d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "upload", err)
		return 0, err
	}
	d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "upload", nil)
	return bytes, nil
}

// uploadRaw uploads every file mongodump produced, one object per file.
// Collection units place files directly under the unit prefix; instance
// units preserve the dump's database/file layout below the snapshot root.
func (d *Driver) uploadRaw(ctx context.Context, id snapshot.ID, unit snapshot.Unit, dumpDir string, attempt int) (int64, error) {
	files, err := dumpFiles(dumpDir)
	if err != nil {
		d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "upload", err)
		return 0, err
	}
	if len(files) == 0 {
		err := apperrors.NewDumpError(
			fmt.Sprintf("dump produced no files for unit %s", unit), nil)
		d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "dump", err)
		return 0, err
	}

	total := int64(0)
	for _, rel := range files {
		key := d.naming.ObjectKey(id, rel)
		if !unit.IsInstance() {
			key = d.naming.UnitPrefix(id, unit.Database, unit.Collection) + "/" + filepath.Base(rel)
		}
		bytes, err := d.uploadFile(ctx, key, filepath.Join(dumpDir, rel))
		if err != nil {
			d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "upload", err)
			return 0, err
		}
		total += bytes
	}
	d.logger.LogUnitAttempt(unit.Database, unit.Collection, attempt, "upload", nil)
	return total, nil
}

func (d *Driver) uploadFile(ctx context.Context, key, localPath string) (int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, apperrors.NewStorageError(
			fmt.Sprintf("failed to stat upload source %s", localPath), err)
	}

	start := time.Now()
	err = d.store.Upload(ctx, key, localPath)
	d.logger.LogTransfer("upload", key, info.Size(), time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// dumpFiles lists the regular files below dir as slash-separated paths
// relative to dir, in walk order
func dumpFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to walk dump output", err)
	}
	return files, nil
}
