package execution

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mongo-blob-backup/internal/archive"
	"mongo-blob-backup/internal/backup"
	"mongo-blob-backup/internal/config"
	"mongo-blob-backup/internal/dump"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	mongosvc "mongo-blob-backup/internal/mongo"
	"mongo-blob-backup/internal/restore"
	"mongo-blob-backup/internal/scratch"
	"mongo-blob-backup/internal/snapshot"
	"mongo-blob-backup/internal/storage"
)

// Executor wires the services behind one invocation and runs its mode with
// error recovery. Scratch space is registered with the shutdown handler, so
// an interrupted run still cleans up after itself.
type Executor struct {
	cfg             *config.Config
	logger          *logging.Logger
	instance        mongosvc.InstanceService
	shutdownHandler *apperrors.GracefulShutdownHandler
	toolVersion     string
}

// NewExecutor creates an executor from a loaded configuration
func NewExecutor(cfg *config.Config, toolVersion string) (*Executor, error) {
	cfg.SetDefaults()

	logger, err := logging.NewLogger(logging.Config{
		Level:      logging.LogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		ShowCaller: cfg.Logging.ShowCaller,
		LogFile:    cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Executor{
		cfg:             cfg,
		logger:          logger,
		instance:        mongosvc.NewServiceWithOptions(cfg.Mongo.ConnectTimeout, logger),
		shutdownHandler: apperrors.NewGracefulShutdownHandler(),
		toolVersion:     toolVersion,
	}, nil
}

// ValidateConfig validates the configuration for any mode
func (e *Executor) ValidateConfig() error {
	return e.cfg.Validate()
}

// ExecuteBackup runs a whole backup: enumerate units, resolve each one,
// write the manifest, then sweep expired snapshots. Unit failures are
// collected, never fatal mid-run; the returned error summarizes them.
func (e *Executor) ExecuteBackup(ctx context.Context) (*backup.RunResult, error) {
	e.shutdownHandler.Start()
	defer e.shutdownHandler.Stop()

	naming := e.naming()
	if err := naming.Validate(); err != nil {
		return nil, err
	}
	if err := e.tooling().ValidateDump(); err != nil {
		return nil, err
	}

	done := e.logger.LogOperationStart("backup", map[string]interface{}{
		"server": e.cfg.Server,
		"scope":  string(e.cfg.Backup.Scope),
	})

	result := &backup.RunResult{
		Server:    e.cfg.Server,
		Scope:     string(e.cfg.Backup.Scope),
		StartedAt: time.Now().UTC(),
	}

	workspace, err := scratch.New(&e.cfg.Scratch, e.logger)
	if err != nil {
		done(err)
		return nil, err
	}
	defer workspace.Release()
	e.shutdownHandler.RegisterShutdownFunc(func() error {
		workspace.Release()
		return nil
	})

	client, err := e.instance.Connect(ctx, e.cfg.Mongo.URI)
	if err != nil {
		done(err)
		return nil, err
	}
	defer e.instance.Close(client)

	if version, err := e.instance.ServerVersion(ctx, client); err == nil {
		e.logger.WithField("server_version", version).Info("Source instance ready")
	}

	enumerator := mongosvc.NewEnumerator(client, e.logger)
	units, err := e.enumerateUnits(ctx, enumerator)
	if err != nil {
		done(err)
		return nil, err
	}

	store, err := storage.NewStore(ctx, &e.cfg.Storage)
	if err != nil {
		done(err)
		return nil, err
	}
	packer, err := archive.NewPacker(&e.cfg.Backup.Archive)
	if err != nil {
		done(err)
		return nil, err
	}

	id := snapshot.NewID(time.Now().UTC())
	result.Snapshot = id
	result.Root = naming.Root(id)

	driver := backup.NewDriver(backup.DriverOptions{
		Store:     store,
		Tooling:   e.tooling(),
		Counter:   enumerator,
		Packer:    packer,
		Workspace: workspace,
		Naming:    naming,
		Retry: apperrors.RetryPolicy{
			Interval:    e.cfg.Backup.Retry.Interval,
			MaxAttempts: e.cfg.Backup.Retry.MaxAttempts,
		},
		Logger: e.logger,
		URI:    e.cfg.Mongo.URI,
		Gzip:   e.cfg.Backup.Gzip,
	})

	if err := driver.PrepareRun(ctx, id); err != nil {
		done(err)
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"snapshot": id.String(),
		"root":     naming.DisplayRoot(id),
		"units":    len(units),
		"parallel": e.cfg.Backup.Parallel,
	}).Info("Backing up units")

	result.Units = e.runUnits(ctx, driver, id, units)
	result.FinishedAt = time.Now().UTC()

	if err := driver.WriteManifest(ctx, id, backup.BuildManifest(result, e.toolVersion)); err != nil {
		e.logger.WithField("error", err.Error()).Warn("Failed to write snapshot manifest")
	}

	if e.cfg.Retention.Enabled && e.cfg.Retention.RunAfterBackup && !result.Failed() {
		sweeper := backup.NewSweeper(store, naming, e.logger)
		sweep, err := sweeper.Sweep(ctx, e.cfg.Retention.MaxAge, false)
		if err != nil {
			e.logger.WithField("error", err.Error()).Warn("Retention sweep failed; backup result stands")
		}
		result.Retention = sweep
	}

	if _, _, failed := result.Counts(); failed > 0 {
		err := apperrors.NewBackupIncompleteError(failed, len(result.Units))
		done(err)
		return result, err
	}
	done(nil)
	return result, nil
}

// ExecuteRestore restores one snapshot into the configured instance. The
// ref may be a snapshot root, a bare timestamp, or "latest".
func (e *Executor) ExecuteRestore(ctx context.Context, ref string) (*restore.Result, error) {
	e.shutdownHandler.Start()
	defer e.shutdownHandler.Stop()

	naming := e.naming()
	if err := naming.Validate(); err != nil {
		return nil, err
	}
	if err := e.tooling().ValidateRestore(); err != nil {
		return nil, err
	}

	done := e.logger.LogOperationStart("restore", map[string]interface{}{
		"server":   e.cfg.Server,
		"snapshot": ref,
	})

	store, err := storage.NewStore(ctx, &e.cfg.Storage)
	if err != nil {
		done(err)
		return nil, err
	}

	root, err := e.ResolveSnapshot(ctx, store, ref)
	if err != nil {
		done(err)
		return nil, err
	}

	workspace, err := scratch.New(&e.cfg.Scratch, e.logger)
	if err != nil {
		done(err)
		return nil, err
	}
	defer workspace.Release()
	e.shutdownHandler.RegisterShutdownFunc(func() error {
		workspace.Release()
		return nil
	})

	client, err := e.instance.Connect(ctx, e.cfg.Mongo.URI)
	if err != nil {
		done(err)
		return nil, err
	}
	defer e.instance.Close(client)

	driver := restore.NewDriver(restore.DriverOptions{
		Store:        store,
		Tooling:      e.tooling(),
		Dropper:      mongosvc.NewEnumerator(client, e.logger),
		Opener:       archive.NewOpener(&e.cfg.Backup.Archive.Encryption),
		Workspace:    workspace,
		Logger:       e.logger,
		URI:          e.cfg.Mongo.URI,
		WriteConcern: e.cfg.Restore.WriteConcern,
	})

	result, err := driver.Execute(ctx, root)
	done(err)
	return result, err
}

// Prune sweeps expired snapshots without running a backup first. A maxAge
// of zero falls back to the configured retention horizon.
func (e *Executor) Prune(ctx context.Context, maxAge time.Duration, dryRun bool) (*backup.SweepResult, error) {
	naming := e.naming()
	if err := naming.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewStore(ctx, &e.cfg.Storage)
	if err != nil {
		return nil, err
	}

	if maxAge <= 0 {
		maxAge = e.cfg.Retention.MaxAge
	}
	return backup.NewSweeper(store, naming, e.logger).Sweep(ctx, maxAge, dryRun)
}

// SnapshotInfo describes one snapshot found in storage
type SnapshotInfo struct {
	Root        string      `json:"root"`
	ID          snapshot.ID `json:"-"`
	Taken       time.Time   `json:"taken"`
	Objects     int         `json:"objects"`
	Bytes       int64       `json:"bytes"`
	HasManifest bool        `json:"has_manifest"`
}

// ListSnapshots returns the server's snapshots, newest first, aggregated
// from the remote listing
func (e *Executor) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	naming := e.naming()
	if err := naming.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewStore(ctx, &e.cfg.Storage)
	if err != nil {
		return nil, err
	}
	return listSnapshots(ctx, store, naming)
}

// DescribeSnapshot resolves a snapshot reference and returns its listing
// summary plus the stored manifest when one exists. Confirmation prompts
// rely on this before anything destructive runs.
func (e *Executor) DescribeSnapshot(ctx context.Context, ref string) (*SnapshotInfo, *backup.Manifest, error) {
	naming := e.naming()
	if err := naming.Validate(); err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStore(ctx, &e.cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	root, err := e.ResolveSnapshot(ctx, store, ref)
	if err != nil {
		return nil, nil, err
	}

	infos, err := listSnapshots(ctx, store, naming)
	if err != nil {
		return nil, nil, err
	}

	var info *SnapshotInfo
	for i := range infos {
		if infos[i].Root == root {
			info = &infos[i]
			break
		}
	}
	if info == nil {
		// explicit roots may name a snapshot this server never wrote
		_, id, err := snapshot.ParseRoot(root)
		if err != nil {
			return nil, nil, err
		}
		info = &SnapshotInfo{Root: root, ID: id, Taken: id.Time()}
	}

	var manifest *backup.Manifest
	if info.HasManifest {
		if m, err := backup.ReadManifest(ctx, store, root); err == nil {
			manifest = m
		} else {
			e.logger.WithField("error", err.Error()).Debug("Failed to read snapshot manifest")
		}
	}
	return info, manifest, nil
}

// ResolveSnapshot turns a user-supplied snapshot reference into a root
// prefix. Accepted forms: a full root, a bare snapshot timestamp, or
// "latest" (also the empty string) for the newest snapshot in storage.
func (e *Executor) ResolveSnapshot(ctx context.Context, store storage.BlobStore, ref string) (string, error) {
	naming := e.naming()

	switch {
	case ref == "" || ref == "latest":
		infos, err := listSnapshots(ctx, store, naming)
		if err != nil {
			return "", err
		}
		if len(infos) == 0 {
			return "", apperrors.NewValidationError(
				fmt.Sprintf("no snapshots found for server %s", e.cfg.Server), nil)
		}
		return infos[0].Root, nil

	case strings.Contains(ref, "/"):
		if _, _, err := snapshot.ParseRoot(ref); err != nil {
			return "", err
		}
		return ref, nil

	default:
		id, err := snapshot.ParseID(ref)
		if err != nil {
			return "", err
		}
		return naming.Root(id), nil
	}
}

// GetLogger returns the logger instance
func (e *Executor) GetLogger() *logging.Logger {
	return e.logger
}

// GetShutdownHandler returns the shutdown handler
func (e *Executor) GetShutdownHandler() *apperrors.GracefulShutdownHandler {
	return e.shutdownHandler
}

// HandleError classifies and logs an error before it reaches the user
func (e *Executor) HandleError(err error) error {
	if err == nil {
		return nil
	}

	classifier := apperrors.NewErrorClassifier()
	appErr := classifier.ClassifyError(err)

	fields := map[string]interface{}{
		"error_type":  string(appErr.Type),
		"recoverable": appErr.IsRecoverable(),
	}
	for k, v := range appErr.Context {
		fields[k] = v
	}

	if appErr.IsRecoverable() {
		e.logger.WithFields(fields).Warn("Recoverable error occurred")
	} else {
		e.logger.WithFields(fields).Error("Non-recoverable error occurred")
	}

	return appErr
}

// Helper methods

func (e *Executor) naming() snapshot.Naming {
	return snapshot.Naming{Container: e.cfg.Storage.Container, Server: e.cfg.Server}
}

func (e *Executor) tooling() dump.Tooling {
	return dump.Tooling{DumpBin: e.cfg.Backup.DumpBin, RestoreBin: e.cfg.Restore.RestoreBin}
}

func (e *Executor) enumerateUnits(ctx context.Context, enumerator *mongosvc.Enumerator) ([]snapshot.Unit, error) {
	if e.cfg.Backup.Scope == config.ScopeInstance {
		return []snapshot.Unit{snapshot.InstanceUnit}, nil
	}
	return enumerator.Units(ctx, e.cfg.Server)
}

// runUnits resolves every unit, at most Parallel at a time. Results keep
// enumeration order regardless of completion order.
func (e *Executor) runUnits(ctx context.Context, driver *backup.Driver, id snapshot.ID, units []snapshot.Unit) []backup.UnitResult {
	results := make([]backup.UnitResult, len(units))

	var group errgroup.Group
	group.SetLimit(e.cfg.Backup.Parallel)
	for i, unit := range units {
		i, unit := i, unit
		group.Go(func() error {
			results[i] = driver.Execute(ctx, id, unit)
			return nil
		})
	}
	group.Wait()
	return results
}

func listSnapshots(ctx context.Context, store storage.BlobStore, naming snapshot.Naming) ([]SnapshotInfo, error) {
	objects, err := store.List(ctx, naming.ServerPrefix())
	if err != nil {
		return nil, err
	}

	index := map[string]*SnapshotInfo{}
	for _, obj := range objects {
		if naming.IsRootMarker(obj.Key) {
			continue
		}
		root, ok := snapshot.RootFromKey(obj.Key)
		if !ok {
			continue
		}
		info := index[root]
		if info == nil {
			_, id, err := snapshot.ParseRoot(root)
			if err != nil {
				continue
			}
			info = &SnapshotInfo{Root: root, ID: id, Taken: id.Time()}
			index[root] = info
		}
		info.Objects++
		info.Bytes += obj.Size
		if obj.Key == root+"/"+backup.ManifestName {
			info.HasManifest = true
		}
	}

	infos := make([]SnapshotInfo, 0, len(index))
	for _, info := range index {
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Taken.After(infos[j].Taken)
	})
	return infos, nil
}
