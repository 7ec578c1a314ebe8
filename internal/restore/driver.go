package restore

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"mongo-blob-backup/internal/archive"
	"mongo-blob-backup/internal/dump"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/scratch"
	"mongo-blob-backup/internal/snapshot"
	"mongo-blob-backup/internal/storage"
)

// Phase names the stages a restore moves through, in order. The target
// instance is only touched from PhaseDropping on; any failure before that
// leaves it exactly as it was.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseDropping    Phase = "dropping"
	PhaseLoading     Phase = "loading"
	PhaseDone        Phase = "done"
	PhaseAborted     Phase = "aborted"
)

// Dropper clears every collection in the target's non-system databases
type Dropper interface {
	DropAllCollections(ctx context.Context) (int, error)
}

// UnitOutcome records how one load entry resolved
type UnitOutcome struct {
	Unit     snapshot.Unit `json:"unit"`
	Loaded   bool          `json:"loaded"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"-"`
}

// Result records a whole restore
type Result struct {
	Root       string        `json:"root"`
	Phase      Phase         `json:"phase"`
	Dropped    int           `json:"dropped_collections"`
	Outcomes   []UnitOutcome `json:"outcomes"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Counts tallies load outcomes
func (r *Result) Counts() (loaded, failed int) {
	for _, outcome := range r.Outcomes {
		if outcome.Loaded {
			loaded++
		} else {
			failed++
		}
	}
	return
}

// Driver restores one snapshot into a target instance. The order is strict:
// every object downloads before anything on the target is dropped, and
// loading starts only after the drop finishes.
type Driver struct {
	store        storage.BlobStore
	runner       dump.Runner
	tooling      dump.Tooling
	dropper      Dropper
	opener       *archive.Packer
	workspace    *scratch.Workspace
	logger       *logging.Logger
	uri          string
	writeConcern string
	phase        Phase
}

// DriverOptions carries the collaborators a restore driver needs
type DriverOptions struct {
	Store        storage.BlobStore
	Runner       dump.Runner
	Tooling      dump.Tooling
	Dropper      Dropper
	Opener       *archive.Packer
	Workspace    *scratch.Workspace
	Logger       *logging.Logger
	URI          string
	WriteConcern string
}

// NewDriver creates a restore driver from its collaborators
func NewDriver(opts DriverOptions) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	runner := opts.Runner
	if runner == nil {
		runner = dump.NewExecRunner(logger)
	}
	opener := opts.Opener
	if opener == nil {
		opener = archive.NewOpener(nil)
	}
	return &Driver{
		store:        opts.Store,
		runner:       runner,
		tooling:      opts.Tooling,
		dropper:      opts.Dropper,
		opener:       opener,
		workspace:    opts.Workspace,
		logger:       logger,
		uri:          opts.URI,
		writeConcern: opts.WriteConcern,
		phase:        PhaseIdle,
	}
}

// Phase reports the stage the driver last entered
func (d *Driver) Phase() Phase {
	return d.phase
}

// Execute restores the snapshot at root. Unit load failures do not stop the
// remaining units; the result carries every outcome and the returned error
// summarizes the failures.
func (d *Driver) Execute(ctx context.Context, root string) (*Result, error) {
	result := &Result{Root: root, Phase: PhaseIdle, StartedAt: time.Now()}
	defer func() {
		result.FinishedAt = time.Now()
		result.Phase = d.phase
	}()

	localRoot, err := d.download(ctx, root)
	if err != nil {
		d.setPhase(root, PhaseAborted, map[string]interface{}{"error": err.Error()})
		return result, err
	}

	plan, err := BuildPlan(localRoot)
	if err != nil {
		d.setPhase(root, PhaseAborted, map[string]interface{}{"error": err.Error()})
		return result, err
	}
	if len(plan.Entries) == 0 {
		err := apperrors.NewValidationError(
			fmt.Sprintf("snapshot %s holds no loadable units", root), nil)
		d.setPhase(root, PhaseAborted, map[string]interface{}{"error": err.Error()})
		return result, err
	}
	for _, ignored := range plan.Ignored {
		d.logger.Warnf("Ignoring object %s: not part of any unit", ignored)
	}

	d.setPhase(root, PhaseDropping, map[string]interface{}{"units": len(plan.Entries)})
	dropped, err := d.dropper.DropAllCollections(ctx)
	result.Dropped = dropped
	if err != nil {
		d.setPhase(root, PhaseAborted, map[string]interface{}{"error": err.Error()})
		return result, err
	}

	d.setPhase(root, PhaseLoading, map[string]interface{}{"units": len(plan.Entries)})
	for i, entry := range plan.Entries {
		if ctx.Err() != nil {
			d.setPhase(root, PhaseAborted, map[string]interface{}{"error": ctx.Err().Error()})
			return result, apperrors.NewAppError(apperrors.ErrorTypeInterruption, "Restore canceled", ctx.Err())
		}
		result.Outcomes = append(result.Outcomes, d.load(ctx, root, entry, i+1, len(plan.Entries)))
	}

	d.setPhase(root, PhaseDone, map[string]interface{}{"units": len(result.Outcomes)})

	if _, failed := result.Counts(); failed > 0 {
		return result, apperrors.NewPartialRestoreError(failed, len(result.Outcomes))
	}
	return result, nil
}

// download materializes every object below the snapshot root into the
// restore scratch, mirroring the remote layout. Any failure aborts the whole
// restore before the target is touched.
func (d *Driver) download(ctx context.Context, root string) (string, error) {
	d.setPhase(root, PhaseDownloading, nil)

	objects, err := d.store.List(ctx, root+"/")
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("snapshot %s not found in storage", root), nil)
	}

	dest, err := d.workspace.RestoreDir()
	if err != nil {
		return "", err
	}

	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, root+"/")
		local := filepath.Join(dest, filepath.FromSlash(rel))

		start := time.Now()
		err := d.store.Download(ctx, obj.Key, local)
		d.logger.LogTransfer("download", obj.Key, obj.Size, time.Since(start), err)
		if err != nil {
			return "", err
		}
	}
	return dest, nil
}

// load runs one entry through mongorestore, opening packed artifacts first
func (d *Driver) load(ctx context.Context, root string, entry Entry, index, total int) UnitOutcome {
	start := time.Now()
	outcome := UnitOutcome{Unit: entry.Unit}

	d.logger.LogRestorePhase(root, string(PhaseLoading), map[string]interface{}{
		"unit":  entry.Unit.String(),
		"index": index,
		"total": total,
	})

	path := entry.Path
	gzipped := entry.Gzip
	loadDir := entry.Unit.IsInstance()

	if entry.Archive {
		stage, err := d.workspace.UnitDir(entry.Unit)
		if err != nil {
			outcome.Error = err
			outcome.Duration = time.Since(start)
			return outcome
		}
		defer func() {
			if err := d.workspace.RemoveUnit(entry.Unit); err != nil {
				d.logger.WithField("error", err.Error()).Warnf("Failed to remove restore stage for %s", entry.Unit)
			}
		}()

		if err := d.opener.Unpack(entry.Path, stage); err != nil {
			outcome.Error = err
			outcome.Duration = time.Since(start)
			return outcome
		}
		path = stage
		gzipped = hasGzippedDump(stage)
		loadDir = true
	}

	var bin string
	var args []string
	if loadDir {
		bin, args = d.tooling.LoadDirCommand(d.uri, path, gzipped, d.writeConcern)
	} else {
		bin, args = d.tooling.LoadCommand(dump.LoadOptions{
			URI:          d.uri,
			Unit:         entry.Unit,
			BSONPath:     path,
			Gzip:         gzipped,
			WriteConcern: d.writeConcern,
		})
	}

	if _, err := d.runner.Run(ctx, bin, args); err != nil {
		outcome.Error = apperrors.NewRestoreUnitError(
			fmt.Sprintf("failed to load unit %s", entry.Unit), err)
		outcome.Duration = time.Since(start)
		return outcome
	}

	outcome.Loaded = true
	outcome.Duration = time.Since(start)
	return outcome
}

func (d *Driver) setPhase(root string, phase Phase, fields map[string]interface{}) {
	d.phase = phase
	d.logger.LogRestorePhase(root, string(phase), fields)
}

// hasGzippedDump reports whether any dump file below dir was written with
// compression
func hasGzippedDump(dir string) bool {
	gzipped := false
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".bson.gz") {
			gzipped = true
		}
		return nil
	})
	return gzipped
}
