package restore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mongo-blob-backup/internal/archive"
	"mongo-blob-backup/internal/config"
	"mongo-blob-backup/internal/dump"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/scratch"
	"mongo-blob-backup/internal/storage"
)

// recordingRunner records every invocation and fails the ones whose args
// contain failOn
type recordingRunner struct {
	invocations [][]string
	failOn      string
	check       func(args []string) error
}

func (r *recordingRunner) Run(_ context.Context, bin string, args []string) (dump.Result, error) {
	r.invocations = append(r.invocations, args)
	if r.check != nil {
		if err := r.check(args); err != nil {
			return dump.Result{}, err
		}
	}
	if r.failOn != "" {
		for _, arg := range args {
			if arg == r.failOn {
				return dump.Result{}, apperrors.NewDumpError("simulated load failure", nil)
			}
		}
	}
	return dump.Result{Bin: bin, Args: args}, nil
}

func argAfter(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

type dropSpy struct {
	calls   int
	dropped int
	err     error
}

func (d *dropSpy) DropAllCollections(_ context.Context) (int, error) {
	d.calls++
	if d.err != nil {
		return 0, d.err
	}
	return d.dropped, nil
}

// brokenDownloadStore fails every download
type brokenDownloadStore struct {
	storage.BlobStore
}

func (s *brokenDownloadStore) Download(_ context.Context, key, _ string) error {
	return apperrors.NewTransferError("simulated download failure for "+key, nil)
}

type restoreFixture struct {
	driver  *Driver
	store   storage.BlobStore
	runner  *recordingRunner
	dropper *dropSpy
	root    string
}

func newRestoreFixture(t *testing.T) *restoreFixture {
	t.Helper()

	store, err := storage.NewLocalStore(&config.LocalConfig{BasePath: t.TempDir()}, "mongodbbackup")
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	logger := logging.NewDefaultLogger()
	workspace, err := scratch.New(&config.ScratchConfig{BaseDir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("scratch.New() error = %v", err)
	}
	t.Cleanup(func() { workspace.Release() })

	runner := &recordingRunner{}
	dropper := &dropSpy{dropped: 4}
	driver := NewDriver(DriverOptions{
		Store:     store,
		Runner:    runner,
		Tooling:   dump.DefaultTooling(),
		Dropper:   dropper,
		Workspace: workspace,
		Logger:    logger,
		URI:       "mongodb://localhost:27017",
	})

	return &restoreFixture{
		driver:  driver,
		store:   store,
		runner:  runner,
		dropper: dropper,
		root:    "srv1/srv1_2024-01-02-03-04-05",
	}
}

func (fx *restoreFixture) seed(t *testing.T, rel, content string) {
	t.Helper()
	if err := fx.store.UploadBytes(context.Background(), fx.root+"/"+rel, []byte(content), ""); err != nil {
		t.Fatalf("UploadBytes(%s) error = %v", rel, err)
	}
}

func (fx *restoreFixture) seedThreeUnits(t *testing.T) {
	t.Helper()
	fx.seed(t, "manifest.json", "{}")
	fx.seed(t, "dbA/c1/c1.bson", "bson one")
	fx.seed(t, "dbA/c1/c1.metadata.json", "{}")
	fx.seed(t, "dbA/c2/c2.bson", "bson two")
	fx.seed(t, "dbA/c2/c2.metadata.json", "{}")
	fx.seed(t, "dbB/c3/c3.bson", "bson three")
	fx.seed(t, "dbB/c3/c3.metadata.json", "{}")
}

func TestRestoreLoadsEveryUnit(t *testing.T) {
	fx := newRestoreFixture(t)
	fx.seedThreeUnits(t)

	result, err := fx.driver.Execute(context.Background(), fx.root)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Phase != PhaseDone {
		t.Errorf("Execute() phase = %s, want %s", result.Phase, PhaseDone)
	}
	if fx.dropper.calls != 1 {
		t.Errorf("dropper calls = %d, want 1", fx.dropper.calls)
	}
	if result.Dropped != 4 {
		t.Errorf("Execute() dropped = %d, want 4", result.Dropped)
	}

	loaded, failed := result.Counts()
	if loaded != 3 || failed != 0 {
		t.Errorf("Execute() loaded/failed = %d/%d, want 3/0", loaded, failed)
	}

	// one mongorestore invocation per unit, in database/collection order
	if len(fx.runner.invocations) != 3 {
		t.Fatalf("runner invocations = %d, want 3", len(fx.runner.invocations))
	}
	wantOrder := []string{"c1", "c2", "c3"}
	for i, args := range fx.runner.invocations {
		if got := argAfter(args, "--collection"); got != wantOrder[i] {
			t.Errorf("invocation %d collection = %s, want %s", i, got, wantOrder[i])
		}
	}
}

func TestRestoreDownloadFailureLeavesTargetUntouched(t *testing.T) {
	fx := newRestoreFixture(t)
	fx.seedThreeUnits(t)
	fx.driver.store = &brokenDownloadStore{BlobStore: fx.store}

	result, err := fx.driver.Execute(context.Background(), fx.root)
	if err == nil {
		t.Fatal("Execute() succeeded despite download failures")
	}
	if result.Phase != PhaseAborted {
		t.Errorf("Execute() phase = %s, want %s", result.Phase, PhaseAborted)
	}

	// the drop never runs when the download did not finish
	if fx.dropper.calls != 0 {
		t.Errorf("dropper calls = %d, want 0", fx.dropper.calls)
	}
	if len(fx.runner.invocations) != 0 {
		t.Errorf("runner invocations = %d, want 0", len(fx.runner.invocations))
	}
}

func TestRestorePartialFailure(t *testing.T) {
	fx := newRestoreFixture(t)
	fx.seedThreeUnits(t)
	fx.runner.failOn = "c2"

	result, err := fx.driver.Execute(context.Background(), fx.root)
	if err == nil {
		t.Fatal("Execute() returned nil error despite a failed unit")
	}
	if got := apperrors.GetErrorType(err); got != apperrors.ErrorTypePartialRestore {
		t.Errorf("Execute() error type = %s, want %s", got, apperrors.ErrorTypePartialRestore)
	}
	if result.Phase != PhaseDone {
		t.Errorf("Execute() phase = %s, want %s; unit failures do not abort the restore", result.Phase, PhaseDone)
	}

	loaded, failed := result.Counts()
	if loaded != 2 || failed != 1 {
		t.Errorf("Execute() loaded/failed = %d/%d, want 2/1", loaded, failed)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("Execute() outcomes = %d, want 3", len(result.Outcomes))
	}
	if result.Outcomes[1].Loaded || result.Outcomes[1].Error == nil {
		t.Errorf("outcome 1 = %+v, want the failed unit with its error", result.Outcomes[1])
	}
	if !result.Outcomes[0].Loaded || !result.Outcomes[2].Loaded {
		t.Error("units around the failed one did not load")
	}
}

func TestRestoreDropFailureAborts(t *testing.T) {
	fx := newRestoreFixture(t)
	fx.seedThreeUnits(t)
	fx.dropper.err = apperrors.NewStorageError("simulated drop failure", nil)

	result, err := fx.driver.Execute(context.Background(), fx.root)
	if err == nil {
		t.Fatal("Execute() succeeded despite a failed drop")
	}
	if result.Phase != PhaseAborted {
		t.Errorf("Execute() phase = %s, want %s", result.Phase, PhaseAborted)
	}
	if len(fx.runner.invocations) != 0 {
		t.Errorf("runner invocations = %d, want 0 after a failed drop", len(fx.runner.invocations))
	}
}

func TestRestoreMissingSnapshot(t *testing.T) {
	fx := newRestoreFixture(t)

	result, err := fx.driver.Execute(context.Background(), "srv1/srv1_2030-01-01-00-00-00")
	if err == nil {
		t.Fatal("Execute() succeeded against a missing snapshot")
	}
	if got := apperrors.GetErrorType(err); got != apperrors.ErrorTypeValidation {
		t.Errorf("Execute() error type = %s, want %s", got, apperrors.ErrorTypeValidation)
	}
	if result.Phase != PhaseAborted {
		t.Errorf("Execute() phase = %s, want %s", result.Phase, PhaseAborted)
	}
	if fx.dropper.calls != 0 {
		t.Errorf("dropper calls = %d, want 0", fx.dropper.calls)
	}
}

func TestRestoreInstanceSnapshotUsesDirectoryLoad(t *testing.T) {
	fx := newRestoreFixture(t)
	fx.seed(t, "manifest.json", "{}")
	fx.seed(t, "dbA/c1.bson", "bson")
	fx.seed(t, "dbA/c1.metadata.json", "{}")
	fx.seed(t, "dbB/c9.bson", "bson")

	result, err := fx.driver.Execute(context.Background(), fx.root)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if loaded, _ := result.Counts(); loaded != 1 {
		t.Errorf("Execute() loaded = %d, want 1 directory load", loaded)
	}
	if len(fx.runner.invocations) != 1 {
		t.Fatalf("runner invocations = %d, want 1", len(fx.runner.invocations))
	}
	if dir := argAfter(fx.runner.invocations[0], "--dir"); dir == "" {
		t.Errorf("invocation args = %v, want a --dir load", fx.runner.invocations[0])
	}
}

func TestRestoreOpensPackedArtifacts(t *testing.T) {
	fx := newRestoreFixture(t)

	// build a real artifact the way a packed backup writes it
	packer, err := archive.NewPacker(&config.ArchiveConfig{Mode: archive.ArchiveModeTar, Compression: "gzip"})
	if err != nil {
		t.Fatalf("NewPacker() error = %v", err)
	}
	srcDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "dbB"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "dbB", "c3.bson"), []byte("bson payload"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	artifact := filepath.Join(t.TempDir(), "c3.tar.gz")
	if _, err := packer.Pack(srcDir, artifact); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if err := fx.store.Upload(context.Background(), fx.root+"/dbB/c3/c3.tar.gz", artifact); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	// the staged dump tree must exist when mongorestore runs
	fx.runner.check = func(args []string) error {
		dir := argAfter(args, "--dir")
		if dir == "" {
			t.Errorf("artifact load args = %v, want a --dir load", args)
			return nil
		}
		if _, err := os.Stat(filepath.Join(dir, "dbB", "c3.bson")); err != nil {
			t.Errorf("staged dump missing: %v", err)
		}
		return nil
	}

	result, err := fx.driver.Execute(context.Background(), fx.root)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if loaded, failed := result.Counts(); loaded != 1 || failed != 0 {
		t.Errorf("Execute() loaded/failed = %d/%d, want 1/0", loaded, failed)
	}
}
