package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mongo-blob-backup/internal/config"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/snapshot"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()

	ws, err := New(&config.ScratchConfig{BaseDir: t.TempDir()}, logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { ws.Release() })
	return ws
}

func TestNewWorkspace(t *testing.T) {
	base := t.TempDir()
	ws, err := New(&config.ScratchConfig{BaseDir: base}, logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ws.Release()

	if !strings.HasPrefix(ws.Root(), base) {
		t.Errorf("Root %s should live under base %s", ws.Root(), base)
	}
	if info, err := os.Stat(ws.Root()); err != nil || !info.IsDir() {
		t.Errorf("Root should be an existing directory, stat error = %v", err)
	}
}

func TestNewWorkspaceDefaultBase(t *testing.T) {
	ws, err := New(nil, logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ws.Release()

	if !strings.HasPrefix(ws.Root(), os.TempDir()) {
		t.Errorf("Root %s should live under the system temp dir", ws.Root())
	}
}

func TestWorkspacesAreDistinct(t *testing.T) {
	base := t.TempDir()
	cfg := &config.ScratchConfig{BaseDir: base}
	logger := logging.NewDefaultLogger()

	ws1, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ws1.Release()

	ws2, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ws2.Release()

	if ws1.Root() == ws2.Root() {
		t.Error("Two runs must not share a workspace")
	}
}

func TestUnitDirAndRemoveUnit(t *testing.T) {
	ws := newTestWorkspace(t)
	unit := snapshot.Unit{Database: "dbA", Collection: "c1"}

	dir, err := ws.UnitDir(unit)
	if err != nil {
		t.Fatalf("UnitDir() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "c1.bson"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write into unit dir: %v", err)
	}

	other, err := ws.UnitDir(snapshot.Unit{Database: "dbA", Collection: "c2"})
	if err != nil {
		t.Fatalf("UnitDir() error = %v", err)
	}
	if dir == other {
		t.Error("Units must not share scratch directories")
	}

	if err := ws.RemoveUnit(unit); err != nil {
		t.Fatalf("RemoveUnit() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Unit scratch should be gone after RemoveUnit")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("RemoveUnit must not touch sibling units")
	}

	// Removing an already-removed unit is fine
	if err := ws.RemoveUnit(unit); err != nil {
		t.Errorf("RemoveUnit() on removed unit error = %v", err)
	}
}

func TestRestoreDir(t *testing.T) {
	ws := newTestWorkspace(t)

	dir, err := ws.RestoreDir()
	if err != nil {
		t.Fatalf("RestoreDir() error = %v", err)
	}
	if !strings.HasPrefix(dir, ws.Root()) {
		t.Errorf("Restore dir %s should live in the workspace", dir)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ws := newTestWorkspace(t)
	root := ws.Root()

	if _, err := ws.UnitDir(snapshot.Unit{Database: "dbA", Collection: "c1"}); err != nil {
		t.Fatalf("UnitDir() error = %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("Workspace should be gone after Release")
	}
	if err := ws.Release(); err != nil {
		t.Errorf("Second Release() error = %v", err)
	}
}
