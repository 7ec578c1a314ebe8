package execution

import (
	"context"
	"encoding/json"
	"testing"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: "srv1",
		Mongo:  config.MongoConfig{URI: "mongodb://localhost:27017"},
		Storage: config.StorageConfig{
			Provider:  config.StorageProviderLocal,
			Container: "mongodbbackup",
			Local:     &config.LocalConfig{BasePath: t.TempDir()},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	executor, err := NewExecutor(testConfig(t), "test")
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return executor
}

func TestNewExecutor(t *testing.T) {
	executor := newTestExecutor(t)
	if executor.GetLogger() == nil {
		t.Error("NewExecutor() produced no logger")
	}
	if executor.GetShutdownHandler() == nil {
		t.Error("NewExecutor() produced no shutdown handler")
	}
	if err := executor.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestValidateConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing server", func(c *config.Config) { c.Server = "" }},
		{"server with slash", func(c *config.Config) { c.Server = "a/b" }},
		{"bad mongo uri", func(c *config.Config) { c.Mongo.URI = "http://nope" }},
		{"missing container", func(c *config.Config) { c.Storage.Container = "" }},
		{"bad scope", func(c *config.Config) { c.Backup.Scope = "table" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			executor, err := NewExecutor(cfg, "test")
			if err != nil {
				t.Fatalf("NewExecutor() error = %v", err)
			}
			if err := executor.ValidateConfig(); err == nil {
				t.Error("ValidateConfig() accepted invalid configuration")
			}
		})
	}
}

func seedSnapshotObjects(t *testing.T, store storage.BlobStore, root string, files map[string]int) {
	t.Helper()
	for rel, size := range files {
		payload := make([]byte, size)
		if err := store.UploadBytes(context.Background(), root+"/"+rel, payload, ""); err != nil {
			t.Fatalf("UploadBytes(%s) error = %v", rel, err)
		}
	}
}

func TestListSnapshots(t *testing.T) {
	executor := newTestExecutor(t)
	store, err := storage.NewStore(context.Background(), &executor.cfg.Storage)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := store.UploadBytes(context.Background(), "srv1/.backup-root", nil, ""); err != nil {
		t.Fatalf("UploadBytes(marker) error = %v", err)
	}
	seedSnapshotObjects(t, store, "srv1/srv1_2024-01-02-03-04-05", map[string]int{
		"dbA/c1/c1.bson":          100,
		"dbA/c1/c1.metadata.json": 20,
		"manifest.json":           30,
	})
	seedSnapshotObjects(t, store, "srv1/srv1_2024-03-04-05-06-07", map[string]int{
		"dbA/c1/c1.bson": 50,
	})

	infos, err := executor.ListSnapshots(context.Background())
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("ListSnapshots() = %d snapshots, want 2", len(infos))
	}

	// newest first
	if infos[0].Root != "srv1/srv1_2024-03-04-05-06-07" {
		t.Errorf("infos[0].Root = %s, want the newer snapshot", infos[0].Root)
	}
	if infos[0].HasManifest {
		t.Error("infos[0].HasManifest = true, want false")
	}

	older := infos[1]
	if older.Objects != 3 {
		t.Errorf("older.Objects = %d, want 3", older.Objects)
	}
	if older.Bytes != 150 {
		t.Errorf("older.Bytes = %d, want 150", older.Bytes)
	}
	if !older.HasManifest {
		t.Error("older.HasManifest = false, want true")
	}
}

func TestResolveSnapshot(t *testing.T) {
	executor := newTestExecutor(t)
	store, err := storage.NewStore(context.Background(), &executor.cfg.Storage)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	seedSnapshotObjects(t, store, "srv1/srv1_2024-01-02-03-04-05", map[string]int{"dbA/c1/c1.bson": 10})
	seedSnapshotObjects(t, store, "srv1/srv1_2024-03-04-05-06-07", map[string]int{"dbA/c1/c1.bson": 10})

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"latest keyword", "latest", "srv1/srv1_2024-03-04-05-06-07", false},
		{"empty means latest", "", "srv1/srv1_2024-03-04-05-06-07", false},
		{"bare timestamp", "2024-01-02-03-04-05", "srv1/srv1_2024-01-02-03-04-05", false},
		{"full root", "srv1/srv1_2024-01-02-03-04-05", "srv1/srv1_2024-01-02-03-04-05", false},
		{"malformed root", "srv1/nonsense", "", true},
		{"malformed timestamp", "yesterday", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executor.ResolveSnapshot(context.Background(), store, tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveSnapshot(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveSnapshot(%q) = %s, want %s", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveSnapshotEmptyStore(t *testing.T) {
	executor := newTestExecutor(t)
	store, err := storage.NewStore(context.Background(), &executor.cfg.Storage)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_, err = executor.ResolveSnapshot(context.Background(), store, "latest")
	if err == nil {
		t.Fatal("ResolveSnapshot() succeeded with no snapshots in storage")
	}
	if got := apperrors.GetErrorType(err); got != apperrors.ErrorTypeValidation {
		t.Errorf("ResolveSnapshot() error type = %s, want %s", got, apperrors.ErrorTypeValidation)
	}
}

func TestDescribeSnapshot(t *testing.T) {
	executor := newTestExecutor(t)
	store, err := storage.NewStore(context.Background(), &executor.cfg.Storage)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	root := "srv1/srv1_2024-01-02-03-04-05"
	manifest, err := json.Marshal(map[string]interface{}{
		"run_id":   "0f0c0b8a-5ad1-4a41-9f1b-1d4a15d9b001",
		"server":   "srv1",
		"snapshot": "2024-01-02-03-04-05",
		"root":     root,
		"units": []map[string]interface{}{
			{"database": "dbA", "collection": "c1", "status": "succeeded"},
			{"database": "dbA", "collection": "c2", "status": "succeeded"},
		},
	})
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	seedSnapshotObjects(t, store, root, map[string]int{"dbA/c1/c1.bson": 10})
	if err := store.UploadBytes(context.Background(), root+"/manifest.json", manifest, "application/json"); err != nil {
		t.Fatalf("UploadBytes(manifest) error = %v", err)
	}

	info, parsed, err := executor.DescribeSnapshot(context.Background(), "2024-01-02-03-04-05")
	if err != nil {
		t.Fatalf("DescribeSnapshot() error = %v", err)
	}
	if info.Root != root {
		t.Errorf("info.Root = %s, want %s", info.Root, root)
	}
	if !info.HasManifest {
		t.Error("info.HasManifest = false, want true")
	}
	if parsed == nil || len(parsed.Units) != 2 {
		t.Fatalf("manifest = %+v, want 2 units", parsed)
	}
}

func TestDescribeSnapshotWithoutManifest(t *testing.T) {
	executor := newTestExecutor(t)
	store, err := storage.NewStore(context.Background(), &executor.cfg.Storage)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	seedSnapshotObjects(t, store, "srv1/srv1_2024-01-02-03-04-05", map[string]int{"dbA/c1/c1.bson": 10})

	info, manifest, err := executor.DescribeSnapshot(context.Background(), "latest")
	if err != nil {
		t.Fatalf("DescribeSnapshot() error = %v", err)
	}
	if manifest != nil {
		t.Errorf("manifest = %+v, want nil", manifest)
	}
	if info.Objects != 1 {
		t.Errorf("info.Objects = %d, want 1", info.Objects)
	}
}

func TestEnumerateUnitsInstanceScope(t *testing.T) {
	executor := newTestExecutor(t)
	executor.cfg.Backup.Scope = config.ScopeInstance

	units, err := executor.enumerateUnits(context.Background(), nil)
	if err != nil {
		t.Fatalf("enumerateUnits() error = %v", err)
	}
	if len(units) != 1 || !units[0].IsInstance() {
		t.Errorf("enumerateUnits() = %v, want the instance sentinel only", units)
	}
}

func TestHandleErrorClassifies(t *testing.T) {
	executor := newTestExecutor(t)

	err := executor.HandleError(apperrors.NewDumpError("dump failed", nil))
	if got := apperrors.GetErrorType(err); got != apperrors.ErrorTypeDump {
		t.Errorf("HandleError() type = %s, want %s", got, apperrors.ErrorTypeDump)
	}
	if executor.HandleError(nil) != nil {
		t.Error("HandleError(nil) != nil")
	}
}
