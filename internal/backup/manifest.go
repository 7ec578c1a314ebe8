package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/snapshot"
	"mongo-blob-backup/internal/storage"
)

// ManifestName is the reserved object name of the run manifest inside a
// snapshot root. Restore treats it as metadata, never as a backup unit.
const ManifestName = "manifest.json"

// ManifestUnit records how one unit resolved, in a form stable enough to
// read back from old snapshots
type ManifestUnit struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Bytes      int64  `json:"bytes"`
	Duration   string `json:"duration"`
	Error      string `json:"error,omitempty"`
}

// Manifest describes one completed backup run. It is uploaded as the last
// object of the snapshot, so its presence marks the snapshot as complete.
type Manifest struct {
	RunID       string         `json:"run_id"`
	Server      string         `json:"server"`
	Snapshot    string         `json:"snapshot"`
	Root        string         `json:"root"`
	Scope       string         `json:"scope"`
	ToolVersion string         `json:"tool_version,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Succeeded   int            `json:"succeeded"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	TotalBytes  int64          `json:"total_bytes"`
	Units       []ManifestUnit `json:"units"`
}

// BuildManifest converts a run result into its persisted form
func BuildManifest(result *RunResult, toolVersion string) *Manifest {
	succeeded, skipped, failed := result.Counts()
	manifest := &Manifest{
		RunID:       uuid.New().String(),
		Server:      result.Server,
		Snapshot:    result.Snapshot.String(),
		Root:        result.Root,
		Scope:       result.Scope,
		ToolVersion: toolVersion,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		Succeeded:   succeeded,
		Skipped:     skipped,
		Failed:      failed,
		TotalBytes:  result.TotalBytes(),
		Units:       make([]ManifestUnit, 0, len(result.Units)),
	}

	for _, unit := range result.Units {
		entry := ManifestUnit{
			Database:   unit.Unit.Database,
			Collection: unit.Unit.Collection,
			Status:     string(unit.Status),
			Attempts:   unit.Attempts,
			Bytes:      unit.Bytes,
			Duration:   unit.Duration.String(),
		}
		if unit.Error != nil {
			entry.Error = unit.Error.Error()
		}
		manifest.Units = append(manifest.Units, entry)
	}
	return manifest
}

// ParseManifest decodes a manifest object read back from storage
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, apperrors.NewValidationError("failed to decode snapshot manifest", err)
	}
	return &manifest, nil
}

// WriteManifest uploads the manifest into the snapshot root
func (d *Driver) WriteManifest(ctx context.Context, id snapshot.ID, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("failed to encode snapshot manifest", err)
	}
	return d.store.UploadBytes(ctx, d.naming.ObjectKey(id, ManifestName), data, "application/json")
}

// ReadManifest fetches and decodes the manifest of an existing snapshot.
// Snapshots written before manifests existed return a not found error from
// the store.
func ReadManifest(ctx context.Context, store storage.BlobStore, root string) (*Manifest, error) {
	dir, err := os.MkdirTemp("", "mongoblob-manifest-*")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create manifest scratch", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, ManifestName)
	if err := store.Download(ctx, root+"/"+ManifestName, local); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read downloaded manifest", err)
	}
	return ParseManifest(data)
}
