package restore

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"mongo-blob-backup/internal/archive"
	"mongo-blob-backup/internal/backup"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/snapshot"
)

// Entry is one loadable piece of a downloaded snapshot
type Entry struct {
	Unit    snapshot.Unit
	Path    string // bson file, artifact file, or the dump directory itself
	Archive bool   // Path is a packed artifact that must be opened first
	Gzip    bool   // dump files carry the .gz suffix
}

// Plan lists the load entries recovered from a downloaded snapshot tree.
// Units come purely from the file layout, never from re-enumerating any
// instance, so a snapshot restores exactly what it holds.
type Plan struct {
	Entries []Entry
	Ignored []string
}

// BuildPlan walks a downloaded snapshot root and recovers its load entries.
// Collection dumps sit three levels deep (database/collection/file), whole
// instance dumps two (database/file), packed instance artifacts directly at
// the root. The manifest is metadata and never loads.
func BuildPlan(localRoot string) (*Plan, error) {
	plan := &Plan{}
	instance := false
	instanceGzip := false
	raw := map[string]*Entry{}
	packed := map[string]bool{}
	var entries []Entry

	err := filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localRoot, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		name := parts[len(parts)-1]

		switch len(parts) {
		case 1:
			if name == backup.ManifestName {
				return nil
			}
			if archive.IsArtifact(name) {
				entries = append(entries, Entry{Unit: snapshot.InstanceUnit, Path: path, Archive: true})
				return nil
			}
			plan.Ignored = append(plan.Ignored, rel)
		case 2:
			instance = true
			if strings.HasSuffix(name, ".gz") {
				instanceGzip = true
			}
		case 3:
			unit := snapshot.Unit{Database: parts[0], Collection: parts[1]}
			if archive.IsArtifact(name) {
				entries = append(entries, Entry{Unit: unit, Path: path, Archive: true})
				packed[unit.String()] = true
				return nil
			}
			if isDataFile(name) {
				entry := raw[unit.String()]
				if entry == nil {
					entry = &Entry{Unit: unit}
					raw[unit.String()] = entry
				}
				entry.Path = path
				entry.Gzip = strings.HasSuffix(name, ".gz")
			}
			// metadata files ride along with their bson file
		default:
			plan.Ignored = append(plan.Ignored, rel)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to walk downloaded snapshot", err)
	}

	for key, entry := range raw {
		if packed[key] {
			continue
		}
		if entry.Path == "" {
			plan.Ignored = append(plan.Ignored, key)
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Unit, entries[j].Unit
		if a.Database != b.Database {
			return a.Database < b.Database
		}
		return a.Collection < b.Collection
	})

	if instance {
		plan.Entries = append(plan.Entries, Entry{Unit: snapshot.InstanceUnit, Path: localRoot, Gzip: instanceGzip})
	}
	plan.Entries = append(plan.Entries, entries...)
	sort.Strings(plan.Ignored)
	return plan, nil
}

func isDataFile(name string) bool {
	return strings.HasSuffix(name, ".bson") || strings.HasSuffix(name, ".bson.gz")
}
