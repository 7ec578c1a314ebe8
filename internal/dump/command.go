package dump

import (
	"os/exec"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/snapshot"
)

// Tooling locates the external dump and restore binaries and builds their
// command lines. Builders are pure so tests can assert exact argument lists.
type Tooling struct {
	DumpBin    string
	RestoreBin string
}

// DefaultTooling returns tooling resolved from PATH
func DefaultTooling() Tooling {
	return Tooling{
		DumpBin:    "mongodump",
		RestoreBin: "mongorestore",
	}
}

// Validate checks that both configured binaries can be found
func (t Tooling) Validate() error {
	if err := t.ValidateDump(); err != nil {
		return err
	}
	return t.ValidateRestore()
}

// ValidateDump checks that the dump binary can be found. Backup runs need
// only this one.
func (t Tooling) ValidateDump() error {
	if t.DumpBin == "" {
		return apperrors.NewValidationError("dump binary must be configured", nil)
	}
	if _, err := exec.LookPath(t.DumpBin); err != nil {
		return apperrors.NewValidationError("dump binary not found: "+t.DumpBin, err)
	}
	return nil
}

// ValidateRestore checks that the restore binary can be found
func (t Tooling) ValidateRestore() error {
	if t.RestoreBin == "" {
		return apperrors.NewValidationError("restore binary must be configured", nil)
	}
	if _, err := exec.LookPath(t.RestoreBin); err != nil {
		return apperrors.NewValidationError("restore binary not found: "+t.RestoreBin, err)
	}
	return nil
}

// DumpOptions shape a single dump invocation
type DumpOptions struct {
	URI    string
	Unit   snapshot.Unit
	OutDir string
	Gzip   bool
}

// DumpCommand builds the command line that dumps one collection into
// OutDir/<database>/<collection>.bson
func (t Tooling) DumpCommand(opts DumpOptions) (string, []string) {
	args := []string{
		"--uri", opts.URI,
		"--db", opts.Unit.Database,
		"--collection", opts.Unit.Collection,
		"--out", opts.OutDir,
	}
	if opts.Gzip {
		args = append(args, "--gzip")
	}
	return t.DumpBin, args
}

// DumpInstanceCommand builds the command line that dumps every database of
// the instance into OutDir in one invocation
func (t Tooling) DumpInstanceCommand(uri, outDir string, gzip bool) (string, []string) {
	args := []string{
		"--uri", uri,
		"--out", outDir,
	}
	if gzip {
		args = append(args, "--gzip")
	}
	return t.DumpBin, args
}

// LoadOptions shape a single restore invocation
type LoadOptions struct {
	URI          string
	Unit         snapshot.Unit
	BSONPath     string
	Gzip         bool
	WriteConcern string
}

// LoadCommand builds the command line that loads one collection from a
// dumped .bson file
func (t Tooling) LoadCommand(opts LoadOptions) (string, []string) {
	args := []string{
		"--uri", opts.URI,
		"--db", opts.Unit.Database,
		"--collection", opts.Unit.Collection,
	}
	if opts.WriteConcern != "" {
		args = append(args, "--writeConcern", opts.WriteConcern)
	}
	if opts.Gzip {
		args = append(args, "--gzip")
	}
	args = append(args, opts.BSONPath)
	return t.RestoreBin, args
}

// LoadDirCommand builds the command line that loads a whole dump directory
// laid out as <dir>/<database>/<collection>.bson
func (t Tooling) LoadDirCommand(uri, dir string, gzip bool, writeConcern string) (string, []string) {
	args := []string{
		"--uri", uri,
		"--dir", dir,
	}
	if writeConcern != "" {
		args = append(args, "--writeConcern", writeConcern)
	}
	if gzip {
		args = append(args, "--gzip")
	}
	return t.RestoreBin, args
}
