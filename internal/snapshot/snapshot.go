package snapshot

import (
	"fmt"
	"path"
	"strings"
	"time"

	apperrors "mongo-blob-backup/internal/errors"
)

// TimestampLayout is the wire format of a snapshot identifier, second
// precision, always UTC
const TimestampLayout = "2006-01-02-15-04-05"

// rootMarkerName is the zero-length object kept directly under the server
// prefix so the prefix survives retention sweeps of empty servers
const rootMarkerName = ".backup-root"

// ID identifies one backup run by its start time
type ID struct {
	ts time.Time
}

// NewID derives a snapshot ID from the run start time
func NewID(t time.Time) ID {
	return ID{ts: t.UTC().Truncate(time.Second)}
}

// ParseID parses a snapshot identifier in TimestampLayout form
func ParseID(s string) (ID, error) {
	ts, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return ID{}, apperrors.NewValidationError(
			fmt.Sprintf("invalid snapshot id %q, expected YYYY-MM-DD-HH-MM-SS", s), err)
	}
	return ID{ts: ts.UTC()}, nil
}

// String returns the identifier in TimestampLayout form
func (id ID) String() string {
	return id.ts.UTC().Format(TimestampLayout)
}

// Time returns the run start time in UTC
func (id ID) Time() time.Time {
	return id.ts
}

// IsZero reports whether the ID is unset
func (id ID) IsZero() bool {
	return id.ts.IsZero()
}

// Naming produces every remote name used by a backup run. All methods are
// pure; keys are relative to the container, slash separated.
type Naming struct {
	Container string
	Server    string
}

// Validate checks that the naming inputs can form unambiguous keys
func (n Naming) Validate() error {
	if n.Container == "" {
		return apperrors.NewValidationError("container name is required", nil)
	}
	if n.Server == "" {
		return apperrors.NewValidationError("server label is required", nil)
	}
	if strings.ContainsAny(n.Server, "/\\") {
		return apperrors.NewValidationError(
			fmt.Sprintf("server label %q must not contain path separators", n.Server), nil)
	}
	return nil
}

// ServerPrefix returns the listing prefix covering every snapshot of the server
func (n Naming) ServerPrefix() string {
	return n.Server + "/"
}

// RootMarkerKey returns the key of the server root marker object
func (n Naming) RootMarkerKey() string {
	return n.Server + "/" + rootMarkerName
}

// IsRootMarker reports whether key is the server root marker
func (n Naming) IsRootMarker(key string) bool {
	return key == n.RootMarkerKey()
}

// Root returns the snapshot root prefix: <server>/<server>_<timestamp>
func (n Naming) Root(id ID) string {
	return fmt.Sprintf("%s/%s_%s", n.Server, n.Server, id)
}

// UnitPrefix returns the remote prefix of one backup unit below the snapshot
// root: <root>/<database>/<collection>
func (n Naming) UnitPrefix(id ID, database, collection string) string {
	return fmt.Sprintf("%s/%s/%s", n.Root(id), database, collection)
}

// ObjectKey joins the snapshot root with a slash-separated relative path
func (n Naming) ObjectKey(id ID, relPath string) string {
	return n.Root(id) + "/" + strings.TrimPrefix(path.Clean(relPath), "/")
}

// DisplayRoot returns the operator-facing form with the container prepended
func (n Naming) DisplayRoot(id ID) string {
	return n.Container + "/" + n.Root(id)
}

// ParseRoot splits a snapshot root prefix back into its server and ID. The
// timestamp suffix has fixed width, so server labels containing underscores
// parse correctly.
func ParseRoot(root string) (server string, id ID, err error) {
	parts := strings.SplitN(root, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ID{}, apperrors.NewValidationError(
			fmt.Sprintf("invalid snapshot root %q", root), nil)
	}

	server = parts[0]
	dir := parts[1]
	wantPrefix := server + "_"
	if !strings.HasPrefix(dir, wantPrefix) {
		return "", ID{}, apperrors.NewValidationError(
			fmt.Sprintf("snapshot root %q does not match server %q", root, server), nil)
	}

	id, err = ParseID(strings.TrimPrefix(dir, wantPrefix))
	if err != nil {
		return "", ID{}, err
	}
	return server, id, nil
}

// RootFromKey extracts the snapshot root prefix from any object key below it.
// The second return is false for keys outside a snapshot, such as the server
// root marker.
func RootFromKey(key string) (string, bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 2 {
		return "", false
	}

	root := parts[0] + "/" + parts[1]
	if _, _, err := ParseRoot(root); err != nil {
		return "", false
	}
	return root, true
}

// Unit names one (database, collection) pair below a snapshot root
type Unit struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// InstanceUnit is the sentinel unit covering every database of the instance
// in a single dump
var InstanceUnit = Unit{Database: "*", Collection: "*"}

// String returns the dotted namespace form
func (u Unit) String() string {
	return u.Database + "." + u.Collection
}

// IsInstance reports whether the unit is the whole-instance sentinel
func (u Unit) IsInstance() bool {
	return u == InstanceUnit
}

// UnitFromKey extracts the unit owning an object key in per-collection layout:
// <root>/<database>/<collection>/<file>
func UnitFromKey(root, key string) (Unit, bool) {
	rel := strings.TrimPrefix(key, root+"/")
	if rel == key {
		return Unit{}, false
	}

	parts := strings.Split(rel, "/")
	if len(parts) < 3 {
		return Unit{}, false
	}
	return Unit{Database: parts[0], Collection: parts[1]}, true
}
