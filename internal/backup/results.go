package backup

import (
	"time"

	"mongo-blob-backup/internal/snapshot"
)

// UnitStatus is the terminal state of one backup unit
type UnitStatus string

const (
	// UnitSucceeded means the unit's artifacts are in remote storage
	UnitSucceeded UnitStatus = "succeeded"
	// UnitSkippedNotFound means the collection vanished or held no documents
	UnitSkippedNotFound UnitStatus = "skipped_not_found"
	// UnitFailed means the unit was abandoned after exhausting its retries
	UnitFailed UnitStatus = "failed"
)

// UnitResult records how one unit resolved
type UnitResult struct {
	Unit     snapshot.Unit `json:"unit"`
	Status   UnitStatus    `json:"status"`
	Attempts int           `json:"attempts"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"-"`
}

// RunResult records a whole backup run
type RunResult struct {
	Server     string        `json:"server"`
	Snapshot   snapshot.ID   `json:"-"`
	Root       string        `json:"root"`
	Scope      string        `json:"scope"`
	Units      []UnitResult  `json:"units"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Retention  *SweepResult  `json:"retention,omitempty"`
}

// Counts tallies unit outcomes
func (r *RunResult) Counts() (succeeded, skipped, failed int) {
	for _, unit := range r.Units {
		switch unit.Status {
		case UnitSucceeded:
			succeeded++
		case UnitSkippedNotFound:
			skipped++
		case UnitFailed:
			failed++
		}
	}
	return
}

// Failed reports whether any unit was abandoned
func (r *RunResult) Failed() bool {
	_, _, failed := r.Counts()
	return failed > 0
}

// TotalBytes sums the uploaded bytes across units
func (r *RunResult) TotalBytes() int64 {
	var total int64
	for _, unit := range r.Units {
		total += unit.Bytes
	}
	return total
}
