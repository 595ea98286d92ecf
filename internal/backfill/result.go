package backfill

import (
	"errors"
	"time"

	"github.com/breatheroute/aqbackfill/internal/dataset"
)

// ErrInterrupted is returned by Run when the context is cancelled mid-run.
var ErrInterrupted = errors.New("backfill interrupted")

// Status is the outcome of one point.
type Status string

const (
	// StatusSuccess means every window was fetched.
	StatusSuccess Status = "success"

	// StatusPartial means the point stopped early; its records so far are kept.
	StatusPartial Status = "partial"

	// StatusInterrupted means the run was cancelled while on this point.
	StatusInterrupted Status = "interrupted"
)

// PointResult is the outcome of processing one point.
type PointResult struct {
	Point  string
	Table  string
	Status Status

	// Reason explains a partial result.
	Reason string

	// Err is the failure that ended a partial point.
	Err error

	// WriteErr is set when the final table could not be persisted.
	WriteErr error

	Records      []dataset.Record
	WindowsDone  int
	WindowsTotal int

	// Checkpoints counts the periodic snapshots written for the point.
	Checkpoints int

	// Resumed is set when earlier output was reused.
	Resumed bool

	Duration time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Points []PointResult

	// CombinedRecords is the size of the combined table, 0 if it was not written.
	CombinedRecords int
}

// Count returns how many points ended with status s.
func (r *Result) Count(s Status) int {
	n := 0
	for _, p := range r.Points {
		if p.Status == s {
			n++
		}
	}
	return n
}

func (r *Result) finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
