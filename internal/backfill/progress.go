package backfill

import (
	"sync"
	"time"
)

// ProgressSnapshot is a point-in-time view of a run.
type ProgressSnapshot struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	PointsTotal  int       `json:"points_total"`
	PointsDone   int       `json:"points_done"`
	CurrentPoint string    `json:"current_point,omitempty"`
	WindowsDone  int       `json:"windows_done"`
	WindowsTotal int       `json:"windows_total"`
	PointRecords int       `json:"point_records"`
	TotalRecords int       `json:"total_records"`
	Checkpoints  int       `json:"checkpoints"`
	Finished     bool      `json:"finished"`
	LastError    string    `json:"last_error,omitempty"`
}

// Progress tracks a running job. It is safe for concurrent use.
type Progress struct {
	mu   sync.RWMutex
	snap ProgressSnapshot
}

func newProgress(runID string, points int) *Progress {
	return &Progress{snap: ProgressSnapshot{
		RunID:       runID,
		StartedAt:   time.Now().UTC(),
		PointsTotal: points,
	}}
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) startPoint(name string, windows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.CurrentPoint = name
	p.snap.WindowsDone = 0
	p.snap.WindowsTotal = windows
	p.snap.PointRecords = 0
}

func (p *Progress) resumed(windowsDone, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.WindowsDone = windowsDone
	p.snap.PointRecords = records
}

func (p *Progress) windowDone(index, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.WindowsDone = index
	p.snap.PointRecords += records
}

func (p *Progress) checkpointed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Checkpoints++
}

func (p *Progress) pointFinished(pr PointResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.PointsDone++
	p.snap.TotalRecords += len(pr.Records)
	if pr.Err != nil {
		p.snap.LastError = pr.Err.Error()
	}
}

func (p *Progress) finished() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.CurrentPoint = ""
	p.snap.Finished = true
}
