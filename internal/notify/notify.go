// Package notify announces per-point completion of a backfill run.
package notify

import (
	"context"
	"time"
)

// Completion describes one finished point.
type Completion struct {
	RunID        string    `json:"run_id"`
	Point        string    `json:"point"`
	Table        string    `json:"table"`
	Status       string    `json:"status"`
	Records      int       `json:"records"`
	WindowsDone  int       `json:"windows_done"`
	WindowsTotal int       `json:"windows_total"`
	Reason       string    `json:"reason,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Notifier receives completion notices. Failures are reported but never stop a run.
type Notifier interface {
	PointCompleted(ctx context.Context, c Completion) error
}

// Nop discards notices.
type Nop struct{}

// PointCompleted implements Notifier.
func (Nop) PointCompleted(context.Context, Completion) error { return nil }
