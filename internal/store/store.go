// Package store defines persistence contracts shared by the scraper
// and backfill subsystems.
package store

import (
	"context"
	"time"
)

// Status is the lifecycle state of a backfill for one source.
type Status string

// Backfill status values persisted in the progress row.
const (
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Progress is the sole durable backfill checkpoint: one row per source,
// overwritten on every update.
type Progress struct {
	Source            string
	LastCompletedDate time.Time
	Status            Status
}

// ProgressStore reads and writes the backfill checkpoint.
type ProgressStore interface {
	BackfillProgress(ctx context.Context, source string) (*Progress, error)
	SetBackfillProgress(ctx context.Context, source string, last time.Time, status Status) error
}
