// Package storage persists training run history and reports disk usage of
// model artifacts.
package storage

import (
	"context"
	"time"
)

// TrainingRun is one bundle build attempt. FinishedAt is zero while the run
// is in progress; Error is empty for a successful run.
type TrainingRun struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
	Trigger        string    `json:"trigger"`
	Rows           int       `json:"rows"`
	DatasetVersion int64     `json:"dataset_version"`
	BundleID       string    `json:"bundle_id,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Duration is the run length, or zero while running.
func (r TrainingRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run finished without error.
func (r TrainingRun) Succeeded() bool {
	return !r.FinishedAt.IsZero() && r.Error == ""
}

// RunLog records training runs.
type RunLog interface {
	StartRun(ctx context.Context, run *TrainingRun) error
	FinishRun(ctx context.Context, run *TrainingRun) error
	GetRun(ctx context.Context, id string) (*TrainingRun, error)
	// RecentRuns returns up to n runs, newest first.
	RecentRuns(ctx context.Context, n int) ([]TrainingRun, error)
	CountRuns(ctx context.Context) (total, failed int64, err error)
	Close() error
}
