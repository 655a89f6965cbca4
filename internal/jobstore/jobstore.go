// Package jobstore is the durable Job record store, the controller's
// ground truth for status transitions.
package jobstore

import (
	"context"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// JobStore persists Job records and their status transitions.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, reason model.FailureReason) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
}
