package repository

import (
	"context"

	"mediavault/internal/domain/model"
)

type CaptionJobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.CaptionJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.CaptionJob, error)
	// FindActiveByMediaItem returns the queued-or-processing job for an
	// item, or domain.ErrNotFound. Backs idempotent enqueue.
	FindActiveByMediaItem(ctx context.Context, tx Tx, mediaItemID string) (*model.CaptionJob, error)
	// ClaimNextQueued atomically selects the highest-priority, then oldest
	// queued job, marks it processing and increments its attempt counter.
	// Returns domain.ErrNotFound when the queue is empty.
	ClaimNextQueued(ctx context.Context) (*model.CaptionJob, error)
	// ListQueued returns queued jobs ordered by priority descending, then
	// creation time ascending (the dequeue order).
	ListQueued(ctx context.Context, tx Tx) ([]*model.CaptionJob, error)
	CountProcessing(ctx context.Context, tx Tx) (int, error)
}
