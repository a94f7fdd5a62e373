package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ CaptionUseCase = (*captionUC)(nil)

type CaptionUseCase interface {
	// Enqueue creates a caption job for a media item. Idempotent: when the
	// item already has a queued or processing job, the existing job is
	// returned unchanged.
	Enqueue(ctx context.Context, mediaItemID, ownerID string, priority int) (*model.CaptionJob, error)
	// Request is the explicit user-initiated path. Unlike Enqueue it may
	// pull an item whose caption status is already terminal back to queued.
	Request(ctx context.Context, mediaItemID string) (*model.CaptionJob, error)
	// QueueStatus reports 1-based position and estimated wait for the
	// item's active job.
	QueueStatus(ctx context.Context, mediaItemID string) (*model.QueueStatus, error)
	// Cancel moves a queued job to cancelled. Processing jobs run to
	// completion; completed ones are left alone.
	Cancel(ctx context.Context, jobID string) error
	// CancelForMediaItem cascade-cancels the item's queued job, if any.
	CancelForMediaItem(ctx context.Context, mediaItemID string) error
}

type CaptionConfig struct {
	JobsPerMinute     int
	MaxAttempts       int
	AvgProcessingMins int
}

type captionUC struct {
	jobs  repository.CaptionJobRepository
	media repository.MediaItemRepository
	tm    repository.TransactionManager
	cfg   CaptionConfig
	log   *zerolog.Logger
}

func NewCaptionUseCase(jobs repository.CaptionJobRepository, media repository.MediaItemRepository, tm repository.TransactionManager, cfg CaptionConfig, logger *zerolog.Logger) *captionUC {
	compLog := logger.With().Str("component", "CaptionUC").Logger()
	return &captionUC{jobs: jobs, media: media, tm: tm, cfg: cfg, log: &compLog}
}

func (c *captionUC) Enqueue(ctx context.Context, mediaItemID, ownerID string, priority int) (*model.CaptionJob, error) {
	var job *model.CaptionJob
	err := c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// the item row lock serializes concurrent enqueues, so the dedup
		// check and the insert cannot interleave
		if _, err := c.media.FindByIDForUpdate(ctx, tx, mediaItemID); err != nil {
			return err
		}
		existing, err := c.jobs.FindActiveByMediaItem(ctx, tx, mediaItemID)
		if err == nil {
			c.log.Debug().Str("media_item_id", mediaItemID).Str("job_id", existing.ID).Msg("caption enqueue deduplicated")
			job = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		job = &model.CaptionJob{
			MediaItemID: mediaItemID,
			OwnerID:     ownerID,
			Priority:    priority,
			Status:      model.CaptionJobStatusQueued,
			MaxAttempts: c.cfg.MaxAttempts,
			CreatedAt:   time.Now(),
		}
		if err := c.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		return c.media.UpdateCaptionStatus(ctx, tx, mediaItemID, model.CaptionStatusQueued, false)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (c *captionUC) Request(ctx context.Context, mediaItemID string) (*model.CaptionJob, error) {
	var job *model.CaptionJob
	err := c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		item, err := c.media.FindByIDForUpdate(ctx, tx, mediaItemID)
		if err != nil {
			return err
		}

		existing, err := c.jobs.FindActiveByMediaItem(ctx, tx, mediaItemID)
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		job = &model.CaptionJob{
			MediaItemID: mediaItemID,
			OwnerID:     item.OwnerID,
			Status:      model.CaptionJobStatusQueued,
			MaxAttempts: c.cfg.MaxAttempts,
			CreatedAt:   time.Now(),
		}
		if err := c.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		// explicit user request is the one path allowed to leave a terminal status
		return c.media.UpdateCaptionStatus(ctx, tx, mediaItemID, model.CaptionStatusQueued, true)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (c *captionUC) QueueStatus(ctx context.Context, mediaItemID string) (*model.QueueStatus, error) {
	job, err := c.jobs.FindActiveByMediaItem(ctx, repository.NoTX, mediaItemID)
	if err != nil {
		return nil, err
	}

	if job.Status == model.CaptionJobStatusProcessing {
		return &model.QueueStatus{
			JobID:                job.ID,
			Status:               job.Status,
			Position:             1,
			EstimatedWaitMinutes: c.cfg.AvgProcessingMins,
		}, nil
	}

	queued, err := c.jobs.ListQueued(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	position := 0
	for i, q := range queued {
		if q.ID == job.ID {
			position = i + 1
			break
		}
	}
	if position == 0 {
		// raced with the scheduler between the two reads
		return nil, domain.ErrNotFound
	}

	wait := int(math.Ceil(float64(position-1)/float64(c.cfg.JobsPerMinute))) + c.cfg.AvgProcessingMins
	return &model.QueueStatus{
		JobID:                job.ID,
		Status:               job.Status,
		Position:             position,
		EstimatedWaitMinutes: wait,
	}, nil
}

func (c *captionUC) Cancel(ctx context.Context, jobID string) error {
	job, err := c.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.CaptionJobStatusQueued {
		return domain.ErrInvalidArgument
	}
	return c.cancelJob(ctx, job)
}

func (c *captionUC) CancelForMediaItem(ctx context.Context, mediaItemID string) error {
	job, err := c.jobs.FindActiveByMediaItem(ctx, repository.NoTX, mediaItemID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status != model.CaptionJobStatusQueued {
		// a processing job runs to completion; single-flight means it is
		// already on the transcription service
		return nil
	}
	return c.cancelJob(ctx, job)
}

func (c *captionUC) cancelJob(ctx context.Context, job *model.CaptionJob) error {
	now := time.Now()
	job.Status = model.CaptionJobStatusCancelled
	job.CompletedAt = &now
	if err := c.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return err
	}
	if err := c.media.UpdateCaptionStatus(ctx, repository.NoTX, job.MediaItemID, model.CaptionStatusCancelled, false); err != nil {
		c.log.Error().Err(err).Str("media_item_id", job.MediaItemID).Msg("caption status update failed after cancel")
	}
	return nil
}
