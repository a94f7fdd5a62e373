package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.CaptionJobRepository = (*captionJobRepo)(nil)

type captionJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewCaptionJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *captionJobRepo {
	return &captionJobRepo{pool: pool, tm: tm}
}

const captionJobColumns = `
id, media_item_id, owner_id, priority, status, attempts, max_attempts,
error_message, segments, created_at, updated_at, processing_started_at, completed_at`

func (r *captionJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	segJSON, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}

	const q = `
INSERT INTO caption_jobs (` + captionJobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  attempts = EXCLUDED.attempts,
  error_message = EXCLUDED.error_message,
  segments = EXCLUDED.segments,
  updated_at = EXCLUDED.updated_at,
  processing_started_at = EXCLUDED.processing_started_at,
  completed_at = EXCLUDED.completed_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.MediaItemID, job.OwnerID, job.Priority, string(job.Status),
		job.Attempts, job.MaxAttempts, job.ErrorMessage, segJSON,
		job.CreatedAt, job.UpdatedAt, job.ProcessingStartedAt, job.CompletedAt)
	return err
}

func (r *captionJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CaptionJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+captionJobColumns+` FROM caption_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanCaptionJob(row)
}

func (r *captionJobRepo) FindActiveByMediaItem(ctx context.Context, tx repository.Tx, mediaItemID string) (*model.CaptionJob, error) {
	const q = `
SELECT ` + captionJobColumns + `
FROM caption_jobs
WHERE media_item_id = $1 AND status IN ('queued','processing')
LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, mediaItemID)
	if err != nil {
		return nil, err
	}
	return scanCaptionJob(row)
}

// ClaimNextQueued selects the dequeue-order head (priority descending, then
// oldest first), marks it processing and bumps its attempt counter, all
// inside one transaction so concurrent schedulers cannot double-claim.
func (r *captionJobRepo) ClaimNextQueued(ctx context.Context) (*model.CaptionJob, error) {
	var claimed *model.CaptionJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
SELECT ` + captionJobColumns + `
FROM caption_jobs
WHERE status = 'queued'
ORDER BY priority DESC, created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`
		row, err := pickRow(ctx, r.pool, tx, q)
		if err != nil {
			return err
		}
		job, err := scanCaptionJob(row)
		if err != nil {
			return err
		}

		now := time.Now()
		job.Status = model.CaptionJobStatusProcessing
		job.Attempts++
		job.ProcessingStartedAt = &now
		if err := r.Save(ctx, tx, job); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return claimed, err
}

func (r *captionJobRepo) ListQueued(ctx context.Context, tx repository.Tx) ([]*model.CaptionJob, error) {
	const q = `
SELECT ` + captionJobColumns + `
FROM caption_jobs
WHERE status = 'queued'
ORDER BY priority DESC, created_at ASC;`
	rows, err := pickRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CaptionJob
	for rows.Next() {
		job, err := scanCaptionJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *captionJobRepo) CountProcessing(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM caption_jobs WHERE status = 'processing';`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, translateScanErr(err)
	}
	return n, nil
}

func scanCaptionJob(row pgx.Row) (*model.CaptionJob, error) {
	var job model.CaptionJob
	var status string
	var segJSON []byte
	err := row.Scan(&job.ID, &job.MediaItemID, &job.OwnerID, &job.Priority, &status,
		&job.Attempts, &job.MaxAttempts, &job.ErrorMessage, &segJSON,
		&job.CreatedAt, &job.UpdatedAt, &job.ProcessingStartedAt, &job.CompletedAt)
	if err != nil {
		return nil, translateScanErr(err)
	}
	job.Status = model.CaptionJobStatus(status)
	if len(segJSON) > 0 {
		if err := json.Unmarshal(segJSON, &job.Segments); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &job, nil
}
