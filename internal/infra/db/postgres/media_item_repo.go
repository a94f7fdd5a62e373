package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.MediaItemRepository = (*mediaItemRepo)(nil)

type mediaItemRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewMediaItemRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *mediaItemRepo {
	return &mediaItemRepo{pool: pool, tm: tm}
}

func (r *mediaItemRepo) CreateWithFiles(ctx context.Context, tx repository.Tx, item *model.MediaItem, files []*model.MediaFile) error {
	run := func(ctx context.Context, tx repository.Tx) error {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		now := time.Now()
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now

		metaJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		const itemQ = `
INSERT INTO media_items
  (id, owner_id, source_url, platform, title, description, visibility, tags,
   size_bytes, format, caption_status, metadata, summary, keywords, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16);`
		if _, err := execSQL(ctx, r.pool, tx, itemQ,
			item.ID, item.OwnerID, item.SourceURL, string(item.Platform), item.Title, item.Description,
			string(item.Visibility), item.Tags, item.SizeBytes, item.Format, string(item.CaptionStatus),
			metaJSON, item.Summary, item.Keywords, item.CreatedAt, item.UpdatedAt); err != nil {
			return err
		}

		const fileQ = `
INSERT INTO media_files (id, media_item_id, storage_key, mime_type, size_bytes, url, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
		for _, f := range files {
			if f.ID == "" {
				f.ID = uuid.NewString()
			}
			f.MediaItemID = item.ID
			if f.CreatedAt.IsZero() {
				f.CreatedAt = now
			}
			if _, err := execSQL(ctx, r.pool, tx, fileQ,
				f.ID, f.MediaItemID, f.StorageKey, f.MimeType, f.SizeBytes, f.URL, f.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	}

	if tx != nil {
		return run(ctx, tx)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, run)
}

func (r *mediaItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error) {
	return r.findByID(ctx, tx, id, false)
}

// FindByIDForUpdate holds a row lock on the item until the enclosing
// transaction ends, serializing concurrent check-then-insert flows.
func (r *mediaItemRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error) {
	return r.findByID(ctx, tx, id, true)
}

func (r *mediaItemRepo) findByID(ctx context.Context, tx repository.Tx, id string, forUpdate bool) (*model.MediaItem, error) {
	q := `
SELECT id, owner_id, source_url, platform, title, description, visibility, tags,
       size_bytes, format, caption_status, metadata, summary, keywords, created_at, updated_at
FROM media_items WHERE id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var it model.MediaItem
	var platform, visibility, captionStatus string
	var metaJSON []byte
	err = row.Scan(&it.ID, &it.OwnerID, &it.SourceURL, &platform, &it.Title, &it.Description,
		&visibility, &it.Tags, &it.SizeBytes, &it.Format, &captionStatus, &metaJSON,
		&it.Summary, &it.Keywords, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, translateScanErr(err)
	}
	it.Platform = model.Platform(platform)
	it.Visibility = model.Visibility(visibility)
	it.CaptionStatus = model.CaptionStatus(captionStatus)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &it.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &it, nil
}

// UpdateCaptionStatus guards the lifecycle invariant in SQL: a terminal
// caption status only moves again when force is set (an explicit new user
// caption request).
func (r *mediaItemRepo) UpdateCaptionStatus(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error {
	const q = `
UPDATE media_items SET caption_status = $2, updated_at = now()
WHERE id = $1
  AND ($3 OR caption_status NOT IN ('completed','failed','skipped','cancelled'));`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), force)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: caption status is terminal", domain.ErrInvalidArgument)
}

func (r *mediaItemRepo) FindFiles(ctx context.Context, tx repository.Tx, mediaItemID string) ([]*model.MediaFile, error) {
	const q = `
SELECT id, media_item_id, storage_key, mime_type, size_bytes, url, created_at
FROM media_files WHERE media_item_id = $1 ORDER BY created_at DESC;`
	rows, err := pickRows(ctx, r.pool, tx, q, mediaItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*model.MediaFile
	for rows.Next() {
		var f model.MediaFile
		if err := rows.Scan(&f.ID, &f.MediaItemID, &f.StorageKey, &f.MimeType, &f.SizeBytes, &f.URL, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

func (r *mediaItemRepo) SumFileSizes(ctx context.Context, tx repository.Tx, ownerID string) (int64, error) {
	const q = `
SELECT COALESCE(SUM(f.size_bytes), 0)
FROM media_files f JOIN media_items i ON i.id = f.media_item_id
WHERE i.owner_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, ownerID)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, translateScanErr(err)
	}
	return total, nil
}

func (r *mediaItemRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	run := func(ctx context.Context, tx repository.Tx) error {
		if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM media_files WHERE media_item_id = $1;`, id); err != nil {
			return err
		}
		_, err := execSQL(ctx, r.pool, tx, `DELETE FROM media_items WHERE id = $1;`, id)
		return err
	}
	if tx != nil {
		return run(ctx, tx)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, run)
}
