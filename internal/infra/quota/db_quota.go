package quota

import (
	"context"

	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/domain/ports/repository"
)

var _ adapter.QuotaService = (*DBQuota)(nil)

// DBQuota answers storage-limit checks from the persisted file sizes.
type DBQuota struct {
	media      repository.MediaItemRepository
	limitBytes int64
}

func NewDBQuota(media repository.MediaItemRepository, limitBytes int64) *DBQuota {
	return &DBQuota{media: media, limitBytes: limitBytes}
}

func (q *DBQuota) CheckStorageLimit(ctx context.Context, userID string) (*adapter.QuotaReport, error) {
	used, err := q.media.SumFileSizes(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	return &adapter.QuotaReport{
		HasSpace:          used < q.limitBytes,
		CurrentUsageBytes: used,
		LimitBytes:        q.limitBytes,
	}, nil
}
