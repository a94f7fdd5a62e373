package adapter

import "context"

type QuotaReport struct {
	HasSpace          bool
	CurrentUsageBytes int64
	LimitBytes        int64
}

// QuotaService answers whether an owner may store more media.
type QuotaService interface {
	CheckStorageLimit(ctx context.Context, userID string) (*QuotaReport, error)
}
