package repository

import (
	"context"

	"mediavault/internal/domain/model"
)

type MediaItemRepository interface {
	// CreateWithFiles persists the item and its files in one transaction.
	CreateWithFiles(ctx context.Context, tx Tx, item *model.MediaItem, files []*model.MediaFile) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.MediaItem, error)
	// FindByIDForUpdate reads the item holding a row lock for the rest of
	// the transaction. Serializes check-then-insert flows on the item.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.MediaItem, error)
	// UpdateCaptionStatus enforces the lifecycle ordering invariant: a
	// terminal status may not regress to queued unless force is set by an
	// explicit new user-initiated caption request.
	UpdateCaptionStatus(ctx context.Context, tx Tx, id string, status model.CaptionStatus, force bool) error
	// FindFiles lists an item's stored files, newest first.
	FindFiles(ctx context.Context, tx Tx, mediaItemID string) ([]*model.MediaFile, error)
	// SumFileSizes returns total stored bytes for an owner (quota input).
	SumFileSizes(ctx context.Context, tx Tx, ownerID string) (int64, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
