package adapter

import (
	"context"
	"time"

	"mediavault/internal/domain/model"
)

// GeneratedMetadata is the best-effort AI enrichment for an item.
type GeneratedMetadata struct {
	Summary     string
	Keywords    []string
	GeneratedAt time.Time
}

// MetadataGenerator produces a summary and keywords for downloaded media.
// Failures are swallowed by callers; the fields simply stay empty.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, meta model.NormalizedMetadata, filename string) (*GeneratedMetadata, error)
}

// Transcriber converts a local media file into caption segments. An empty
// result is valid (no vocal content). Timestamps in the returned segments
// are decimal total seconds.
type Transcriber interface {
	Transcribe(ctx context.Context, localPath string) ([]model.CaptionSegment, error)
}
