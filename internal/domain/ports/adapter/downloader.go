package adapter

import (
	"context"

	"mediavault/internal/domain/model"
)

// DownloadResult is the uniform contract every platform downloader returns.
// ScratchDir, when set, is a private directory the downloader created for
// this download (media file plus any tool sidecars); the caller owns its
// removal once the file has been consumed.
type DownloadResult struct {
	FilePath    string
	ScratchDir  string
	Filename    string
	Title       string
	Description string
	Metadata    model.PlatformMetadata
	MimeType    string
	SizeBytes   int64
	Format      string
}

// PlatformDownloader fetches remote media into the scratch directory.
// Implementations translate platform failure modes into domain errors
// (domain.ErrMediaPrivate, ErrAgeRestricted, ErrMediaNotFound,
// ErrNotStreamable) and report fractional progress through onProgress.
type PlatformDownloader interface {
	Download(ctx context.Context, url string, onProgress ProgressFunc) (*DownloadResult, error)
}
