package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Ingestion taxonomy
	ErrValidation          = errors.New("validation failed")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrTransient           = errors.New("transient io failure")
	ErrCorruptedDownload   = errors.New("downloaded file failed integrity checks")
	ErrIngestionFailed     = errors.New("ingestion failed")

	// ErrCancelled marks a user-requested cancellation. It is an outcome,
	// not a failure; callers branch on it with errors.Is instead of
	// matching message strings.
	ErrCancelled = errors.New("cancelled by user")

	// Downloader failure modes surfaced to users
	ErrMediaNotFound  = errors.New("media not found at source")
	ErrMediaPrivate   = errors.New("media is private")
	ErrAgeRestricted  = errors.New("media is age-restricted")
	ErrNotStreamable  = errors.New("media is not streamable")
	ErrCaptionFailed  = errors.New("caption generation failed")
	ErrQueueSaturated = errors.New("ingestion queue is full")
)
