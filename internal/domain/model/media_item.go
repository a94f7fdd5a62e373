package model

import (
	"strings"
	"time"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type CaptionStatus string

const (
	CaptionStatusPending    CaptionStatus = "pending"
	CaptionStatusQueued     CaptionStatus = "queued"
	CaptionStatusProcessing CaptionStatus = "processing"
	CaptionStatusCompleted  CaptionStatus = "completed"
	CaptionStatusFailed     CaptionStatus = "failed"
	CaptionStatusSkipped    CaptionStatus = "skipped"
	CaptionStatusCancelled  CaptionStatus = "cancelled"
)

// Terminal reports whether the status may no longer change except through
// an explicit new user-initiated caption request.
func (s CaptionStatus) Terminal() bool {
	switch s {
	case CaptionStatusCompleted, CaptionStatusFailed, CaptionStatusSkipped, CaptionStatusCancelled:
		return true
	}
	return false
}

// MediaItem is the canonical archived asset. CaptionStatus is owned by the
// caption queue once the item exists.
type MediaItem struct {
	ID            string
	OwnerID       string
	SourceURL     string
	Platform      Platform
	Title         string
	Description   string
	Visibility    Visibility
	Tags          []string
	SizeBytes     int64
	Format        string
	CaptionStatus CaptionStatus
	Metadata      NormalizedMetadata
	Summary       string
	Keywords      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MediaFile is an immutable stored object belonging to a MediaItem.
// Files are never mutated after creation, only replaced.
type MediaFile struct {
	ID          string
	MediaItemID string
	StorageKey  string
	MimeType    string
	SizeBytes   int64
	URL         string
	CreatedAt   time.Time
}

// IsAudioVideo reports whether a MIME type should enter the caption queue.
func IsAudioVideo(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/")
}
