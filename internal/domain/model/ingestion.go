package model

import "time"

type JobStage string

const (
	StagePending            JobStage = "pending"
	StageDownloading        JobStage = "downloading"
	StageUploading          JobStage = "uploading"
	StageGeneratingMetadata JobStage = "generating_metadata"
	StageTranscribing       JobStage = "transcribing"
	StageComplete           JobStage = "complete"
	StageFailed             JobStage = "failed"
	StageCancelled          JobStage = "cancelled"
)

func (s JobStage) Terminal() bool {
	return s == StageComplete || s == StageFailed || s == StageCancelled
}

// IngestionJob is ephemeral submission state. It is mutated only by the
// goroutine driving that job and discarded after the terminal broadcast.
type IngestionJob struct {
	ID              string
	UserID          string
	Stage           JobStage
	ProgressPercent int
	Message         string
	CreatedAt       time.Time
}

// IngestionSource is either a remote URL plus platform tag, or a local
// file the user already uploaded.
type IngestionSource struct {
	URL      string
	Platform Platform

	LocalPath   string
	Title       string
	Description string
}

func (s IngestionSource) IsLocal() bool { return s.LocalPath != "" }

// ProgressEvent is the payload published to the per-user push channel.
// Delivery is at-most-once; the poll path is the source of truth.
type ProgressEvent struct {
	JobID           string `json:"job_id"`
	Stage           string `json:"stage"` // upload|download|storage|metadata|transcription|complete|error
	ProgressPercent int    `json:"progress_percent"`
	Message         string `json:"message"`
	Details         string `json:"details,omitempty"`
	Error           bool   `json:"error,omitempty"`
	MediaItemID     string `json:"media_item_id,omitempty"`
}
