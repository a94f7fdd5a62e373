package model

import "time"

type CaptionJobStatus string

const (
	CaptionJobStatusQueued     CaptionJobStatus = "queued"
	CaptionJobStatusProcessing CaptionJobStatus = "processing"
	CaptionJobStatusCompleted  CaptionJobStatus = "completed"
	CaptionJobStatusFailed     CaptionJobStatus = "failed"
	CaptionJobStatusCancelled  CaptionJobStatus = "cancelled"
)

// Active reports whether the job still occupies its media item's single
// queued-or-processing slot.
func (s CaptionJobStatus) Active() bool {
	return s == CaptionJobStatusQueued || s == CaptionJobStatusProcessing
}

// CaptionJob is one queued unit of transcription work, independent of the
// ingestion job that created it.
type CaptionJob struct {
	ID                  string
	MediaItemID         string
	OwnerID             string
	Priority            int
	Status              CaptionJobStatus
	Attempts            int
	MaxAttempts         int
	ErrorMessage        string
	Segments            []CaptionSegment
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
}

// CaptionSegment holds one transcribed span. Timestamps are decimal total
// seconds, never minute:second notation.
type CaptionSegment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
}

// QueueStatus reports a queued job's 1-based position and wait estimate.
type QueueStatus struct {
	JobID                string
	Status               CaptionJobStatus
	Position             int
	EstimatedWaitMinutes int
}
