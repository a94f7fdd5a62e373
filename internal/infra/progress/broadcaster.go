package progress

import (
	"context"
	"math"
	"sync"

	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

const eventName = "ingestion-progress"

// Broadcaster publishes progress events to per-user channels. Publishing is
// fire-and-forget: a failed or dropped event is logged and forgotten, the
// client's poll path remains the source of truth for final state.
type Broadcaster struct {
	push adapter.PushChannel
	log  *zerolog.Logger
}

func NewBroadcaster(push adapter.PushChannel, logger *zerolog.Logger) *Broadcaster {
	compLog := logger.With().Str("component", "Broadcaster").Logger()
	return &Broadcaster{push: push, log: &compLog}
}

func (b *Broadcaster) Publish(ctx context.Context, userID string, ev model.ProgressEvent) {
	if err := b.push.Publish(ctx, adapter.UserChannelKey(userID), eventName, ev); err != nil {
		b.log.Debug().Err(err).Str("job_id", ev.JobID).Msg("progress event dropped")
	}
}

// StageReporter rescales a stage's own 0-100 progress into the overall
// band for one job and enforces that reported percentages never decrease.
type StageReporter struct {
	mu        sync.Mutex
	b         *Broadcaster
	userID    string
	jobID     string
	highWater int
}

func NewStageReporter(b *Broadcaster, userID, jobID string) *StageReporter {
	return &StageReporter{b: b, userID: userID, jobID: jobID}
}

// Report publishes an event with percent scaled into [lo, hi].
func (r *StageReporter) Report(ctx context.Context, stage string, lo, hi int, percent float64, message string) {
	overall := lo + int(math.Floor(percent/100*float64(hi-lo)))
	r.ReportOverall(ctx, stage, overall, message)
}

// ReportOverall publishes an event at an absolute overall percentage,
// clamped to the job's high-water mark.
func (r *StageReporter) ReportOverall(ctx context.Context, stage string, percent int, message string) {
	r.mu.Lock()
	if percent < r.highWater {
		percent = r.highWater
	}
	r.highWater = percent
	r.mu.Unlock()

	r.b.Publish(ctx, r.userID, model.ProgressEvent{
		JobID:           r.jobID,
		Stage:           stage,
		ProgressPercent: percent,
		Message:         message,
	})
}

// Terminal publishes the final event for a job. Error events keep the last
// reported percentage; completion always reports 100.
func (r *StageReporter) Terminal(ctx context.Context, stage string, message, mediaItemID string, isErr bool) {
	r.mu.Lock()
	pct := r.highWater
	if !isErr {
		pct = 100
		r.highWater = 100
	}
	r.mu.Unlock()

	r.b.Publish(ctx, r.userID, model.ProgressEvent{
		JobID:           r.jobID,
		Stage:           stage,
		ProgressPercent: pct,
		Message:         message,
		Error:           isErr,
		MediaItemID:     mediaItemID,
	})
}
