package sched

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mediavault/internal/config"
	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/domain/ports/repository"
	"mediavault/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// DailyCounter tracks how many caption jobs were dispatched today.
type DailyCounter interface {
	Count(ctx context.Context) (int, error)
	Incr(ctx context.Context) error
}

// CaptionWorker drains the caption queue. Dispatch is gated three ways:
// at most one job processes at a time, dequeues are spaced to the
// configured per-minute rate, and a daily cap stops dispatch entirely
// until the counter rolls over.
type CaptionWorker struct {
	cfg         config.CaptionsConfig
	jobs        repository.CaptionJobRepository
	media       repository.MediaItemRepository
	transcriber adapter.Transcriber
	counter     DailyCounter
	push        adapter.PushChannel
	client      *http.Client
	log         *zerolog.Logger

	busy        atomic.Bool
	lastDequeue time.Time
	wg          sync.WaitGroup
}

func NewCaptionWorker(
	cfg config.CaptionsConfig,
	jobs repository.CaptionJobRepository,
	media repository.MediaItemRepository,
	transcriber adapter.Transcriber,
	counter DailyCounter,
	push adapter.PushChannel,
	logger *zerolog.Logger,
) *CaptionWorker {
	compLog := logger.With().Str("component", "CaptionWorker").Logger()
	return &CaptionWorker{
		cfg:         cfg,
		jobs:        jobs,
		media:       media,
		transcriber: transcriber,
		counter:     counter,
		push:        push,
		client:      &http.Client{Timeout: 2 * time.Minute},
		log:         &compLog,
	}
}

func (w *CaptionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("tick", w.cfg.TickInterval).Int("jobs_per_minute", w.cfg.JobsPerMinute).Msg("starting caption worker")

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping caption worker")
			w.drain()
			return ctx.Err()
		case <-ticker.C:
			w.observeDepth(ctx)
			w.tryDispatch(ctx)
		}
	}
}

// drain waits for an in-flight transcription up to the shutdown grace.
func (w *CaptionWorker) drain() {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn().Msg("shutdown grace elapsed with a caption job still in flight")
	}
}

func (w *CaptionWorker) observeDepth(ctx context.Context) {
	queued, err := w.jobs.ListQueued(ctx, repository.NoTX)
	if err != nil {
		return
	}
	metrics.SetCaptionQueueDepth(len(queued))
}

func (w *CaptionWorker) tryDispatch(ctx context.Context) {
	if w.busy.Load() {
		metrics.IncCaptionGateSkip("single_flight")
		return
	}
	// covers a job left processing by another instance or a prior crash
	if n, err := w.jobs.CountProcessing(ctx, repository.NoTX); err != nil {
		w.log.Error().Err(err).Msg("processing count check failed")
		return
	} else if n > 0 {
		metrics.IncCaptionGateSkip("single_flight")
		return
	}

	if used, err := w.counter.Count(ctx); err != nil {
		w.log.Error().Err(err).Msg("daily counter read failed")
		return
	} else if used >= w.cfg.DailyCap {
		metrics.IncCaptionGateSkip("daily_cap")
		return
	}

	spacing := time.Minute / time.Duration(w.cfg.JobsPerMinute)
	if !w.lastDequeue.IsZero() && time.Since(w.lastDequeue) < spacing {
		metrics.IncCaptionGateSkip("rate")
		return
	}

	job, err := w.jobs.ClaimNextQueued(ctx)
	if err != nil {
		if err != domain.ErrNotFound {
			w.log.Error().Err(err).Msg("caption claim failed")
		}
		return
	}

	w.lastDequeue = time.Now()
	if err := w.counter.Incr(ctx); err != nil {
		w.log.Error().Err(err).Msg("daily counter increment failed")
	}

	w.busy.Store(true)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.busy.Store(false)
		// detached from the run context so shutdown lets it finish
		w.process(context.Background(), job)
	}()
}

func (w *CaptionWorker) process(ctx context.Context, job *model.CaptionJob) {
	log := w.log.With().Str("job_id", job.ID).Str("media_item_id", job.MediaItemID).Int("attempt", job.Attempts).Logger()
	log.Info().Msg("caption job started")
	start := time.Now()

	if err := w.media.UpdateCaptionStatus(ctx, repository.NoTX, job.MediaItemID, model.CaptionStatusProcessing, false); err != nil {
		log.Error().Err(err).Msg("caption status update failed")
	}

	segments, err := w.transcribe(ctx, job)
	if err != nil {
		w.handleFailure(ctx, job, err, &log)
		return
	}

	now := time.Now()
	job.Status = model.CaptionJobStatusCompleted
	job.Segments = segments
	job.CompletedAt = &now
	job.ErrorMessage = ""
	if err := w.jobs.Save(ctx, repository.NoTX, job); err != nil {
		log.Error().Err(err).Msg("caption job save failed")
		return
	}
	if err := w.media.UpdateCaptionStatus(ctx, repository.NoTX, job.MediaItemID, model.CaptionStatusCompleted, false); err != nil {
		log.Error().Err(err).Msg("caption status update failed")
	}

	metrics.IncCaptionJob("completed")
	w.notify(ctx, job, model.CaptionStatusCompleted, "")
	log.Info().Int("segments", len(segments)).Dur("took", time.Since(start)).Msg("caption job completed")
}

// transcribe fetches the stored object into a scratch file and runs the
// speech-to-text service against it.
func (w *CaptionWorker) transcribe(ctx context.Context, job *model.CaptionJob) ([]model.CaptionSegment, error) {
	files, err := w.media.FindFiles(ctx, repository.NoTX, job.MediaItemID)
	if err != nil {
		return nil, fmt.Errorf("find media files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: media item has no stored files", domain.ErrCaptionFailed)
	}

	localPath, err := w.fetch(ctx, files[0].URL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	return w.transcriber.Transcribe(ctx, localPath)
}

func (w *CaptionWorker) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch stored object: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetch stored object: status %d", domain.ErrTransient, resp.StatusCode)
	}

	f, err := os.CreateTemp("", "mediavault-cap-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: fetch stored object: %v", domain.ErrTransient, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (w *CaptionWorker) handleFailure(ctx context.Context, job *model.CaptionJob, cause error, log *zerolog.Logger) {
	job.ErrorMessage = cause.Error()

	if job.Attempts < job.MaxAttempts {
		job.Status = model.CaptionJobStatusQueued
		job.ProcessingStartedAt = nil
		if err := w.jobs.Save(ctx, repository.NoTX, job); err != nil {
			log.Error().Err(err).Msg("caption job requeue failed")
			return
		}
		if err := w.media.UpdateCaptionStatus(ctx, repository.NoTX, job.MediaItemID, model.CaptionStatusQueued, false); err != nil {
			log.Error().Err(err).Msg("caption status update failed")
		}
		metrics.IncCaptionJob("retried")
		log.Warn().Err(cause).Int("attempts", job.Attempts).Msg("caption job requeued")
		return
	}

	now := time.Now()
	job.Status = model.CaptionJobStatusFailed
	job.CompletedAt = &now
	if err := w.jobs.Save(ctx, repository.NoTX, job); err != nil {
		log.Error().Err(err).Msg("caption job save failed")
		return
	}
	if err := w.media.UpdateCaptionStatus(ctx, repository.NoTX, job.MediaItemID, model.CaptionStatusFailed, false); err != nil {
		log.Error().Err(err).Msg("caption status update failed")
	}

	metrics.IncCaptionJob("failed")
	w.notify(ctx, job, model.CaptionStatusFailed, "caption generation failed")
	log.Error().Err(cause).Msg("caption job failed terminally")
}

// notify pushes the terminal caption outcome to the owner's channel.
// Best-effort, like every push.
func (w *CaptionWorker) notify(ctx context.Context, job *model.CaptionJob, status model.CaptionStatus, message string) {
	payload := map[string]interface{}{
		"media_item_id": job.MediaItemID,
		"status":        string(status),
	}
	if message != "" {
		payload["message"] = message
		payload["error"] = true
	}
	if err := w.push.Publish(ctx, adapter.UserChannelKey(job.OwnerID), "caption-status", payload); err != nil {
		w.log.Debug().Err(err).Str("job_id", job.ID).Msg("caption notification dropped")
	}
}
