package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/domain/ports/repository"
	"mediavault/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// CancellationFlags is the advisory cancel-request set consulted at stage
// boundaries. Acknowledge clears the flag (read-once semantics).
type CancellationFlags interface {
	Cancel(jobID string)
	IsCancelled(jobID string) bool
	Acknowledge(jobID string)
}

// ProgressReporter rescales per-stage progress into a job's overall
// percentage and publishes it to the owner's push channel.
type ProgressReporter interface {
	Report(ctx context.Context, stage string, lo, hi int, percent float64, message string)
	ReportOverall(ctx context.Context, stage string, percent int, message string)
	Terminal(ctx context.Context, stage, message, mediaItemID string, isErr bool)
}

// ReporterFactory builds a reporter bound to one user's channel and one job.
type ReporterFactory func(userID, jobID string) ProgressReporter

// DownloaderResolver maps a platform tag to its downloader.
type DownloaderResolver interface {
	Get(p model.Platform) (adapter.PlatformDownloader, error)
}

// TaskPool runs submitted tasks on a bounded set of workers. Submit returns
// an error when the pool is saturated.
type TaskPool interface {
	Submit(task func(ctx context.Context) error) error
}

var _ IngestionUseCase = (*ingestionUC)(nil)

type IngestionUseCase interface {
	// Submit runs one ingestion end to end and returns once the MediaItem
	// is persisted (or the job failed). Captioning continues asynchronously.
	Submit(ctx context.Context, userID string, source model.IngestionSource) (*model.IngestionJob, *model.MediaItem, error)
	// SubmitBatch ingests several sources with bounded concurrency.
	// Results are positional; individual failures do not abort the batch.
	SubmitBatch(ctx context.Context, userID string, sources []model.IngestionSource) []BatchResult
	// Cancel flags a job for cooperative cancellation at its next stage
	// boundary.
	Cancel(jobID string)
}

type BatchResult struct {
	Job  *model.IngestionJob
	Item *model.MediaItem
	Err  error
}

type ingestionUC struct {
	media       repository.MediaItemRepository
	downloaders DownloaderResolver
	storage     adapter.ObjectStorage
	metadata    adapter.MetadataGenerator
	quota       adapter.QuotaService
	captions    CaptionUseCase
	flags       CancellationFlags
	reporters   ReporterFactory
	pool        TaskPool
	log         *zerolog.Logger
}

func NewIngestionUseCase(
	media repository.MediaItemRepository,
	downloaders DownloaderResolver,
	storage adapter.ObjectStorage,
	metadata adapter.MetadataGenerator,
	quota adapter.QuotaService,
	captions CaptionUseCase,
	flags CancellationFlags,
	reporters ReporterFactory,
	pool TaskPool,
	logger *zerolog.Logger,
) *ingestionUC {
	compLog := logger.With().Str("component", "IngestionUC").Logger()
	return &ingestionUC{
		media:       media,
		downloaders: downloaders,
		storage:     storage,
		metadata:    metadata,
		quota:       quota,
		captions:    captions,
		flags:       flags,
		reporters:   reporters,
		pool:        pool,
		log:         &compLog,
	}
}

func (u *ingestionUC) Cancel(jobID string) { u.flags.Cancel(jobID) }

func (u *ingestionUC) Submit(ctx context.Context, userID string, source model.IngestionSource) (*model.IngestionJob, *model.MediaItem, error) {
	job := &model.IngestionJob{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Stage:     model.StagePending,
		CreatedAt: time.Now(),
	}
	rep := u.reporters(userID, job.ID)
	item, err := u.run(ctx, job, source, rep)
	return job, item, err
}

func (u *ingestionUC) SubmitBatch(ctx context.Context, userID string, sources []model.IngestionSource) []BatchResult {
	results := make([]BatchResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Add(1)
		task := func(context.Context) error {
			defer wg.Done()
			job, item, err := u.Submit(ctx, userID, src)
			results[i] = BatchResult{Job: job, Item: item, Err: err}
			return nil
		}
		if err := u.pool.Submit(task); err != nil {
			// saturated pool: run on the caller, which still bounds the
			// batch's total concurrency
			_ = task(ctx)
		}
	}
	wg.Wait()
	return results
}

// run drives one job through its strictly sequential stages. Cancellation
// is checked only at stage boundaries; anything durably written before a
// failure or cancellation is compensated before returning.
func (u *ingestionUC) run(ctx context.Context, job *model.IngestionJob, source model.IngestionSource, rep ProgressReporter) (*model.MediaItem, error) {
	start := time.Now()
	log := u.log.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()

	rep.ReportOverall(ctx, "download", 5, "checking storage quota")
	report, err := u.quota.CheckStorageLimit(ctx, job.UserID)
	if err != nil {
		return nil, u.fail(ctx, job, rep, fmt.Errorf("quota check: %w", err), "could not verify storage quota")
	}
	if !report.HasSpace {
		metrics.IncIngestionJob("quota_rejected")
		u.terminate(ctx, job, rep, model.StageFailed, "storage quota exceeded", "", true)
		return nil, fmt.Errorf("%w: %d of %d bytes used", domain.ErrQuotaExceeded, report.CurrentUsageBytes, report.LimitBytes)
	}

	job.Stage = model.StageDownloading
	dl, err := u.acquire(ctx, job, source, rep)
	if err != nil {
		return nil, u.fail(ctx, job, rep, err, failureMessage(err))
	}
	metrics.ObserveIngestionStage("download", time.Since(start).Seconds())

	if u.cancelled(job.ID) {
		u.removeLocal(dl, &log)
		return nil, u.cancel(ctx, job, rep)
	}

	job.Stage = model.StageUploading
	uploadStart := time.Now()
	stored, err := u.storage.Upload(ctx, dl.FilePath, dl.Filename, job.UserID, func(pct float64) {
		rep.Report(ctx, "storage", 50, 70, pct, "storing media")
	})
	if err != nil {
		u.removeLocal(dl, &log)
		return nil, u.fail(ctx, job, rep, err, "could not store the media file")
	}
	metrics.ObserveIngestionStage("upload", time.Since(uploadStart).Seconds())
	rep.ReportOverall(ctx, "storage", 70, "media stored")

	if u.cancelled(job.ID) {
		u.removeLocal(dl, &log)
		u.removeStored(stored.Key, &log)
		return nil, u.cancel(ctx, job, rep)
	}

	job.Stage = model.StageGeneratingMetadata
	item := u.buildItem(job, source, dl)
	u.enrich(ctx, item, dl, rep, &log)

	if !model.IsAudioVideo(dl.MimeType) {
		item.CaptionStatus = model.CaptionStatusSkipped
	}

	file := &model.MediaFile{
		MediaItemID: item.ID,
		StorageKey:  stored.Key,
		MimeType:    dl.MimeType,
		SizeBytes:   dl.SizeBytes,
		URL:         stored.URL,
	}
	rep.ReportOverall(ctx, "storage", 85, "saving record")
	if err := u.media.CreateWithFiles(ctx, repository.NoTX, item, []*model.MediaFile{file}); err != nil {
		u.removeLocal(dl, &log)
		u.removeStored(stored.Key, &log)
		return nil, u.fail(ctx, job, rep, fmt.Errorf("persist media item: %w", err), "could not save the media record")
	}

	if item.CaptionStatus != model.CaptionStatusSkipped {
		if _, err := u.captions.Enqueue(ctx, item.ID, item.OwnerID, 0); err != nil {
			log.Error().Err(err).Str("media_item_id", item.ID).Msg("caption enqueue failed, continuing")
		}
	}

	if u.cancelled(job.ID) {
		if err := u.captions.CancelForMediaItem(ctx, item.ID); err != nil {
			log.Error().Err(err).Str("media_item_id", item.ID).Msg("caption cascade cancel failed")
		}
		u.removeLocal(dl, &log)
		u.removeStored(stored.Key, &log)
		if err := u.media.Delete(ctx, repository.NoTX, item.ID); err != nil {
			log.Error().Err(err).Str("media_item_id", item.ID).Msg("media item rollback failed")
		}
		return nil, u.cancel(ctx, job, rep)
	}

	u.removeLocal(dl, &log)

	metrics.IncIngestionJob("completed")
	metrics.ObserveIngestionStage("total", time.Since(start).Seconds())
	u.terminate(ctx, job, rep, model.StageComplete, "media archived", item.ID, false)
	log.Info().Str("media_item_id", item.ID).Dur("took", time.Since(start)).Msg("ingestion completed")
	return item, nil
}

// acquire resolves the source into a local file: either by running the
// platform downloader or by adopting an already-uploaded local file.
func (u *ingestionUC) acquire(ctx context.Context, job *model.IngestionJob, source model.IngestionSource, rep ProgressReporter) (*adapter.DownloadResult, error) {
	if source.IsLocal() {
		info, err := os.Stat(source.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("%w: local file: %v", domain.ErrValidation, err)
		}
		rep.ReportOverall(ctx, "upload", 50, "file received")
		mime := mimeFromName(source.LocalPath)
		return &adapter.DownloadResult{
			FilePath:    source.LocalPath,
			Filename:    filepath.Base(source.LocalPath),
			Title:       source.Title,
			Description: source.Description,
			Metadata: model.PlatformMetadata{Direct: &model.DirectMetadata{
				Filename:    filepath.Base(source.LocalPath),
				ContentType: mime,
				SizeBytes:   info.Size(),
			}},
			MimeType:  mime,
			SizeBytes: info.Size(),
			Format:    trimExt(source.LocalPath),
		}, nil
	}

	if !source.Platform.Valid() {
		return nil, fmt.Errorf("%w: platform %q", domain.ErrUnsupportedPlatform, source.Platform)
	}
	dl, err := u.downloaders.Get(source.Platform)
	if err != nil {
		return nil, err
	}
	rep.ReportOverall(ctx, "download", 10, "downloading")
	return dl.Download(ctx, source.URL, func(pct float64) {
		rep.Report(ctx, "download", 10, 50, pct, "downloading")
	})
}

func (u *ingestionUC) buildItem(job *model.IngestionJob, source model.IngestionSource, dl *adapter.DownloadResult) *model.MediaItem {
	title := dl.Title
	if source.Title != "" {
		title = source.Title
	}
	desc := dl.Description
	if source.Description != "" {
		desc = source.Description
	}
	return &model.MediaItem{
		OwnerID:       job.UserID,
		SourceURL:     source.URL,
		Platform:      dl.Metadata.Platform(),
		Title:         title,
		Description:   desc,
		Visibility:    model.VisibilityPrivate,
		SizeBytes:     dl.SizeBytes,
		Format:        dl.Format,
		CaptionStatus: model.CaptionStatusPending,
		Metadata:      dl.Metadata.Normalized(),
	}
}

// enrich asks the metadata generator for a summary and keywords. Failures
// only log; the fields stay empty.
func (u *ingestionUC) enrich(ctx context.Context, item *model.MediaItem, dl *adapter.DownloadResult, rep ProgressReporter, log *zerolog.Logger) {
	if u.metadata == nil {
		return
	}
	rep.ReportOverall(ctx, "metadata", 72, "generating metadata")
	gen, err := u.metadata.GenerateMetadata(ctx, item.Metadata, dl.Filename)
	if err != nil {
		log.Warn().Err(err).Msg("metadata generation failed, continuing")
		return
	}
	item.Summary = gen.Summary
	item.Keywords = gen.Keywords
	rep.ReportOverall(ctx, "metadata", 80, "metadata generated")
}

func (u *ingestionUC) cancelled(jobID string) bool { return u.flags.IsCancelled(jobID) }

func (u *ingestionUC) cancel(ctx context.Context, job *model.IngestionJob, rep ProgressReporter) error {
	u.flags.Acknowledge(job.ID)
	metrics.IncIngestionJob("cancelled")
	u.terminate(ctx, job, rep, model.StageCancelled, "ingestion cancelled", "", true)
	return domain.ErrCancelled
}

func (u *ingestionUC) fail(ctx context.Context, job *model.IngestionJob, rep ProgressReporter, err error, userMsg string) error {
	metrics.IncIngestionJob("failed")
	u.log.Error().Err(err).Str("job_id", job.ID).Msg("ingestion failed")
	u.terminate(ctx, job, rep, model.StageFailed, userMsg, "", true)
	return err
}

func (u *ingestionUC) terminate(ctx context.Context, job *model.IngestionJob, rep ProgressReporter, stage model.JobStage, message, mediaItemID string, isErr bool) {
	job.Stage = stage
	job.Message = message
	if stage == model.StageComplete {
		job.ProgressPercent = 100
	}
	evStage := "complete"
	if isErr {
		evStage = "error"
	}
	rep.Terminal(ctx, evStage, message, mediaItemID, isErr)
}

// removeLocal drops the downloaded media from disk. Downloader-created
// scratch directories are removed whole, so tool sidecars (info-json,
// thumbnails) never outlive the job.
func (u *ingestionUC) removeLocal(dl *adapter.DownloadResult, log *zerolog.Logger) {
	if dl.ScratchDir != "" {
		if err := os.RemoveAll(dl.ScratchDir); err != nil {
			log.Warn().Err(err).Str("path", dl.ScratchDir).Msg("scratch dir cleanup failed")
		}
		return
	}
	if dl.FilePath == "" {
		return
	}
	if err := os.Remove(dl.FilePath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", dl.FilePath).Msg("temp file cleanup failed")
	}
}

func (u *ingestionUC) removeStored(key string, log *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := u.storage.Delete(ctx, key); err != nil {
		log.Error().Err(err).Str("storage_key", key).Msg("compensating storage delete failed")
	}
}

// failureMessage maps domain errors to the human-readable text carried by
// the terminal progress event. Internal details never leave the server.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMediaNotFound):
		return "the media could not be found"
	case errors.Is(err, domain.ErrMediaPrivate):
		return "the media is private"
	case errors.Is(err, domain.ErrAgeRestricted):
		return "the media is age restricted"
	case errors.Is(err, domain.ErrNotStreamable):
		return "the media is not streamable"
	case errors.Is(err, domain.ErrCorruptedDownload):
		return "the downloaded file appears corrupted"
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return "unsupported platform"
	case errors.Is(err, domain.ErrValidation):
		return "invalid submission"
	default:
		return "ingestion failed"
	}
}

func mimeFromName(name string) string {
	switch ext := filepath.Ext(name); ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
