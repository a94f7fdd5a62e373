package usecase

import (
	"context"
	"os"
	"sync"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

type mockMediaRepo struct {
	CreateWithFilesFunc     func(ctx context.Context, tx repository.Tx, item *model.MediaItem, files []*model.MediaFile) error
	FindByIDFunc            func(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error)
	FindByIDForUpdateFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error)
	UpdateCaptionStatusFunc func(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error
	FindFilesFunc           func(ctx context.Context, tx repository.Tx, mediaItemID string) ([]*model.MediaFile, error)
	SumFileSizesFunc        func(ctx context.Context, tx repository.Tx, ownerID string) (int64, error)
	DeleteFunc              func(ctx context.Context, tx repository.Tx, id string) error
}

var _ repository.MediaItemRepository = (*mockMediaRepo)(nil)

func (m *mockMediaRepo) CreateWithFiles(ctx context.Context, tx repository.Tx, item *model.MediaItem, files []*model.MediaFile) error {
	if m.CreateWithFilesFunc != nil {
		return m.CreateWithFilesFunc(ctx, tx, item, files)
	}
	return nil
}

func (m *mockMediaRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockMediaRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error) {
	if m.FindByIDForUpdateFunc != nil {
		return m.FindByIDForUpdateFunc(ctx, tx, id)
	}
	return m.FindByID(ctx, tx, id)
}

func (m *mockMediaRepo) UpdateCaptionStatus(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error {
	if m.UpdateCaptionStatusFunc != nil {
		return m.UpdateCaptionStatusFunc(ctx, tx, id, status, force)
	}
	return nil
}

func (m *mockMediaRepo) FindFiles(ctx context.Context, tx repository.Tx, mediaItemID string) ([]*model.MediaFile, error) {
	if m.FindFilesFunc != nil {
		return m.FindFilesFunc(ctx, tx, mediaItemID)
	}
	return nil, nil
}

func (m *mockMediaRepo) SumFileSizes(ctx context.Context, tx repository.Tx, ownerID string) (int64, error) {
	if m.SumFileSizesFunc != nil {
		return m.SumFileSizesFunc(ctx, tx, ownerID)
	}
	return 0, nil
}

func (m *mockMediaRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tx, id)
	}
	return nil
}

type mockCaptionJobRepo struct {
	SaveFunc                  func(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error
	FindByIDFunc              func(ctx context.Context, tx repository.Tx, id string) (*model.CaptionJob, error)
	FindActiveByMediaItemFunc func(ctx context.Context, tx repository.Tx, mediaItemID string) (*model.CaptionJob, error)
	ClaimNextQueuedFunc       func(ctx context.Context) (*model.CaptionJob, error)
	ListQueuedFunc            func(ctx context.Context, tx repository.Tx) ([]*model.CaptionJob, error)
	CountProcessingFunc       func(ctx context.Context, tx repository.Tx) (int, error)
}

var _ repository.CaptionJobRepository = (*mockCaptionJobRepo)(nil)

func (m *mockCaptionJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, job)
	}
	if job.ID == "" {
		job.ID = "job-generated"
	}
	return nil
}

func (m *mockCaptionJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CaptionJob, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockCaptionJobRepo) FindActiveByMediaItem(ctx context.Context, tx repository.Tx, mediaItemID string) (*model.CaptionJob, error) {
	if m.FindActiveByMediaItemFunc != nil {
		return m.FindActiveByMediaItemFunc(ctx, tx, mediaItemID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockCaptionJobRepo) ClaimNextQueued(ctx context.Context) (*model.CaptionJob, error) {
	if m.ClaimNextQueuedFunc != nil {
		return m.ClaimNextQueuedFunc(ctx)
	}
	return nil, domain.ErrNotFound
}

func (m *mockCaptionJobRepo) ListQueued(ctx context.Context, tx repository.Tx) ([]*model.CaptionJob, error) {
	if m.ListQueuedFunc != nil {
		return m.ListQueuedFunc(ctx, tx)
	}
	return nil, nil
}

func (m *mockCaptionJobRepo) CountProcessing(ctx context.Context, tx repository.Tx) (int, error) {
	if m.CountProcessingFunc != nil {
		return m.CountProcessingFunc(ctx, tx)
	}
	return 0, nil
}

type mockDownloader struct {
	DownloadFunc func(ctx context.Context, url string, onProgress adapter.ProgressFunc) (*adapter.DownloadResult, error)
}

var _ adapter.PlatformDownloader = (*mockDownloader)(nil)

func (m *mockDownloader) Download(ctx context.Context, url string, onProgress adapter.ProgressFunc) (*adapter.DownloadResult, error) {
	return m.DownloadFunc(ctx, url, onProgress)
}

type mockResolver struct {
	d adapter.PlatformDownloader
}

func (m *mockResolver) Get(p model.Platform) (adapter.PlatformDownloader, error) {
	if m.d == nil {
		return nil, domain.ErrUnsupportedPlatform
	}
	return m.d, nil
}

type mockStorage struct {
	UploadFunc func(ctx context.Context, localPath, desiredName, ownerNamespace string, onProgress adapter.ProgressFunc) (*adapter.StoredObject, error)
	DeleteFunc func(ctx context.Context, key string) error

	mu      sync.Mutex
	deleted []string
}

var _ adapter.ObjectStorage = (*mockStorage)(nil)

func (m *mockStorage) Upload(ctx context.Context, localPath, desiredName, ownerNamespace string, onProgress adapter.ProgressFunc) (*adapter.StoredObject, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, localPath, desiredName, ownerNamespace, onProgress)
	}
	return &adapter.StoredObject{Key: "owners/" + ownerNamespace + "/" + desiredName, URL: "https://cdn.test/" + desiredName}, nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, key)
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *mockStorage) deletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type mockMetadataGen struct {
	GenerateMetadataFunc func(ctx context.Context, meta model.NormalizedMetadata, filename string) (*adapter.GeneratedMetadata, error)
}

var _ adapter.MetadataGenerator = (*mockMetadataGen)(nil)

func (m *mockMetadataGen) GenerateMetadata(ctx context.Context, meta model.NormalizedMetadata, filename string) (*adapter.GeneratedMetadata, error) {
	if m.GenerateMetadataFunc != nil {
		return m.GenerateMetadataFunc(ctx, meta, filename)
	}
	return &adapter.GeneratedMetadata{Summary: "a summary", Keywords: []string{"music"}}, nil
}

type mockQuota struct {
	CheckStorageLimitFunc func(ctx context.Context, userID string) (*adapter.QuotaReport, error)
}

var _ adapter.QuotaService = (*mockQuota)(nil)

func (m *mockQuota) CheckStorageLimit(ctx context.Context, userID string) (*adapter.QuotaReport, error) {
	if m.CheckStorageLimitFunc != nil {
		return m.CheckStorageLimitFunc(ctx, userID)
	}
	return &adapter.QuotaReport{HasSpace: true, LimitBytes: 1 << 30}, nil
}

type mockCaptionUC struct {
	EnqueueFunc            func(ctx context.Context, mediaItemID, ownerID string, priority int) (*model.CaptionJob, error)
	CancelForMediaItemFunc func(ctx context.Context, mediaItemID string) error
}

var _ CaptionUseCase = (*mockCaptionUC)(nil)

func (m *mockCaptionUC) Enqueue(ctx context.Context, mediaItemID, ownerID string, priority int) (*model.CaptionJob, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, mediaItemID, ownerID, priority)
	}
	return &model.CaptionJob{ID: "cap-1", MediaItemID: mediaItemID, Status: model.CaptionJobStatusQueued}, nil
}

func (m *mockCaptionUC) Request(ctx context.Context, mediaItemID string) (*model.CaptionJob, error) {
	return nil, domain.ErrNotFound
}

func (m *mockCaptionUC) QueueStatus(ctx context.Context, mediaItemID string) (*model.QueueStatus, error) {
	return nil, domain.ErrNotFound
}

func (m *mockCaptionUC) Cancel(ctx context.Context, jobID string) error { return nil }

func (m *mockCaptionUC) CancelForMediaItem(ctx context.Context, mediaItemID string) error {
	if m.CancelForMediaItemFunc != nil {
		return m.CancelForMediaItemFunc(ctx, mediaItemID)
	}
	return nil
}

// mockTxManager runs the callback under a mutex, standing in for the row
// lock that serializes transactions touching the same item.
type mockTxManager struct {
	mu sync.Mutex
	tx repository.Tx
}

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m.tx)
}

// mockFlags is a plain in-memory cancel set with read-once acknowledge.
type mockFlags struct {
	mu    sync.Mutex
	flags map[string]struct{}
}

func newMockFlags() *mockFlags { return &mockFlags{flags: map[string]struct{}{}} }

func (m *mockFlags) Cancel(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[jobID] = struct{}{}
}

func (m *mockFlags) IsCancelled(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flags[jobID]
	return ok
}

func (m *mockFlags) Acknowledge(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, jobID)
}

type recordedEvent struct {
	Stage       string
	Percent     int
	IsErr       bool
	Terminal    bool
	MediaItemID string
	Message     string
}

// recordingReporter captures the full event sequence for assertions.
type recordingReporter struct {
	mu        sync.Mutex
	events    []recordedEvent
	highWater int
}

func (r *recordingReporter) Report(ctx context.Context, stage string, lo, hi int, percent float64, message string) {
	overall := lo + int(percent/100*float64(hi-lo))
	r.ReportOverall(ctx, stage, overall, message)
}

func (r *recordingReporter) ReportOverall(ctx context.Context, stage string, percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent < r.highWater {
		percent = r.highWater
	}
	r.highWater = percent
	r.events = append(r.events, recordedEvent{Stage: stage, Percent: percent, Message: message})
}

func (r *recordingReporter) Terminal(ctx context.Context, stage, message, mediaItemID string, isErr bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pct := r.highWater
	if !isErr {
		pct = 100
	}
	r.events = append(r.events, recordedEvent{Stage: stage, Percent: pct, IsErr: isErr, Terminal: true, MediaItemID: mediaItemID, Message: message})
}

func (r *recordingReporter) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

// inlinePool runs every task synchronously on the caller.
type inlinePool struct{}

func (inlinePool) Submit(task func(ctx context.Context) error) error {
	return task(context.Background())
}
