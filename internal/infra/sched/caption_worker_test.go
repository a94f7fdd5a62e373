package sched

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"mediavault/internal/config"
	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

type stubJobs struct {
	SaveFunc            func(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error
	ClaimNextQueuedFunc func(ctx context.Context) (*model.CaptionJob, error)
	CountProcessingFunc func(ctx context.Context, tx repository.Tx) (int, error)
	ListQueuedFunc      func(ctx context.Context, tx repository.Tx) ([]*model.CaptionJob, error)
}

var _ repository.CaptionJobRepository = (*stubJobs)(nil)

func (s *stubJobs) Save(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
	if s.SaveFunc != nil {
		return s.SaveFunc(ctx, tx, job)
	}
	return nil
}

func (s *stubJobs) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CaptionJob, error) {
	return nil, domain.ErrNotFound
}

func (s *stubJobs) FindActiveByMediaItem(ctx context.Context, tx repository.Tx, mediaItemID string) (*model.CaptionJob, error) {
	return nil, domain.ErrNotFound
}

func (s *stubJobs) ClaimNextQueued(ctx context.Context) (*model.CaptionJob, error) {
	if s.ClaimNextQueuedFunc != nil {
		return s.ClaimNextQueuedFunc(ctx)
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobs) ListQueued(ctx context.Context, tx repository.Tx) ([]*model.CaptionJob, error) {
	if s.ListQueuedFunc != nil {
		return s.ListQueuedFunc(ctx, tx)
	}
	return nil, nil
}

func (s *stubJobs) CountProcessing(ctx context.Context, tx repository.Tx) (int, error) {
	if s.CountProcessingFunc != nil {
		return s.CountProcessingFunc(ctx, tx)
	}
	return 0, nil
}

type stubMedia struct {
	UpdateCaptionStatusFunc func(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error
	FindFilesFunc           func(ctx context.Context, tx repository.Tx, mediaItemID string) ([]*model.MediaFile, error)
}

var _ repository.MediaItemRepository = (*stubMedia)(nil)

func (s *stubMedia) CreateWithFiles(ctx context.Context, tx repository.Tx, item *model.MediaItem, files []*model.MediaFile) error {
	return nil
}

func (s *stubMedia) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error) {
	return nil, domain.ErrNotFound
}

func (s *stubMedia) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.MediaItem, error) {
	return nil, domain.ErrNotFound
}

func (s *stubMedia) UpdateCaptionStatus(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error {
	if s.UpdateCaptionStatusFunc != nil {
		return s.UpdateCaptionStatusFunc(ctx, tx, id, status, force)
	}
	return nil
}

func (s *stubMedia) FindFiles(ctx context.Context, tx repository.Tx, mediaItemID string) ([]*model.MediaFile, error) {
	if s.FindFilesFunc != nil {
		return s.FindFilesFunc(ctx, tx, mediaItemID)
	}
	return nil, nil
}

func (s *stubMedia) SumFileSizes(ctx context.Context, tx repository.Tx, ownerID string) (int64, error) {
	return 0, nil
}

func (s *stubMedia) Delete(ctx context.Context, tx repository.Tx, id string) error { return nil }

type stubTranscriber struct {
	TranscribeFunc func(ctx context.Context, localPath string) ([]model.CaptionSegment, error)
}

func (s *stubTranscriber) Transcribe(ctx context.Context, localPath string) ([]model.CaptionSegment, error) {
	return s.TranscribeFunc(ctx, localPath)
}

type stubCounter struct {
	count    int
	countErr error
	incCalls int
}

func (s *stubCounter) Count(ctx context.Context) (int, error) { return s.count, s.countErr }

func (s *stubCounter) Incr(ctx context.Context) error {
	s.incCalls++
	s.count++
	return nil
}

type stubPush struct {
	events []string
}

func (s *stubPush) Publish(ctx context.Context, channelKey, eventName string, payload interface{}) error {
	s.events = append(s.events, eventName)
	return nil
}

func workerConfig() config.CaptionsConfig {
	return config.CaptionsConfig{
		TickInterval:      10 * time.Millisecond,
		JobsPerMinute:     2,
		DailyCap:          200,
		MaxAttempts:       3,
		AvgProcessingMins: 1,
		ShutdownGrace:     time.Second,
	}
}

func queuedJob(attempts int) *model.CaptionJob {
	return &model.CaptionJob{
		ID:          "cap-1",
		MediaItemID: "mi-1",
		OwnerID:     "u1",
		Status:      model.CaptionJobStatusProcessing,
		Attempts:    attempts,
		MaxAttempts: 3,
		CreatedAt:   time.Now(),
	}
}

func TestCaptionWorkerDispatch(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio bytes"))
	}))
	defer fileSrv.Close()

	mediaFiles := func(ctx context.Context, tx repository.Tx, mediaItemID string) ([]*model.MediaFile, error) {
		return []*model.MediaFile{{ID: "f1", MediaItemID: mediaItemID, URL: fileSrv.URL + "/f1"}}, nil
	}

	t.Run("claims, transcribes and completes a job", func(t *testing.T) {
		// Arrange
		claimed := false
		var saved *model.CaptionJob
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) {
				if claimed {
					return nil, domain.ErrNotFound
				}
				claimed = true
				return queuedJob(1), nil
			},
			SaveFunc: func(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
				saved = job
				return nil
			},
		}
		var statuses []model.CaptionStatus
		media := &stubMedia{
			FindFilesFunc: mediaFiles,
			UpdateCaptionStatusFunc: func(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error {
				statuses = append(statuses, status)
				return nil
			},
		}
		tr := &stubTranscriber{TranscribeFunc: func(ctx context.Context, localPath string) ([]model.CaptionSegment, error) {
			return []model.CaptionSegment{{StartSeconds: 0, EndSeconds: 2.5, Text: "hello"}}, nil
		}}
		counter := &stubCounter{}
		push := &stubPush{}
		w := NewCaptionWorker(workerConfig(), jobs, media, tr, counter, push, testLogger())

		// Act
		w.tryDispatch(context.Background())
		w.wg.Wait()

		// Assert
		if saved == nil || saved.Status != model.CaptionJobStatusCompleted {
			t.Fatalf("expected completed job, got %+v", saved)
		}
		if len(saved.Segments) != 1 || saved.Segments[0].Text != "hello" {
			t.Fatalf("unexpected segments: %+v", saved.Segments)
		}
		if saved.CompletedAt == nil {
			t.Fatal("expected completion timestamp")
		}
		if counter.incCalls != 1 {
			t.Fatalf("expected one counter increment, got %d", counter.incCalls)
		}
		want := []model.CaptionStatus{model.CaptionStatusProcessing, model.CaptionStatusCompleted}
		if len(statuses) != 2 || statuses[0] != want[0] || statuses[1] != want[1] {
			t.Fatalf("unexpected status sequence: %v", statuses)
		}
		if len(push.events) != 1 || push.events[0] != "caption-status" {
			t.Fatalf("expected one caption-status push, got %v", push.events)
		}
	})

	t.Run("daily cap stops dispatch", func(t *testing.T) {
		// Arrange
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) {
				t.Fatal("claim must not run past the daily cap")
				return nil, nil
			},
		}
		cfg := workerConfig()
		cfg.DailyCap = 5
		w := NewCaptionWorker(cfg, jobs, &stubMedia{}, &stubTranscriber{}, &stubCounter{count: 5}, &stubPush{}, testLogger())

		// Act
		w.tryDispatch(context.Background())
	})

	t.Run("counter outage holds the cap gate closed", func(t *testing.T) {
		// Arrange
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) {
				t.Fatal("claim must not run when the daily counter is unreadable")
				return nil, nil
			},
		}
		counter := &stubCounter{countErr: errors.New("dial tcp: connection refused")}
		w := NewCaptionWorker(workerConfig(), jobs, &stubMedia{}, &stubTranscriber{}, counter, &stubPush{}, testLogger())

		// Act
		w.tryDispatch(context.Background())
	})

	t.Run("dequeues are spaced to the configured rate", func(t *testing.T) {
		// Arrange
		claims := 0
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) {
				claims++
				return nil, domain.ErrNotFound
			},
		}
		w := NewCaptionWorker(workerConfig(), jobs, &stubMedia{}, &stubTranscriber{}, &stubCounter{}, &stubPush{}, testLogger())

		// Act: first call dequeues (empty queue), second lands inside the
		// spacing window
		w.tryDispatch(context.Background())
		w.lastDequeue = time.Now()
		w.tryDispatch(context.Background())

		// Assert
		if claims != 1 {
			t.Fatalf("expected exactly one claim, got %d", claims)
		}
	})

	t.Run("another processing job blocks dispatch", func(t *testing.T) {
		// Arrange
		jobs := &stubJobs{
			CountProcessingFunc: func(ctx context.Context, tx repository.Tx) (int, error) { return 1, nil },
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) {
				t.Fatal("claim must not run while a job is processing")
				return nil, nil
			},
		}
		w := NewCaptionWorker(workerConfig(), jobs, &stubMedia{}, &stubTranscriber{}, &stubCounter{}, &stubPush{}, testLogger())

		// Act
		w.tryDispatch(context.Background())
	})

	t.Run("failure below the attempt cap requeues", func(t *testing.T) {
		// Arrange
		var saved *model.CaptionJob
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) { return queuedJob(1), nil },
			SaveFunc: func(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
				saved = job
				return nil
			},
		}
		media := &stubMedia{FindFilesFunc: mediaFiles}
		tr := &stubTranscriber{TranscribeFunc: func(ctx context.Context, localPath string) ([]model.CaptionSegment, error) {
			return nil, errors.New("service unavailable")
		}}
		push := &stubPush{}
		w := NewCaptionWorker(workerConfig(), jobs, media, tr, &stubCounter{}, push, testLogger())

		// Act
		w.tryDispatch(context.Background())
		w.wg.Wait()

		// Assert
		if saved == nil || saved.Status != model.CaptionJobStatusQueued {
			t.Fatalf("expected requeued job, got %+v", saved)
		}
		if saved.ErrorMessage == "" {
			t.Fatal("expected the failure message to be recorded")
		}
		if len(push.events) != 0 {
			t.Fatalf("a requeue must not push a terminal event, got %v", push.events)
		}
	})

	t.Run("exhausted attempts fail terminally with one notification", func(t *testing.T) {
		// Arrange
		var saved *model.CaptionJob
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) { return queuedJob(3), nil },
			SaveFunc: func(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
				saved = job
				return nil
			},
		}
		var lastStatus model.CaptionStatus
		media := &stubMedia{
			FindFilesFunc: mediaFiles,
			UpdateCaptionStatusFunc: func(ctx context.Context, tx repository.Tx, id string, status model.CaptionStatus, force bool) error {
				lastStatus = status
				return nil
			},
		}
		tr := &stubTranscriber{TranscribeFunc: func(ctx context.Context, localPath string) ([]model.CaptionSegment, error) {
			return nil, errors.New("service unavailable")
		}}
		push := &stubPush{}
		w := NewCaptionWorker(workerConfig(), jobs, media, tr, &stubCounter{}, push, testLogger())

		// Act
		w.tryDispatch(context.Background())
		w.wg.Wait()

		// Assert
		if saved == nil || saved.Status != model.CaptionJobStatusFailed {
			t.Fatalf("expected failed job, got %+v", saved)
		}
		if lastStatus != model.CaptionStatusFailed {
			t.Fatalf("expected failed item status, got %s", lastStatus)
		}
		if len(push.events) != 1 {
			t.Fatalf("expected exactly one terminal push, got %d", len(push.events))
		}
	})

	t.Run("empty transcription is a valid completion", func(t *testing.T) {
		// Arrange
		var saved *model.CaptionJob
		jobs := &stubJobs{
			ClaimNextQueuedFunc: func(ctx context.Context) (*model.CaptionJob, error) { return queuedJob(1), nil },
			SaveFunc: func(ctx context.Context, tx repository.Tx, job *model.CaptionJob) error {
				saved = job
				return nil
			},
		}
		media := &stubMedia{FindFilesFunc: mediaFiles}
		tr := &stubTranscriber{TranscribeFunc: func(ctx context.Context, localPath string) ([]model.CaptionSegment, error) {
			return nil, nil
		}}
		w := NewCaptionWorker(workerConfig(), jobs, media, tr, &stubCounter{}, &stubPush{}, testLogger())

		// Act
		w.tryDispatch(context.Background())
		w.wg.Wait()

		// Assert
		if saved == nil || saved.Status != model.CaptionJobStatusCompleted {
			t.Fatalf("expected completed job, got %+v", saved)
		}
		if len(saved.Segments) != 0 {
			t.Fatalf("expected no segments, got %+v", saved.Segments)
		}
	})
}
