package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"mediavault/internal/config"
	"mediavault/internal/domain"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.ObjectStorage = (*Uploader)(nil)

// Uploader streams local files to the storage backend. Each attempt runs
// under its own wall-clock timeout and a stall watchdog; transient failures
// are retried with doubling backoff up to cfg.MaxAttempts. A failed attempt
// deletes its partial object before the next one starts.
type Uploader struct {
	cfg    config.StorageConfig
	client *http.Client
	log    *zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewUploader(cfg config.StorageConfig, logger *zerolog.Logger) *Uploader {
	compLog := logger.With().Str("component", "Uploader").Logger()
	return &Uploader{
		cfg:    cfg,
		client: &http.Client{},
		log:    &compLog,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type uploadCredential struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	Token     string `json:"token"`
}

func (u *Uploader) Upload(ctx context.Context, localPath, desiredName, ownerNamespace string, onProgress adapter.ProgressFunc) (*adapter.StoredObject, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat upload source: %v", domain.ErrValidation, err)
	}
	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: refusing to upload empty file", domain.ErrValidation)
	}

	var lastErr error
	for attempt := 1; attempt <= u.cfg.MaxAttempts; attempt++ {
		obj, err := u.uploadOnce(ctx, localPath, desiredName, ownerNamespace, size, onProgress)
		if err == nil {
			metrics.IncUploadAttempt("success")
			metrics.AddUploadBytes(size)
			return obj, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrTransient) {
			metrics.IncUploadAttempt("permanent_failure")
			return nil, err
		}
		metrics.IncUploadAttempt("transient_failure")
		u.log.Warn().Err(err).Int("attempt", attempt).Msg("upload attempt failed")

		if attempt < u.cfg.MaxAttempts {
			backoff := u.cfg.BackoffBase << (attempt - 1)
			if err := u.sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
			}
		}
	}
	return nil, fmt.Errorf("%w: upload exhausted %d attempts: %v", domain.ErrIngestionFailed, u.cfg.MaxAttempts, lastErr)
}

func (u *Uploader) uploadOnce(ctx context.Context, localPath, desiredName, ownerNamespace string, size int64, onProgress adapter.ProgressFunc) (*adapter.StoredObject, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, u.cfg.AttemptTimeout)
	defer cancel()

	cred, err := u.requestCredential(attemptCtx, desiredName, ownerNamespace)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open upload source: %v", domain.ErrValidation, err)
	}
	defer f.Close()

	pr := newProgressReader(f, size, onProgress)

	// Stall watchdog: aborts the attempt when no bytes move for the stall
	// window. Distinct from the per-attempt timeout, which still fires for
	// a slow-but-moving stream.
	watchCtx, stopWatch := context.WithCancel(attemptCtx)
	defer stopWatch()
	stalled := make(chan struct{})
	go func() {
		t := time.NewTicker(u.cfg.StallTimeout / 4)
		defer t.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-t.C:
				if pr.idleFor() > u.cfg.StallTimeout {
					close(stalled)
					cancel()
					return
				}
			}
		}
	}()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPut, cred.UploadURL, pr)
	if err != nil {
		return nil, fmt.Errorf("%w: build upload request: %v", domain.ErrValidation, err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.client.Do(req)
	if err != nil {
		select {
		case <-stalled:
			err = fmt.Errorf("no bytes sent for %s", u.cfg.StallTimeout)
		default:
		}
		u.cleanupPartial(cred.Key)
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.cleanupPartial(cred.Key)
		return nil, classifyStatus(resp.StatusCode, "upload")
	}

	return &adapter.StoredObject{Key: cred.Key, URL: u.resolveURL(cred.Key)}, nil
}

func (u *Uploader) requestCredential(ctx context.Context, desiredName, ownerNamespace string) (*uploadCredential, error) {
	body := fmt.Sprintf(`{"bucket":%q,"name":%q,"namespace":%q}`, u.cfg.Bucket, desiredName, ownerNamespace)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.Endpoint+"/v1/credentials", strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build credential request: %v", domain.ErrValidation, err)
	}
	req.Header.Set("Authorization", "Bearer "+u.cfg.AccessKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, classifyStatus(resp.StatusCode, "credential")
	}

	var cred uploadCredential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("%w: decode credential: %v", domain.ErrTransient, err)
	}
	if cred.UploadURL == "" || cred.Key == "" {
		return nil, fmt.Errorf("%w: credential response missing fields", domain.ErrValidation)
	}
	return &cred, nil
}

// Delete removes a stored object. Compensating action; missing keys are
// treated as already deleted.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/v1/objects/%s/%s", u.cfg.Endpoint, u.cfg.Bucket, url.PathEscape(key)), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+u.cfg.AccessKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return classifyNetErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return classifyStatus(resp.StatusCode, "delete")
}

// cleanupPartial removes the object a failed attempt may have created.
// Best-effort inside the layer; the retry that follows gets a fresh key.
func (u *Uploader) cleanupPartial(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := u.Delete(ctx, key); err != nil {
		u.log.Warn().Err(err).Str("key", key).Msg("partial object cleanup failed")
	}
}

func (u *Uploader) resolveURL(key string) string {
	if u.cfg.CDNBase != "" {
		return strings.TrimSuffix(u.cfg.CDNBase, "/") + "/" + key
	}
	return fmt.Sprintf("%s/v1/objects/%s/%s", u.cfg.Endpoint, u.cfg.Bucket, key)
}

func classifyNetErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// connection resets and refusals surface as *url.Error without timeout
	return fmt.Errorf("%w: %v", domain.ErrTransient, err)
}

func classifyStatus(code int, op string) error {
	if code >= 500 || code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned %d", domain.ErrTransient, op, code)
	}
	return fmt.Errorf("%w: %s rejected with %d", domain.ErrValidation, op, code)
}
