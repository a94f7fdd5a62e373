package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediavault/internal/config"
	"mediavault/internal/domain"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// fakeBackend implements the credential + object API the uploader talks to.
type fakeBackend struct {
	mu            sync.Mutex
	credIssued    int
	putAttempts   int
	failPutsFirst int // respond 500 to the first N PUTs
	stored        map[string][]byte
	deleted       []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stored: make(map[string][]byte)}
}

func (f *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/v1/credentials", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.credIssued++
		key := fmt.Sprintf("owner/file-%d", f.credIssued)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"upload_url":%q,"key":%q,"token":"tok"}`, srv.URL+"/put/"+key, key)
	})
	mux.HandleFunc("/put/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/put/"):]
		f.mu.Lock()
		f.putAttempts++
		fail := f.putAttempts <= f.failPutsFirst
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		f.mu.Lock()
		f.stored[key] = buf.Bytes()
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/objects/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			f.mu.Lock()
			f.deleted = append(f.deleted, r.URL.Path)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testUploader(srv *httptest.Server) *Uploader {
	cfg := config.StorageConfig{
		Endpoint:       srv.URL,
		AccessKey:      "test-key",
		Bucket:         "media",
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		AttemptTimeout: 5 * time.Second,
		StallTimeout:   2 * time.Second,
	}
	return NewUploader(cfg, newTestLogger())
}

func tempFile(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "payload.bin")
	data := bytes.Repeat([]byte{0xAB}, size)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUploader(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on third attempt after transient failures", func(t *testing.T) {
		backend := newFakeBackend()
		backend.failPutsFirst = 2
		srv := backend.server(t)
		u := testUploader(srv)

		obj, err := u.Upload(ctx, tempFile(t, 4096), "clip.mp3", "user-1", nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if backend.putAttempts != 3 {
			t.Errorf("put attempts = %d, want 3", backend.putAttempts)
		}
		// both failed attempts cleaned up their partial objects
		if len(backend.deleted) != 2 {
			t.Errorf("partial deletes = %d, want 2", len(backend.deleted))
		}
		if len(backend.stored) != 1 {
			t.Errorf("stored objects = %d, want exactly 1", len(backend.stored))
		}
		if obj.Key == "" || obj.URL == "" {
			t.Errorf("incomplete stored object: %+v", obj)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		backend := newFakeBackend()
		backend.failPutsFirst = 10
		srv := backend.server(t)
		u := testUploader(srv)

		_, err := u.Upload(ctx, tempFile(t, 1024), "clip.mp3", "user-1", nil)
		if !errors.Is(err, domain.ErrIngestionFailed) {
			t.Fatalf("want ErrIngestionFailed, got %v", err)
		}
		if backend.putAttempts != 3 {
			t.Errorf("put attempts = %d, want 3", backend.putAttempts)
		}
	})

	t.Run("auth rejection is not retried", func(t *testing.T) {
		mux := http.NewServeMux()
		calls := 0
		mux.HandleFunc("/v1/credentials", func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusForbidden)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		u := testUploader(srv)

		_, err := u.Upload(ctx, tempFile(t, 1024), "clip.mp3", "user-1", nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("want ErrValidation, got %v", err)
		}
		if calls != 1 {
			t.Errorf("credential calls = %d, want 1 (no retry)", calls)
		}
	})

	t.Run("cdn base wins url resolution", func(t *testing.T) {
		backend := newFakeBackend()
		srv := backend.server(t)
		u := testUploader(srv)
		u.cfg.CDNBase = "https://cdn.example.com/"

		obj, err := u.Upload(ctx, tempFile(t, 512), "clip.mp3", "user-1", nil)
		if err != nil {
			t.Fatal(err)
		}
		want := "https://cdn.example.com/" + obj.Key
		if obj.URL != want {
			t.Errorf("url = %q, want %q", obj.URL, want)
		}
	})

	t.Run("rejects empty files before any network work", func(t *testing.T) {
		backend := newFakeBackend()
		srv := backend.server(t)
		u := testUploader(srv)

		_, err := u.Upload(ctx, tempFile(t, 0), "clip.mp3", "user-1", nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("want ErrValidation, got %v", err)
		}
		if backend.credIssued != 0 {
			t.Error("credential should not be requested for invalid input")
		}
	})
}

func TestProgressReader(t *testing.T) {
	t.Run("reports whole-percent advances monotonically", func(t *testing.T) {
		data := bytes.Repeat([]byte{1}, 1000)
		var reports []float64
		pr := newProgressReader(bytes.NewReader(data), 1000, func(p float64) {
			reports = append(reports, p)
		})
		buf := make([]byte, 100)
		for {
			if _, err := pr.Read(buf); err != nil {
				break
			}
		}
		if len(reports) == 0 {
			t.Fatal("expected progress reports")
		}
		prev := -1.0
		for _, p := range reports {
			if p < prev {
				t.Fatalf("progress regressed: %f after %f", p, prev)
			}
			prev = p
		}
		if last := reports[len(reports)-1]; last != 100 {
			t.Errorf("final report = %f, want 100", last)
		}
	})

	t.Run("sub-percent reads are coalesced", func(t *testing.T) {
		data := bytes.Repeat([]byte{1}, 100000)
		count := 0
		pr := newProgressReader(bytes.NewReader(data), 100000, func(p float64) { count++ })
		buf := make([]byte, 10) // 0.01% per read
		for {
			if _, err := pr.Read(buf); err != nil {
				break
			}
		}
		// 10000 reads must not produce anywhere near 10000 callbacks
		if count > 200 {
			t.Errorf("callback count = %d, throttling not effective", count)
		}
	})
}
