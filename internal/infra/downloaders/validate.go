package downloaders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"mediavault/internal/domain"
	"mediavault/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// nullRatioLimit is the corruption heuristic: a stream that is mostly zero
// bytes came from a truncated or silent-failed fetch, not real audio.
const nullRatioLimit = 0.85

const sampleBytes = 256 * 1024

// ValidateAudioFile checks a downloaded audio file for the failure modes
// streaming sources exhibit: truncated transfers, HTML error pages saved as
// media, and zero-filled streams.
func ValidateAudioFile(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat downloaded file: %w", err)
	}
	if info.Size() < minBytes {
		return fmt.Errorf("%w: file is %d bytes, minimum %d", domain.ErrCorruptedDownload, info.Size(), minBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open downloaded file: %w", err)
	}
	defer f.Close()

	sample := make([]byte, sampleBytes)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("read downloaded file: %w", err)
	}
	sample = sample[:n]

	if !hasAudioSignature(sample) {
		return fmt.Errorf("%w: no recognizable audio signature", domain.ErrCorruptedDownload)
	}

	nulls := 0
	for _, b := range sample {
		if b == 0 {
			nulls++
		}
	}
	if ratio := float64(nulls) / float64(len(sample)); ratio > nullRatioLimit {
		return fmt.Errorf("%w: null-byte ratio %.2f exceeds %.2f", domain.ErrCorruptedDownload, ratio, nullRatioLimit)
	}
	return nil
}

func hasAudioSignature(b []byte) bool {
	if len(b) < 12 {
		return false
	}
	switch {
	case bytes.HasPrefix(b, []byte("ID3")): // mp3 with ID3 tag
		return true
	case b[0] == 0xFF && b[1]&0xE0 == 0xE0: // raw mpeg audio frame sync
		return true
	case bytes.HasPrefix(b, []byte("fLaC")):
		return true
	case bytes.HasPrefix(b, []byte("OggS")):
		return true
	case bytes.HasPrefix(b, []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return true
	case bytes.Equal(b[4:8], []byte("ftyp")): // mp4/m4a container
		return true
	}
	return false
}

var _ adapter.PlatformDownloader = (*ValidatingDownloader)(nil)

// ValidatingDownloader runs content validation after its primary downloader
// and falls back to the alternate implementation exactly once when the
// primary's output fails the integrity checks.
type ValidatingDownloader struct {
	primary   adapter.PlatformDownloader
	alternate adapter.PlatformDownloader
	minBytes  int64
	log       *zerolog.Logger
}

func NewValidating(primary, alternate adapter.PlatformDownloader, minBytes int64, logger *zerolog.Logger) *ValidatingDownloader {
	compLog := logger.With().Str("component", "ValidatingDownloader").Logger()
	return &ValidatingDownloader{primary: primary, alternate: alternate, minBytes: minBytes, log: &compLog}
}

func (v *ValidatingDownloader) Download(ctx context.Context, url string, onProgress adapter.ProgressFunc) (*adapter.DownloadResult, error) {
	res, err := v.downloadAndCheck(ctx, v.primary, url, onProgress)
	if err == nil {
		return res, nil
	}
	if v.alternate == nil || !errors.Is(err, domain.ErrCorruptedDownload) {
		return nil, err
	}

	v.log.Warn().Err(err).Str("url", url).Msg("primary download failed validation; trying alternate")
	res, altErr := v.downloadAndCheck(ctx, v.alternate, url, onProgress)
	if altErr != nil {
		// report the original corruption, it is the user-relevant failure
		return nil, fmt.Errorf("alternate downloader also failed (%v): %w", altErr, err)
	}
	return res, nil
}

func (v *ValidatingDownloader) downloadAndCheck(ctx context.Context, d adapter.PlatformDownloader, url string, onProgress adapter.ProgressFunc) (*adapter.DownloadResult, error) {
	res, err := d.Download(ctx, url, onProgress)
	if err != nil {
		return nil, err
	}
	if err := ValidateAudioFile(res.FilePath, v.minBytes); err != nil {
		discard(res)
		return nil, err
	}
	return res, nil
}

// discard drops a rejected download, scratch directory and sidecars included.
func discard(res *adapter.DownloadResult) {
	if res.ScratchDir != "" {
		os.RemoveAll(res.ScratchDir)
		return
	}
	os.Remove(res.FilePath)
}
