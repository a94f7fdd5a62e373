package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/infra/metrics"
)

var _ adapter.Transcriber = (*WhisperTranscriber)(nil)

// WhisperTranscriber calls a Whisper-compatible transcription endpoint
// using the verbose JSON response format for per-segment timestamps.
type WhisperTranscriber struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	model  string
	client *http.Client
}

func NewWhisperTranscriber(apiKey, base, model string, timeout time.Duration) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("whisper api key empty")
	}
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperTranscriber{
		apiKey: apiKey,
		base:   strings.TrimSuffix(base, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type whisperSegment struct {
	Start        json.RawMessage `json:"start"`
	End          json.RawMessage `json:"end"`
	Text         string          `json:"text"`
	NoSpeechProb float64         `json:"no_speech_prob"`
}

type whisperResponse struct {
	Segments []whisperSegment `json:"segments"`
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, localPath string) ([]model.CaptionSegment, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open media for transcription: %w", err)
	}
	defer f.Close()

	// the multipart body is streamed through a pipe so the media file is
	// never held in memory whole
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(localPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(fmt.Errorf("stream media for transcription: %w", err))
			return
		}
		_ = mw.WriteField("model", w.model)
		_ = mw.WriteField("response_format", "verbose_json")
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.base+"/audio/transcriptions", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := w.client.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveAICall("transcription", latency, false)
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveAICall("transcription", latency, false)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	metrics.ObserveAICall("transcription", latency, true)

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}

	segments := make([]model.CaptionSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		startSec, err := parseTimestamp(s.Start)
		if err != nil {
			return nil, fmt.Errorf("segment start: %w", err)
		}
		endSec, err := parseTimestamp(s.End)
		if err != nil {
			return nil, fmt.Errorf("segment end: %w", err)
		}
		if endSec < startSec {
			endSec = startSec
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, model.CaptionSegment{
			StartSeconds: startSec,
			EndSeconds:   endSec,
			Text:         text,
			Confidence:   1 - s.NoSpeechProb,
		})
	}
	// empty is valid: media with no vocal content
	return segments, nil
}

// parseTimestamp normalizes a segment timestamp to decimal total seconds.
// Accepts a JSON number or a "mm:ss.fff" / "hh:mm:ss.fff" string; some
// transcription backends emit the latter.
func parseTimestamp(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing timestamp")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative timestamp %f", num)
		}
		return num, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unparseable timestamp %s", raw)
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("unparseable timestamp %q", s)
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("unparseable timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}
