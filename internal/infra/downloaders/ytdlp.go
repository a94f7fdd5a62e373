package downloaders

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"mediavault/internal/config"
	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.PlatformDownloader = (*YtDlpDownloader)(nil)

// YtDlpDownloader shells out to yt-dlp. Each download gets its own scratch
// subdirectory; the media file is discovered afterwards by filtering out
// sidecar metadata and thumbnail files, and the --write-info-json sidecar
// is parsed into the platform metadata union.
type YtDlpDownloader struct {
	cfg      config.DownloadConfig
	platform model.Platform
	log      *zerolog.Logger
}

func NewYtDlp(cfg config.DownloadConfig, platform model.Platform, logger *zerolog.Logger) *YtDlpDownloader {
	compLog := logger.With().Str("component", "YtDlpDownloader").Str("platform", string(platform)).Logger()
	return &YtDlpDownloader{cfg: cfg, platform: platform, log: &compLog}
}

var dlProgressRe = regexp.MustCompile(`\[download\]\s+([0-9.]+)%`)

func (d *YtDlpDownloader) Download(ctx context.Context, url string, onProgress adapter.ProgressFunc) (*adapter.DownloadResult, error) {
	dir, err := os.MkdirTemp(d.cfg.ScratchDir, "mediavault-dl-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	args := []string{
		"--newline",
		"--no-playlist",
		"--write-info-json",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
	}
	if d.platform.StreamingAudio() {
		args = append(args, "-x", "--audio-format", "mp3")
	}
	args = append(args, url)

	cmd := exec.CommandContext(runCtx, d.cfg.YtDlpPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start yt-dlp: %v", domain.ErrTransient, err)
	}

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		if m := dlProgressRe.FindStringSubmatch(sc.Text()); m != nil && onProgress != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				onProgress(pct)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		os.RemoveAll(dir)
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: download timed out after %s", domain.ErrTransient, d.cfg.Timeout)
		}
		return nil, mapYtDlpFailure(stderr.String())
	}

	mediaPath, infoPath, err := locateDownload(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	res, err := d.buildResult(mediaPath, infoPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	res.ScratchDir = dir
	if onProgress != nil {
		onProgress(100)
	}
	return res, nil
}

// mapYtDlpFailure translates the tool's failure modes into domain errors
// with user-presentable messages.
func mapYtDlpFailure(stderr string) error {
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "sign in to confirm your age") || strings.Contains(low, "age-restricted"):
		return domain.ErrAgeRestricted
	case strings.Contains(low, "private video") || strings.Contains(low, "this track is private"):
		return domain.ErrMediaPrivate
	case strings.Contains(low, "http error 404") || strings.Contains(low, "video unavailable") || strings.Contains(low, "not found"):
		return domain.ErrMediaNotFound
	case strings.Contains(low, "unsupported url") || strings.Contains(low, "no video formats"):
		return domain.ErrNotStreamable
	default:
		return fmt.Errorf("%w: yt-dlp: %s", domain.ErrTransient, firstLine(stderr))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// locateDownload finds the media file and the info-json sidecar in the
// scratch subdirectory, ignoring thumbnails and partial files.
func locateDownload(dir string) (mediaPath, infoPath string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("scan scratch dir: %w", err)
	}
	var bestSize int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".info.json") {
			infoPath = filepath.Join(dir, name)
			continue
		}
		if isSidecar(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			bestSize = info.Size()
			mediaPath = filepath.Join(dir, name)
		}
	}
	if mediaPath == "" {
		return "", "", fmt.Errorf("%w: no media file produced", domain.ErrNotStreamable)
	}
	return mediaPath, infoPath, nil
}

func isSidecar(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jpg", ".jpeg", ".png", ".webp", ".part", ".ytdl", ".description":
		return true
	}
	return false
}

type ytDlpInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Channel     string  `json:"channel"`
	Uploader    string  `json:"uploader"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail"`
	ViewCount   int64   `json:"view_count"`
	UploadDate  string  `json:"upload_date"`
	Genre       string  `json:"genre"`
}

func (d *YtDlpDownloader) buildResult(mediaPath, infoPath string) (*adapter.DownloadResult, error) {
	stat, err := os.Stat(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("stat download: %w", err)
	}

	var info ytDlpInfo
	if infoPath != "" {
		if b, err := os.ReadFile(infoPath); err == nil {
			if err := json.Unmarshal(b, &info); err != nil {
				d.log.Warn().Err(err).Msg("info sidecar unreadable; continuing without it")
			}
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(mediaPath)), ".")
	res := &adapter.DownloadResult{
		FilePath:    mediaPath,
		Filename:    filepath.Base(mediaPath),
		Title:       info.Title,
		Description: info.Description,
		MimeType:    mimeForExt(ext),
		SizeBytes:   stat.Size(),
		Format:      ext,
	}

	switch d.platform {
	case model.PlatformSoundCloud:
		res.Metadata = model.PlatformMetadata{SoundCloud: &model.SoundCloudMetadata{
			TrackID:         info.ID,
			Title:           info.Title,
			Artist:          coalesce(info.Uploader, info.Channel),
			DurationSeconds: info.Duration,
			ArtworkURL:      info.Thumbnail,
			Genre:           info.Genre,
		}}
	default:
		res.Metadata = model.PlatformMetadata{YouTube: &model.YouTubeMetadata{
			VideoID:         info.ID,
			Title:           info.Title,
			Channel:         coalesce(info.Channel, info.Uploader),
			DurationSeconds: info.Duration,
			ThumbnailURL:    info.Thumbnail,
			ViewCount:       info.ViewCount,
			UploadDate:      info.UploadDate,
		}}
	}
	return res, nil
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func mimeForExt(ext string) string {
	switch ext {
	case "mp3":
		return "audio/mpeg"
	case "m4a":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "ogg", "opus":
		return "audio/ogg"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
