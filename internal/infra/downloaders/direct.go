package downloaders

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mediavault/internal/config"
	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
)

var _ adapter.PlatformDownloader = (*DirectDownloader)(nil)

// DirectDownloader fetches a plain HTTP(S) URL into the scratch directory.
// Also serves as the alternate implementation when a streaming-audio
// download fails content validation.
type DirectDownloader struct {
	cfg    config.DownloadConfig
	client *http.Client
}

func NewDirect(cfg config.DownloadConfig) *DirectDownloader {
	return &DirectDownloader{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (d *DirectDownloader) Download(ctx context.Context, url string, onProgress adapter.ProgressFunc) (*adapter.DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, domain.ErrMediaNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrMediaPrivate
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: source returned %d", domain.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: source returned %d", domain.ErrValidation, resp.StatusCode)
	}

	filename := filenameFor(resp, url)
	dir, err := os.MkdirTemp(d.cfg.ScratchDir, "mediavault-dl-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	dest := filepath.Join(dir, filename)
	f, err := os.Create(dest)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create download target: %w", err)
	}

	var written int64
	buf := make([]byte, 128*1024)
	total := resp.ContentLength
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.RemoveAll(dir)
				return nil, fmt.Errorf("write download: %w", werr)
			}
			written += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(written) / float64(total) * 100)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.RemoveAll(dir)
			return nil, fmt.Errorf("%w: %v", domain.ErrTransient, rerr)
		}
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if onProgress != nil {
		onProgress(100)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimeForExt(strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."))
	}

	return &adapter.DownloadResult{
		FilePath:   dest,
		ScratchDir: dir,
		Filename:   filename,
		Title:      strings.TrimSuffix(filename, filepath.Ext(filename)),
		MimeType:   contentType,
		SizeBytes:  written,
		Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		Metadata: model.PlatformMetadata{Direct: &model.DirectMetadata{
			Filename:    filename,
			ContentType: contentType,
			SizeBytes:   written,
		}},
	}, nil
}

func filenameFor(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "/" || name == "." {
		return "download.bin"
	}
	return name
}
