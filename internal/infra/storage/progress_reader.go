package storage

import (
	"io"
	"sync/atomic"
	"time"

	"mediavault/internal/domain/ports/adapter"
)

// Progress callbacks fire only when the transfer advanced a whole percent
// or the throttle interval elapsed, so a fast upload cannot flood the
// broadcaster.
const progressInterval = 500 * time.Millisecond

type progressReader struct {
	r          io.Reader
	total      int64
	sent       int64
	onProgress adapter.ProgressFunc

	lastPercent int
	lastEmit    time.Time
	lastAdvance atomic.Int64 // unix nanos of the last non-empty read
}

func newProgressReader(r io.Reader, total int64, onProgress adapter.ProgressFunc) *progressReader {
	pr := &progressReader{r: r, total: total, onProgress: onProgress, lastPercent: -1}
	pr.lastAdvance.Store(time.Now().UnixNano())
	return pr
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		pr.lastAdvance.Store(time.Now().UnixNano())
		pr.emit()
	}
	return n, err
}

func (pr *progressReader) emit() {
	if pr.onProgress == nil || pr.total <= 0 {
		return
	}
	percent := int(float64(pr.sent) / float64(pr.total) * 100)
	now := time.Now()
	if percent > pr.lastPercent || now.Sub(pr.lastEmit) >= progressInterval {
		pr.lastPercent = percent
		pr.lastEmit = now
		pr.onProgress(float64(pr.sent) / float64(pr.total) * 100)
	}
}

// idleFor reports how long the stream has gone without moving bytes.
func (pr *progressReader) idleFor() time.Duration {
	return time.Duration(time.Now().UnixNano() - pr.lastAdvance.Load())
}
