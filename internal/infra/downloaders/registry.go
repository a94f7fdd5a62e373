package downloaders

import (
	"fmt"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
)

// Registry maps platform tags to their downloader implementation.
type Registry struct {
	byPlatform map[model.Platform]adapter.PlatformDownloader
}

func NewRegistry() *Registry {
	return &Registry{byPlatform: make(map[model.Platform]adapter.PlatformDownloader)}
}

func (r *Registry) Register(p model.Platform, d adapter.PlatformDownloader) {
	r.byPlatform[p] = d
}

func (r *Registry) Get(p model.Platform) (adapter.PlatformDownloader, error) {
	d, ok := r.byPlatform[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, p)
	}
	return d, nil
}
