package adapter

import "context"

// ProgressFunc receives fractional progress in [0,100]. Implementations
// must tolerate being called from another goroutine and never block.
type ProgressFunc func(percent float64)

// StoredObject describes a durably written object.
type StoredObject struct {
	Key string
	URL string
}

// ObjectStorage uploads local files to durable storage. Upload retries
// transient failures internally; Delete is the compensating action and
// must be safe to call for keys that no longer exist.
type ObjectStorage interface {
	Upload(ctx context.Context, localPath, desiredName, ownerNamespace string, onProgress ProgressFunc) (*StoredObject, error)
	Delete(ctx context.Context, key string) error
}
