package cancel

import "sync"

// Registry is the process-wide set of job IDs with a pending cancellation
// request. The flag is advisory: long-running stages poll it at stage
// boundaries and call Acknowledge once they have acted on it, so entries
// never outlive the job that observed them.
type Registry struct {
	mu    sync.Mutex
	flags map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]struct{})}
}

// Cancel marks a job for cancellation. Idempotent.
func (r *Registry) Cancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[jobID] = struct{}{}
}

// IsCancelled reports membership without clearing the flag.
func (r *Registry) IsCancelled(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flags[jobID]
	return ok
}

// Acknowledge removes the flag once a consumer has acted on it.
func (r *Registry) Acknowledge(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, jobID)
}
