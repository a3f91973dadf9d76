package action

import "sync"

// Registry is a minimal host-side action registry holding the current
// read-resource action. The datastore plugin fetches the action from here
// and installs its decorated replacement.
type Registry struct {
	mu   sync.RWMutex
	read ReadAction
}

// NewRegistry creates a registry seeded with the host's read action.
func NewRegistry(read ReadAction) *Registry {
	return &Registry{read: read}
}

// ReadAction returns the currently registered read action.
func (r *Registry) ReadAction() ReadAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.read
}

// ReplaceReadAction swaps in a new read action.
func (r *Registry) ReplaceReadAction(a ReadAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = a
}
