package core

import "sync"

// Registry is the unordered collection of RunningState, addressable by
// (taskId, runId). It is the single owner of all mutation to the in-flight
// job set; every other component reaches it only through these methods,
// same as scheduler.ThreadSafeQueue wraps its heap with one mutex rather
// than exposing the underlying slice.
type Registry struct {
	mu      sync.Mutex
	entries map[key]*RunningState
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[key]*RunningState)}
}

// Add inserts state. Callers are responsible for calling recordCapacity
// immediately beforehand (spec.md §4.4 step 5, §5 ordering guarantee a).
func (r *Registry) Add(s *RunningState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{s.TaskID, s.RunID}] = s
}

// Remove deletes and returns the entry for (taskID, runID), or nil if absent.
func (r *Registry) Remove(taskID string, runID int64) *RunningState {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{taskID, runID}
	s, ok := r.entries[k]
	if !ok {
		return nil
	}
	delete(r.entries, k)
	return s
}

// Find looks up (taskID, runID) without removing it.
func (r *Registry) Find(taskID string, runID int64) *RunningState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key{taskID, runID}]
}

// Snapshot returns a point-in-time copy of all running states.
func (r *Registry) Snapshot() []*RunningState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RunningState, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s)
	}
	return out
}

// Size returns the current entry count.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
