package experiments

import (
	"sort"
	"sync"
)

// notStarted is the index reported for rotations that have never advanced.
const notStarted = -1

// Registry holds round-robin rotation state for experiments: one global index
// per experiment plus one index per (experiment, user) pair.
//
// State lives as long as the registry. Only Selector advances it; readers use
// Current and CurrentForUser.
type Registry struct {
	mu       sync.Mutex
	indices  map[string]int
	sessions map[string]map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		indices:  make(map[string]int),
		sessions: make(map[string]map[string]int),
	}
}

// advance moves the experiment's global index one step modulo n and returns
// the new index.
func (r *Registry) advance(experimentID string, n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.indices[experimentID]
	if !ok {
		current = notStarted
	}
	next := (current + 1) % n
	r.indices[experimentID] = next
	return next
}

// advanceForUser is advance scoped to a single user's rotation.
func (r *Registry) advanceForUser(experimentID, userID string, n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.sessions[experimentID]
	if !ok {
		users = make(map[string]int)
		r.sessions[experimentID] = users
	}
	current, ok := users[userID]
	if !ok {
		current = notStarted
	}
	next := (current + 1) % n
	users[userID] = next
	return next
}

// Current returns the last global index selected for the experiment, or -1.
func (r *Registry) Current(experimentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.indices[experimentID]; ok {
		return idx
	}
	return notStarted
}

// CurrentForUser returns the last index selected for the user, or -1.
func (r *Registry) CurrentForUser(experimentID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.sessions[experimentID][userID]; ok {
		return idx
	}
	return notStarted
}

// Experiments lists experiment ids that have rotation state, sorted.
func (r *Registry) Experiments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.indices)+len(r.sessions))
	for id := range r.indices {
		seen[id] = struct{}{}
	}
	for id := range r.sessions {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
