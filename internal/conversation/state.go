package conversation

import (
	"sync"
	"time"
)

// State is the ephemeral per-conversation aggregate. Everything short-lived
// the pipeline tracks for one conversation lives here, so clearing a
// conversation can never miss a stray map entry. Rebuilt empty after restart.
type State struct {
	Pending  *PendingTicket
	Dedup    []DedupRecord
	Resident *ResidentRef
}

// Registry owns all conversation states, keyed by conversation key, and
// serializes mutations per key.
type Registry struct {
	mu     sync.Mutex
	states map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state State
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*entry)}
}

func (r *Registry) entryFor(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.states[key]
	if !ok {
		e = &entry{}
		r.states[key] = e
	}
	return e
}

// Do runs fn with exclusive access to the conversation's state.
// All reads and mutations of ephemeral state go through here.
func (r *Registry) Do(key string, fn func(*State)) {
	e := r.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
}

// Forget drops a conversation's ephemeral state entirely (explicit reset).
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// SweepPending drops pending tickets older than maxAge across all
// conversations and returns how many were dropped.
func (r *Registry) SweepPending(maxAge time.Duration) int {
	r.mu.Lock()
	keys := make([]string, 0, len(r.states))
	for k := range r.states {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	dropped := 0
	cutoff := time.Now().Add(-maxAge)
	for _, k := range keys {
		r.Do(k, func(s *State) {
			if s.Pending != nil && s.Pending.CreatedAt.Before(cutoff) {
				s.Pending = nil
				dropped++
			}
		})
	}
	return dropped
}
