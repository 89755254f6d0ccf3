// Package mute suppresses automated replies per conversation, time-bounded
// or indefinite. Entries persist across restarts; expiry is evaluated lazily
// on access and swept periodically.
package mute

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/store"
)

const keyPrefix = "mute:"

// Entry is one mute record. A nil Until means indefinite.
type Entry struct {
	Until *time.Time `json:"until"`
}

func (e Entry) expired(now time.Time) bool {
	return e.Until != nil && e.Until.Before(now)
}

// Registry tracks muted conversations, backed by the KV medium.
type Registry struct {
	mu      sync.Mutex
	kv      store.KV
	entries map[string]Entry
}

// NewRegistry loads persisted mute entries from the store.
func NewRegistry(kv store.KV) *Registry {
	r := &Registry{kv: kv, entries: make(map[string]Entry)}

	keys, err := kv.ListKeys()
	if err != nil {
		slog.Warn("mute registry: list keys failed", "error", err)
		return r
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, keyPrefix) {
			continue
		}
		data, err := kv.Get(k)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		r.entries[strings.TrimPrefix(k, keyPrefix)] = e
	}
	return r
}

// Mute suppresses a conversation for d; d <= 0 means indefinitely.
func (r *Registry) Mute(key string, d time.Duration) {
	var e Entry
	if d > 0 {
		until := time.Now().Add(d)
		e.Until = &until
	}

	r.mu.Lock()
	r.entries[key] = e
	r.mu.Unlock()

	r.persist(key, &e)
}

// Unmute lifts a conversation's mute. No-op when not muted.
func (r *Registry) Unmute(key string) {
	r.mu.Lock()
	_, existed := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if existed {
		r.persist(key, nil)
	}
}

// IsMuted reports whether a conversation is currently muted.
// An expired entry is treated as absent and removed.
func (r *Registry) IsMuted(key string) bool {
	muted, _ := r.Status(key)
	return muted
}

// Status returns the mute state and, for bounded mutes, the expiry.
func (r *Registry) Status(key string) (bool, *time.Time) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if ok && e.expired(time.Now()) {
		delete(r.entries, key)
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, e.Until
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Registry) Sweep() int {
	now := time.Now()

	r.mu.Lock()
	var expired []string
	for k, e := range r.entries {
		if e.expired(now) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		delete(r.entries, k)
	}
	r.mu.Unlock()

	for _, k := range expired {
		r.persist(k, nil)
	}
	return len(expired)
}

// RunSweeper sweeps on the given interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("mute sweep", "expired", n)
			}
		}
	}
}

// persist writes or deletes the durable entry. Persistence is best-effort:
// a write failure costs durability across restarts, not correctness now.
func (r *Registry) persist(key string, e *Entry) {
	storeKey := keyPrefix + key
	if e == nil {
		if err := r.kv.Delete(storeKey); err != nil {
			slog.Warn("mute registry: delete failed", "key", key, "error", err)
		}
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.kv.Put(storeKey, data); err != nil {
		slog.Warn("mute registry: persist failed", "key", key, "error", err)
	}
}
