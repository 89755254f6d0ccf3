// Package debounce accumulates rapid-fire inbound messages per conversation
// and hands them to the processing stage only after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Batcher is a per-key debouncing queue. Each Enqueue (re)arms the key's
// single-shot timer; when the quiet period elapses without new input, the
// accumulated items are handed to the process func exactly once, in arrival
// order. At most one timer exists per key, and the process func is never
// invoked concurrently for the same key.
type Batcher[T any] struct {
	mu      sync.Mutex
	quiet   time.Duration
	process func(key string, items []T)
	pending map[string]*batch[T]
	firing  map[string]bool
}

type batch[T any] struct {
	items []T
	timer *time.Timer
	gen   uint64
}

// retryDelay spaces out fire attempts while a previous pass for the same key
// is still running.
const retryDelay = 100 * time.Millisecond

// New creates a batcher with the given quiet period and processing stage.
func New[T any](quiet time.Duration, process func(key string, items []T)) *Batcher[T] {
	return &Batcher[T]{
		quiet:   quiet,
		process: process,
		pending: make(map[string]*batch[T]),
		firing:  make(map[string]bool),
	}
}

// Enqueue appends an item to the key's queue and re-arms its timer.
func (b *Batcher[T]) Enqueue(key string, item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[key]
	if !ok {
		p = &batch[T]{}
		b.pending[key] = p
	}
	p.items = append(p.items, item)
	b.armLocked(key, p, b.quiet)
}

// Cancel disarms the key's timer and discards its queue without processing.
// No-op when the key has no pending work. Takes effect atomically: a timer
// that already fired will find the queue gone and do nothing.
func (b *Batcher[T]) Cancel(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[key]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(b.pending, key)
}

// Pending reports whether the key has buffered, not-yet-processed items.
func (b *Batcher[T]) Pending(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[key]
	return ok
}

// armLocked (re)arms the key's timer. Caller holds b.mu.
// The generation counter makes stale timer callbacks (stopped too late to
// prevent firing) harmless: they no longer match and abort.
func (b *Batcher[T]) armLocked(key string, p *batch[T], d time.Duration) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(d, func() {
		b.fire(key, gen)
	})
}

func (b *Batcher[T]) fire(key string, gen uint64) {
	b.mu.Lock()

	p, ok := b.pending[key]
	if !ok || p.gen != gen {
		// Cancelled or re-armed since this timer was set.
		b.mu.Unlock()
		return
	}

	if b.firing[key] {
		// Previous pass for this key still running; try again shortly.
		b.armLocked(key, p, retryDelay)
		b.mu.Unlock()
		return
	}

	items := p.items
	delete(b.pending, key)
	b.firing[key] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.firing, key)
		b.mu.Unlock()
	}()

	b.process(key, items)
}
