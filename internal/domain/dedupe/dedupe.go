// Package dedupe tracks message ids already handed to the worker so broker
// redeliveries do not start a second unit for the same job.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper records seen message ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the insert happen under one lock.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later delivery of it is processed again.
	// Used when the submission the id was recorded for did not go through.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// ring is a bounded set. When full, the oldest recorded id is evicted.
type ring struct {
	mu    sync.Mutex
	seen  map[string]int // id -> slot
	slots []string
	next  int
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	o := options{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &ring{
		seen:  make(map[string]int, o.maxSize),
		slots: make([]string, o.maxSize),
	}
}

func (r *ring) SeenAndRecord(_ context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return true
	}
	if old := r.slots[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.slots[r.next] = id
	r.seen[id] = r.next
	r.next = (r.next + 1) % len(r.slots)
	return false
}

func (r *ring) Unrecord(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.seen[id]
	if !ok {
		return
	}
	delete(r.seen, id)
	r.slots[slot] = ""
}

func (r *ring) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.seen))
}
