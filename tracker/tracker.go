// Package tracker enforces that at most one execution runs per request id.
//
// MemoryTracker only covers a single process and forgets everything on
// restart. Multi-instance deployments need RedisTracker.
package tracker

import (
	"context"
	"sync"
	"time"
)

type Tracker interface {
	// Admit claims id. It returns false without blocking when id is
	// already held.
	Admit(ctx context.Context, id [32]byte) (bool, error)
	Release(ctx context.Context, id [32]byte) error
	InFlight(ctx context.Context, id [32]byte) (bool, error)
}

type MemoryTracker struct {
	mu       sync.Mutex
	inflight map[[32]byte]time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{inflight: make(map[[32]byte]time.Time)}
}

func (t *MemoryTracker) Admit(_ context.Context, id [32]byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inflight[id]; ok {
		return false, nil
	}
	t.inflight[id] = time.Now()
	return true, nil
}

func (t *MemoryTracker) Release(_ context.Context, id [32]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	return nil
}

func (t *MemoryTracker) InFlight(_ context.Context, id [32]byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inflight[id]
	return ok, nil
}

// Len is the number of ids currently held.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
