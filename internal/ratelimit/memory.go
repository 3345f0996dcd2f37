package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked keys so rotating credentials
// cannot exhaust memory.
const maxTrackedKeys = 8192

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window counter held in process memory, correct
// for a single-instance deployment. Safe for concurrent use.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*windowEntry
	now     func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if len(l.entries) >= maxTrackedKeys {
		l.prune(now)
	}

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = &windowEntry{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}
	if e.count < l.limit {
		e.count++
		return true, nil
	}
	// At the limit: deny without incrementing further.
	return false, nil
}

func (l *MemoryLimiter) prune(now time.Time) {
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
		}
	}
	for len(l.entries) >= maxTrackedKeys {
		for k := range l.entries {
			delete(l.entries, k)
			break
		}
	}
}
