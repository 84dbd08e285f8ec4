package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides if a client may make another request right now
type Limiter interface {
	Allow(key string, now time.Time) bool
}

// Window is an in-memory sliding window counter keyed by client
// Good enough for a single process, swap the Limiter for anything shared
type Window struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

func (w *Window) Allow(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)

	kept := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= w.limit {
		w.hits[key] = kept
		return false
	}

	w.hits[key] = append(kept, now)
	return true
}
