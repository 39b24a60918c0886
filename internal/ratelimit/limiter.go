// Package ratelimit counts requests per client key in fixed windows.
//
// MemoryLimiter keeps its counters in process memory: they start empty when
// the process starts and are not shared between instances.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter interface {
	// Allow records one hit for key and reports whether it is within the limit.
	Allow(key string) bool
}

type window struct {
	start time.Time
	count int
}

type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	period    time.Duration
	now       func() time.Time
	windows   map[string]*window
	lastPrune time.Time
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops expired windows at most once per period.
func (l *MemoryLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.period {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.period {
			delete(l.windows, k)
		}
	}
	l.lastPrune = now
}
