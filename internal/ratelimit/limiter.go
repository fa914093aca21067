// Package ratelimit bounds how many replies a single sender can trigger.
package ratelimit

import (
	"sync"
	"time"
)

// Default limits.
const (
	DefaultMaxPerWindow = 10
	DefaultWindow       = time.Hour
)

// Limiter is a per-key sliding window limiter. A zero max disables limiting.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	events map[string][]time.Time // key -> accepted event times, oldest first
	now    func() time.Time
}

// New creates a limiter allowing max events per key within window.
func New(max int, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:    max,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.max > 0
}

// Allow records an event for key and reports whether it is within the limit.
// Rejected events are not recorded.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now)
	if len(recent) >= l.max {
		return false
	}
	l.events[key] = append(recent, now)
	return true
}

// Remaining returns how many events key may still trigger in the current window.
// It returns -1 when limiting is disabled.
func (l *Limiter) Remaining(key string) int {
	if !l.Enabled() {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.max - len(l.prune(key, l.now()))
}

// RetryAfter returns how long until key regains one slot. Zero when it has capacity.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if !l.Enabled() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	recent := l.prune(key, now)
	if len(recent) < l.max {
		return 0
	}
	return recent[0].Add(l.window).Sub(now)
}

// Reset forgets every recorded event for key.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

// prune drops events older than the window. Caller must hold l.mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	events := l.events[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	if i == len(events) {
		delete(l.events, key)
		return nil
	}
	if i > 0 {
		events = append([]time.Time(nil), events[i:]...)
		l.events[key] = events
	}
	return events
}
