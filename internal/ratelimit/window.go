// Package ratelimit provides the rolling-window counters that bound
// dispatch and expression-evaluation throughput.
package ratelimit

import (
	"sync"
	"time"
)

// Window counts events inside a rolling time span. Once the limit is
// reached, further events are rejected until old ones age out of the
// span. Excess events are dropped, never queued.
type Window struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time
}

// NewWindow creates a rolling window allowing limit events per span.
// A non-positive limit disables the window (Allow always succeeds).
func NewWindow(limit int, span time.Duration) *Window {
	if span <= 0 {
		span = time.Second
	}
	return &Window{
		limit: limit,
		span:  span,
	}
}

// Allow records one event if the window has capacity and reports
// whether the event was admitted.
func (w *Window) Allow() bool {
	if w.limit <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.prune(now)

	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Remaining returns how many events the window will still admit.
func (w *Window) Remaining() int {
	if w.limit <= 0 {
		return int(^uint(0) >> 1)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(time.Now())
	return w.limit - len(w.stamps)
}

// Reset discards all recorded events.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps = w.stamps[:0]
}

// prune drops stamps that have aged out. Caller holds the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for ; i < len(w.stamps); i++ {
		if w.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
