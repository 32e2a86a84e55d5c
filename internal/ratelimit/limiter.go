// Package ratelimit bounds outbound provider calls with a sliding-window
// admission queue. Pending callers are served strictly in arrival order.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// drainBuffer pads the computed wait so the oldest timestamp has fully
// left the window when the drain loop re-checks.
const drainBuffer = 50 * time.Millisecond

// Limiter admits at most maxCalls operations within any rolling window.
// Admission is FIFO; a failing operation's error propagates only to its
// own caller.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time
	queue    []chan struct{}
	draining bool

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a limiter allowing maxCalls per window.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// PerMinute builds the high-throughput tier (fixed calls per minute).
func PerMinute(calls int) *Limiter {
	return New(calls, time.Minute)
}

// PerDay builds the low-throughput tier (fixed calls per day).
func PerDay(calls int) *Limiter {
	return New(calls, 24*time.Hour)
}

// Do blocks until the limiter admits the caller, then runs fn and returns
// its error. A caller whose context expires while queued still consumes a
// slot once admitted; the work is simply not run.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	ready := make(chan struct{})

	l.mu.Lock()
	l.queue = append(l.queue, ready)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	<-ready
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// Pending returns the number of callers waiting for admission.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// drain is the single admission loop; the draining flag guarantees at
// most one instance runs at a time.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		now := l.now()
		l.pruneLocked(now)

		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		if len(l.calls) < l.maxCalls {
			l.calls = append(l.calls, now)
			head := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			close(head)
			continue
		}

		// At capacity: wait exactly until the oldest call exits the window.
		wait := l.calls[0].Add(l.window).Sub(now) + drainBuffer
		l.mu.Unlock()
		l.sleep(wait)
	}
}

// pruneLocked drops timestamps older than the window. Callers must hold mu.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
