// Package wait implements a cancellable wait-with-timeout used after a
// recording window closes.
package wait

import (
	"sync"
	"time"

	"github.com/okian/tapsense/pkg/metrics"
)

// MinTimeout is the floor applied to non-positive durations.
const MinTimeout = time.Millisecond

// Waiter runs at most one timed wait at a time. Starting a new wait cancels
// the previous one; a generation counter keeps a stopped timer that already
// fired from running its callback.
type Waiter struct {
	mu        sync.Mutex
	gen       uint64
	pending   bool
	timer     *time.Timer
	onTimeout func()
}

// New creates a Waiter that calls onTimeout when a wait expires un-acked.
// The callback runs on the timer goroutine without internal locks held.
func New(onTimeout func()) *Waiter {
	if onTimeout == nil {
		onTimeout = func() {}
	}
	return &Waiter{onTimeout: onTimeout}
}

// Start begins a new wait of duration d, cancelling any wait in progress.
func (w *Waiter) Start(d time.Duration) {
	if d <= 0 {
		d = MinTimeout
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending {
		metrics.RecordWait(metrics.WaitCancelled)
	}
	w.stopLocked()
	w.gen++
	gen := w.gen
	w.pending = true
	w.timer = time.AfterFunc(d, func() { w.expire(gen) })
	metrics.RecordWait(metrics.WaitStarted)
}

// Ack ends the current wait. It returns true when a wait was pending.
func (w *Waiter) Ack() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending {
		return false
	}
	w.stopLocked()
	w.gen++
	metrics.RecordWait(metrics.WaitAcked)
	return true
}

// Cancel abandons the current wait without running the timeout callback.
// It returns true when a wait was pending.
func (w *Waiter) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending {
		return false
	}
	w.stopLocked()
	w.gen++
	metrics.RecordWait(metrics.WaitCancelled)
	return true
}

// Pending reports whether a wait is in progress.
func (w *Waiter) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *Waiter) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = false
}

func (w *Waiter) expire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.timer = nil
	w.mu.Unlock()

	metrics.RecordWait(metrics.WaitTimedOut)
	w.onTimeout()
}
