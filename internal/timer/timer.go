// Package timer implements a restartable single-shot delayed callback.
package timer

import (
	"sync"
	"time"
)

// Timer schedules at most one pending callback at a time. A new Start
// supersedes a schedule that has not fired yet; Cancel disables the timer
// permanently.
type Timer struct {
	mu       sync.Mutex
	t        *time.Timer
	gen      uint64
	canceled bool
}

// New creates an idle timer.
func New() *Timer {
	return &Timer{}
}

// Start schedules fn to run once after delay, replacing any pending schedule.
// It returns false if the timer has been canceled.
func (t *Timer) Start(fn func(), delay time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled {
		return false
	}
	t.stopLocked()

	t.gen++
	gen := t.gen
	t.t = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.canceled || t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.t = nil
		t.mu.Unlock()

		fn()
	})
	return true
}

// Reset drops the pending callback without running it.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Cancel permanently disables the timer. Safe to call more than once.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.canceled = true
}

// Pending reports whether a callback is scheduled and has not fired.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}

// stopLocked stops the runtime timer and invalidates its generation so a
// callback already racing for the lock becomes a no-op.
// Must be called with t.mu held.
func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.gen++
}
