// Package debounce provides a cancel-and-restart scheduler for a single pending action.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the editor's quiet period before a pending edit is committed.
const DefaultDelay = time.Second

// Debouncer holds at most one pending action. Scheduling replaces the pending
// action and restarts the delay; the action runs once the delay elapses without
// a new schedule.
type Debouncer struct {
	mu         sync.Mutex
	delay      time.Duration
	timer      *time.Timer
	pending    func()
	generation uint64
	stopped    bool
}

// New constructs a Debouncer. A non-positive delay falls back to DefaultDelay.
func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule replaces any pending action with action and restarts the delay.
// It returns false once the debouncer has been stopped.
func (d *Debouncer) Schedule(action func()) bool {
	if action == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.stopTimerLocked()
	d.generation++
	generation := d.generation
	d.pending = action
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(generation)
	})
	return true
}

// Flush runs the pending action immediately on the calling goroutine.
// It reports whether there was an action to run.
func (d *Debouncer) Flush() bool {
	action := d.take()
	if action == nil {
		return false
	}
	action()
	return true
}

// Cancel drops the pending action without running it.
func (d *Debouncer) Cancel() bool {
	return d.take() != nil
}

// Pending reports whether an action is waiting for the delay to elapse.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop flushes the pending action and rejects later schedules.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return d.Flush()
}

func (d *Debouncer) take() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	action := d.pending
	d.pending = nil
	d.generation++
	d.stopTimerLocked()
	return action
}

func (d *Debouncer) fire(generation uint64) {
	d.mu.Lock()
	if generation != d.generation || d.pending == nil {
		d.mu.Unlock()
		return
	}
	action := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	action()
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
