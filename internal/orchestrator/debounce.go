package orchestrator

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of triggers into a single callback after a
// quiet period. Safe for concurrent use.
type Debouncer struct {
	mu       sync.Mutex
	settle   time.Duration
	fn       func()
	timer    *time.Timer
	gen      uint64 // invalidates timers superseded by a later Trigger or Cancel
	inFlight sync.WaitGroup
}

// NewDebouncer builds a debouncer that runs fn once per burst, settle
// after the last trigger.
func NewDebouncer(settle time.Duration, fn func()) *Debouncer {
	return &Debouncer{settle: settle, fn: fn}
}

// Trigger restarts the quiet-period timer. The callback runs on the
// timer goroutine without the debouncer lock held.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && d.timer.Stop() {
		d.inFlight.Done()
	}
	d.gen++
	gen := d.gen

	d.inFlight.Add(1)
	d.timer = time.AfterFunc(d.settle, func() {
		defer d.inFlight.Done()

		d.mu.Lock()
		if gen != d.gen {
			// A later Trigger or Cancel superseded this timer while it
			// was waiting on the lock.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.fn()
	})
}

// Cancel drops any pending callback. A callback already past its gen
// check keeps running; see CancelAndWait.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		if d.timer.Stop() {
			d.inFlight.Done()
		}
		d.timer = nil
	}
}

// CancelAndWait drops any pending callback and blocks until a running
// one returns. Use during shutdown.
func (d *Debouncer) CancelAndWait() {
	d.Cancel()
	d.inFlight.Wait()
}
