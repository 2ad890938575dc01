package logic

import (
	"sync/atomic"
	"time"
)

// Debouncer accepts at most one trigger per window across all input lines.
// It is safe for concurrent use; Accept performs only atomic operations so
// it may be called from edge-event handlers.
type Debouncer struct {
	window time.Duration
	last   atomic.Pointer[time.Time] // last accepted trigger, nil = none
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Window returns the configured debounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Accept reports whether a trigger at now is accepted. A trigger is accepted
// when more than the window has passed since the last accepted trigger.
// Elapsed time uses the monotonic reading when both times carry one. The
// window applies either side of the last accepted trigger, so edges
// delivered slightly out of order are still rejected while a wall clock
// stepped back by more than the window does not lock the buttons out.
func (d *Debouncer) Accept(now time.Time) bool {
	for {
		last := d.last.Load()
		if last != nil {
			elapsed := now.Sub(*last)
			if elapsed < 0 {
				elapsed = -elapsed
			}
			if elapsed <= d.window {
				return false
			}
		}
		if d.last.CompareAndSwap(last, &now) {
			return true
		}
	}
}
