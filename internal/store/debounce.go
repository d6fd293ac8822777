package store

import (
	"sync"
	"time"
)

// debouncer runs fn once delay has passed without another call to Trigger.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

// Trigger (re)arms the timer.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
		return
	}
	d.timer.Reset(d.delay)
}

// Flush runs fn now if a call is pending and cancels the timer.
func (d *debouncer) Flush() {
	d.mu.Lock()
	pending := d.pending
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	if pending {
		d.fn()
	}
}

func (d *debouncer) fire() {
	d.mu.Lock()
	pending := d.pending
	d.pending = false
	d.mu.Unlock()

	if pending {
		d.fn()
	}
}
