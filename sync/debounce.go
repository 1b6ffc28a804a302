package sync

import (
	gosync "sync"
	"time"
)

// DefaultDebounce is the quiet window used when Options.Debounce is zero.
const DefaultDebounce = time.Second

// Debouncer collapses bursts of Trigger calls into one call of fn, fired
// once window has elapsed without a further trigger.
type Debouncer struct {
	mu      gosync.Mutex
	window  time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer. Nothing fires until Trigger is called.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
		return
	}
	d.timer.Reset(d.window)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped {
		d.fn()
	}
}

// Stop cancels any pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
