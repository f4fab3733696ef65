package capture

import (
	"sync"
	"time"
)

// AfterFunc arms a one-shot timer that calls f after d and returns a function
// that disarms it. Production code uses RealAfterFunc; tests substitute a
// manual clock so timed event sequences replay deterministically.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// RealAfterFunc is backed by time.AfterFunc
func RealAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Debouncer coalesces a burst of submissions into the last one. It holds at
// most one pending value; each Submit supersedes the pending value and re-arms
// the timer, and the value is delivered once the window passes quietly.
type Debouncer[T any] struct {
	window  time.Duration
	after   AfterFunc
	deliver func(T)

	mu      sync.Mutex
	pending *T
	stop    func() bool
	gen     uint64
}

// NewDebouncer creates a Debouncer delivering to fn. A non-positive window
// delivers synchronously from Submit.
func NewDebouncer[T any](window time.Duration, after AfterFunc, fn func(T)) *Debouncer[T] {
	if after == nil {
		after = RealAfterFunc
	}
	return &Debouncer[T]{
		window:  window,
		after:   after,
		deliver: fn,
	}
}

// Submit replaces any pending value with v and restarts the window
func (d *Debouncer[T]) Submit(v T) {
	if d.window <= 0 {
		d.deliver(v)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		d.stop()
	}
	d.gen++
	gen := d.gen
	d.pending = &v
	d.stop = d.after(d.window, func() { d.fire(gen) })
}

// Cancel drops the pending value, if any. Returns true when something was
// dropped.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.gen++
	dropped := d.pending != nil
	d.pending = nil
	return dropped
}

// Pending reports whether a value is waiting for its window to expire
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// fire delivers the pending value unless it was superseded or cancelled after
// the timer was armed
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	v := *d.pending
	d.pending = nil
	d.stop = nil
	d.mu.Unlock()

	// Delivered outside the lock so fn may call back into the Debouncer.
	d.deliver(v)
}
