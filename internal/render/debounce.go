// Package render coalesces bursts of state changes into single renders.
package render

import (
	"sync"
	"time"

	"github.com/abril-student/ranch-monitoring/internal/timeutil"
)

// DefaultDelay is the coalescing window.
const DefaultDelay = 300 * time.Millisecond

// Debouncer runs fn once per burst of Trigger calls. The first Trigger arms
// a timer; further calls before it fires are absorbed. Runs never overlap:
// a Trigger that arrives while fn is running is held until fn returns and
// then armed for a fresh delay.
type Debouncer struct {
	mu      sync.Mutex
	pending bool
	running bool
	timer   timeutil.Timer
	stopped bool

	delay time.Duration
	clock timeutil.Clock
	fn    func()
}

// NewDebouncer creates a Debouncer. A nil clock uses wall time.
func NewDebouncer(delay time.Duration, clock timeutil.Clock, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Debouncer{delay: delay, clock: clock, fn: fn}
}

// Trigger schedules a render unless one is already pending. It reports
// whether this call armed the timer.
func (d *Debouncer) Trigger() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending || d.stopped {
		return false
	}
	d.pending = true
	if !d.running {
		d.timer = d.clock.AfterFunc(d.delay, d.run)
	}
	return true
}

func (d *Debouncer) run() {
	d.mu.Lock()
	if !d.pending || d.running || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.running = true
	d.timer = nil
	d.mu.Unlock()

	defer d.finish()
	d.fn()
}

// finish re-arms the timer for triggers that arrived during the run.
func (d *Debouncer) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	if d.pending && !d.stopped {
		d.timer = d.clock.AfterFunc(d.delay, d.run)
	}
}

// Pending reports whether a render is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels a pending render and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
