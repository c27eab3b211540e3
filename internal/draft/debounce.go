package draft

import (
	"sync"
	"time"
)

// Debouncer delays a write until no new value has been scheduled for the quiet
// period. At most one timer is pending; scheduling replaces it.
type Debouncer struct {
	delay time.Duration
	write func(value string)

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool

	// held while write runs so Cancel can wait for an in-flight write
	running sync.Mutex
}

// NewDebouncer returns a trailing-edge debouncer that calls write with the last
// scheduled value.
func NewDebouncer(delay time.Duration, write func(value string)) *Debouncer {
	if delay <= 0 {
		delay = time.Second
	}
	return &Debouncer{delay: delay, write: write}
}

// Schedule restarts the quiet period with value. It reports false once closed.
func (d *Debouncer) Schedule(value string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen, value) })
	return true
}

func (d *Debouncer) fire(gen uint64, value string) {
	d.running.Lock()
	defer d.running.Unlock()

	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.write(value)
}

// Pending reports whether a write is waiting for the quiet period to elapse.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending write. It returns after any write already in
// progress has finished. Must not be called from the write callback.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.stopLocked()
	d.mu.Unlock()

	d.running.Lock()
	d.running.Unlock()
}

// Close cancels the pending write and rejects further schedules.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.stopLocked()
	d.mu.Unlock()

	d.running.Lock()
	d.running.Unlock()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
