// Package debounce provides a timer-per-key stability window for file
// events. A key fires only after it has been quiet for the whole window, so
// the orchestrator never reacts to a half-written file.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces repeated hits on the same key and invokes the
// callback once the key has been quiet for the configured window.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timers  map[string]*time.Timer
	fire    func(key string)
	stopped bool
}

// New creates a debouncer. fire runs on a timer goroutine once per settled
// key.
func New(window time.Duration, fire func(key string)) *Debouncer {
	if window < 0 {
		window = 0
	}
	return &Debouncer{
		window: window,
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

// Hit records activity on key, restarting its quiet-window timer.
func (d *Debouncer) Hit(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if timer, ok := d.timers[key]; ok {
		timer.Reset(d.window)
		return
	}
	d.timers[key] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		d.fire(key)
	})
}

// Stop cancels all timers; no callbacks run after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
