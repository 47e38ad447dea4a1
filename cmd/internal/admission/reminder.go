package admission

import (
	"sync"
	"time"
)

// ReminderScheduler runs keyed one-shot callbacks.
//
// Scheduling a key that already has a pending reminder supersedes it:
// the prior timer is cancelled. Cancellation after firing is a no-op.
type ReminderScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewReminderScheduler constructs an empty scheduler.
func NewReminderScheduler() *ReminderScheduler {
	return &ReminderScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms fn to run once after delay under key.
func (r *ReminderScheduler) Schedule(key string, delay time.Duration, fn func()) {
	if key == "" || fn == nil || delay <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if prior, ok := r.timers[key]; ok {
		prior.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		r.mu.Lock()
		// A prior timer may fire while being superseded; it must only
		// clean up its own entry, never the successor's.
		if cur, ok := r.timers[key]; ok && cur == t {
			delete(r.timers, key)
		}
		r.mu.Unlock()
		fn()
	})
	r.timers[key] = t
}

// Cancel stops the pending reminder for key, if any.
func (r *ReminderScheduler) Cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// Stop cancels every pending reminder and rejects new ones.
func (r *ReminderScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for k, t := range r.timers {
		t.Stop()
		delete(r.timers, k)
	}
}
