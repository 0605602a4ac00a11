package peer

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the reconnector needs
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests swap in a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Reconnector owns the single pending full-reconnect timer of a manager
type Reconnector struct {
	delay time.Duration
	max   int // 0 means unbounded
	clock Clock
	fire  func(attempt int)

	mu       sync.Mutex
	pending  Timer
	seq      int
	attempts int
}

// NewReconnector schedules fire after delay, at most max times between
// resets. fire runs on the clock's goroutine.
func NewReconnector(delay time.Duration, max int, clock Clock, fire func(attempt int)) *Reconnector {
	if clock == nil {
		clock = realClock{}
	}
	return &Reconnector{delay: delay, max: max, clock: clock, fire: fire}
}

// Schedule arms the timer unless one is already pending. It returns the
// attempt number it armed (0 when debounced) or ErrReconnectExhausted once
// the cap is reached.
func (r *Reconnector) Schedule() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return 0, nil
	}
	if r.max > 0 && r.attempts >= r.max {
		return 0, ErrReconnectExhausted
	}

	r.attempts++
	r.seq++
	attempt, seq := r.attempts, r.seq
	r.pending = r.clock.AfterFunc(r.delay, func() {
		r.mu.Lock()
		if r.seq != seq || r.pending == nil {
			r.mu.Unlock()
			return
		}
		r.pending = nil
		r.mu.Unlock()
		r.fire(attempt)
	})
	return attempt, nil
}

// Pending reports whether a reconnect is armed
func (r *Reconnector) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Cancel disarms a pending reconnect
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
		r.seq++
	}
}

// Reset cancels any pending attempt and clears the attempt count
func (r *Reconnector) Reset() {
	r.Cancel()
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}

// Attempts returns how many reconnects were armed since the last reset
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Max returns the attempt cap, 0 when unbounded
func (r *Reconnector) Max() int {
	return r.max
}
