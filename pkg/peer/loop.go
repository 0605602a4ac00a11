package peer

import (
	"context"
	"sync"
)

// loop confines a manager's state to one goroutine. Everything that touches
// that state is a closure run by Run.
type loop struct {
	inbox    chan func()
	done     chan struct{}
	doneOnce sync.Once
}

func newLoop() loop {
	return loop{
		inbox: make(chan func(), 128),
		done:  make(chan struct{}),
	}
}

// post queues fn. It reports false once the loop has exited.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.inbox <- fn:
		return true
	case <-l.done:
		return false
	}
}

// do runs fn on the loop and waits for its result
func (l *loop) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	if !l.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

func (l *loop) exit() {
	l.doneOnce.Do(func() { close(l.done) })
}

// statusBox publishes Status snapshots to other goroutines
type statusBox struct {
	mu       sync.Mutex
	status   Status
	onStatus func(Status)
}

func (b *statusBox) set(s Status) {
	b.mu.Lock()
	b.status = s
	cb := b.onStatus
	b.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (b *statusBox) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}
