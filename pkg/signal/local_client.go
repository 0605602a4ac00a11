package signal

import (
	"sync"
)

// Pipe is an in-process relay connection. It is used when the relay runs
// embedded in the sharing process and by tests.
type Pipe struct {
	client *Client
	events chan Event

	mu     sync.Mutex // serializes Send so the router sees messages in order
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Pipe attaches a new in-process connection to the server
func (s *Server) Pipe() *Pipe {
	c := s.newClient(nil, JSON)
	p := &Pipe{
		client: c,
		events: make(chan Event, s.cfg.SendBuffer+1),
		done:   make(chan struct{}),
	}
	p.events <- Event{Kind: EventConnected}

	p.wg.Add(1)
	go p.pump()
	return p
}

// ID returns the pipe's connection id
func (p *Pipe) ID() string {
	return p.client.id
}

func (p *Pipe) pump() {
	defer p.wg.Done()
	defer close(p.events)

	for msg := range p.client.send {
		select {
		case p.events <- Event{Kind: EventMessage, Message: msg}:
		case <-p.done:
			// drain so removeClient's close ends the loop
		}
	}
	select {
	case p.events <- Event{Kind: EventClosed, Err: ErrClosed}:
	default:
	}
}

// Events returns incoming relay events
func (p *Pipe) Events() <-chan Event {
	return p.events
}

// Send routes msg through the relay as if it arrived on a socket
func (p *Pipe) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.client.handleMessage(msg)
	return nil
}

// Close disconnects the pipe from the relay
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.client.server.removeClient(p.client)
	p.wg.Wait()
	return nil
}
