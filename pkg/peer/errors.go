package peer

import (
	"errors"
	"fmt"
)

// Sentinel errors for negotiation
var (
	ErrSourceUnavailable  = errors.New("media source unavailable")
	ErrNegotiation        = errors.New("negotiation failed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNotActive          = errors.New("no active broadcast")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrNoRoom             = errors.New("no room given")
	ErrClosed             = errors.New("manager closed")
)

// Error is a failed manager operation
type Error struct {
	Op   string // share, offer, answer, candidate, reconnect
	Room string
	Err  error
}

func (e *Error) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Room, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with the operation and room it happened in
func newError(op, room string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Room: room, Err: err}
}

// negotiationError tags a pion failure as a negotiation failure
func negotiationError(op, room string, err error) error {
	return newError(op, room, fmt.Errorf("%w: %w", ErrNegotiation, err))
}
