package peer

import (
	"fmt"

	"github.com/tomaslejdung/peepcast/pkg/signal"
)

// Signaler is the relay transport a manager negotiates through.
// *signal.Conn and *signal.Pipe implement it.
type Signaler interface {
	Send(msg signal.Message) error
	Events() <-chan signal.Event
}

// Status is a manager's externally visible state
type Status struct {
	Role        Role
	State       State
	ICE         ICEState
	Link        LinkState
	Room        string
	Remote      string // bound peer connection id
	Attempt     int    // current reconnect attempt, 0 when none pending
	MaxAttempts int
	ConnType    string
	Signaling   bool // relay transport is up
	Err         error
}

// Reconnecting reports whether a full reconnect is pending
func (s Status) Reconnecting() bool {
	return s.Attempt > 0
}

// Label renders the state for status lines, e.g. "live" or
// "reconnecting 2/10"
func (s Status) Label() string {
	if s.Reconnecting() {
		if s.MaxAttempts > 0 {
			return fmt.Sprintf("reconnecting %d/%d", s.Attempt, s.MaxAttempts)
		}
		return fmt.Sprintf("reconnecting %d", s.Attempt)
	}
	return s.State.String()
}
