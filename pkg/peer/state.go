package peer

import (
	"github.com/pion/webrtc/v3"
)

// Role says which side of a broadcast a manager plays
type Role int

const (
	RoleProducer Role = iota
	RoleConsumer
)

func (r Role) String() string {
	if r == RoleProducer {
		return "producer"
	}
	return "consumer"
}

// State is a manager's negotiation state
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateJoined
	StateAwaitingOffer
	StateNegotiating
	StateLive
	StateFailed
	StateStopped
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateSelecting:     "selecting",
	StateJoined:        "joined",
	StateAwaitingOffer: "awaiting-offer",
	StateNegotiating:   "negotiating",
	StateLive:          "live",
	StateFailed:        "failed",
	StateStopped:       "stopped",
	StateClosed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// producerTransitions lists the legal moves of a producer
var producerTransitions = map[State][]State{
	StateIdle:        {StateSelecting},
	StateSelecting:   {StateNegotiating, StateIdle},
	StateNegotiating: {StateNegotiating, StateLive, StateFailed, StateStopped},
	StateLive:        {StateNegotiating, StateFailed, StateStopped},
	StateFailed:      {StateNegotiating, StateLive, StateStopped, StateSelecting},
	StateStopped:     {StateSelecting},
}

// consumerTransitions lists the legal moves of a consumer. Joined is
// reachable from everywhere since activating another room restarts the flow.
var consumerTransitions = map[State][]State{
	StateIdle:          {StateJoined},
	StateJoined:        {StateJoined, StateAwaitingOffer, StateNegotiating, StateClosed},
	StateAwaitingOffer: {StateJoined, StateNegotiating, StateClosed},
	StateNegotiating:   {StateJoined, StateNegotiating, StateLive, StateFailed, StateClosed},
	StateLive:          {StateJoined, StateNegotiating, StateFailed, StateClosed},
	StateFailed:        {StateJoined, StateAwaitingOffer, StateNegotiating, StateLive, StateClosed},
	StateClosed:        {StateJoined, StateNegotiating},
}

// CanTransition reports whether role may move from one state to another
func (r Role) CanTransition(from, to State) bool {
	table := producerTransitions
	if r == RoleConsumer {
		table = consumerTransitions
	}
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LinkState is the aggregate peer-connection state
type LinkState int

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Broken reports states that call for a full rebuild
func (s LinkState) Broken() bool {
	return s == LinkDisconnected || s == LinkFailed || s == LinkClosed
}

// linkStateFrom maps pion's peer connection state
func linkStateFrom(s webrtc.PeerConnectionState) LinkState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		return LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		return LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		return LinkFailed
	case webrtc.PeerConnectionStateClosed:
		return LinkClosed
	default:
		return LinkNew
	}
}

// ICEState is the transport-level connectivity state
type ICEState int

const (
	ICENew ICEState = iota
	ICEChecking
	ICEConnected
	ICECompleted
	ICEDisconnected
	ICEFailed
	ICEClosed
)

func (s ICEState) String() string {
	switch s {
	case ICENew:
		return "new"
	case ICEChecking:
		return "checking"
	case ICEConnected:
		return "connected"
	case ICECompleted:
		return "completed"
	case ICEDisconnected:
		return "disconnected"
	case ICEFailed:
		return "failed"
	case ICEClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Healthy reports whether media can flow
func (s ICEState) Healthy() bool {
	return s == ICEConnected || s == ICECompleted
}

// iceTransitions is the ICE agent's lifecycle. A restart sends any live
// state back to checking.
var iceTransitions = map[ICEState][]ICEState{
	ICENew:          {ICEChecking, ICEClosed},
	ICEChecking:     {ICEConnected, ICECompleted, ICEFailed, ICEDisconnected, ICEClosed},
	ICEConnected:    {ICECompleted, ICEDisconnected, ICEFailed, ICEChecking, ICEClosed},
	ICECompleted:    {ICEConnected, ICEDisconnected, ICEFailed, ICEChecking, ICEClosed},
	ICEDisconnected: {ICEConnected, ICECompleted, ICEFailed, ICEChecking, ICEClosed},
	ICEFailed:       {ICEChecking, ICEClosed},
	ICEClosed:       {},
}

// CanTransition reports whether the ICE agent may move to next
func (s ICEState) CanTransition(next ICEState) bool {
	for _, n := range iceTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// iceStateFrom maps pion's ICE connection state
func iceStateFrom(s webrtc.ICEConnectionState) ICEState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return ICEChecking
	case webrtc.ICEConnectionStateConnected:
		return ICEConnected
	case webrtc.ICEConnectionStateCompleted:
		return ICECompleted
	case webrtc.ICEConnectionStateDisconnected:
		return ICEDisconnected
	case webrtc.ICEConnectionStateFailed:
		return ICEFailed
	case webrtc.ICEConnectionStateClosed:
		return ICEClosed
	default:
		return ICENew
	}
}
