package signal

// Relay event names
const (
	MsgJoinRoom      = "join-room"
	MsgLeaveRoom     = "leave-room"
	MsgSignal        = "signal"
	MsgStopBroadcast = "stop-broadcast"
	MsgContentUpdate = "content-update"
	MsgJoined        = "joined"
	MsgError         = "error"
)

// Signal kinds. The relay never inspects them.
const (
	KindOffer      = "offer"
	KindAnswer     = "answer"
	KindCandidate  = "candidate"
	KindICERestart = "ice-restart" // consumer asks its producer for an ICE restart offer
	KindReady      = "ready"       // consumer is waiting for an offer
)

// Message is one relay frame. Field use depends on Event.
type Message struct {
	Event  string  `json:"event" msgpack:"event"`
	Room   string  `json:"room,omitempty" msgpack:"room,omitempty"`     // join-room, leave-room, stop-broadcast, content-update, joined
	Signal *Signal `json:"signal,omitempty" msgpack:"signal,omitempty"` // signal
	From   string  `json:"from,omitempty" msgpack:"from,omitempty"`     // set by the relay on forwarded messages
	ID     string  `json:"id,omitempty" msgpack:"id,omitempty"`         // joined: the caller's connection id
	URL    string  `json:"url,omitempty" msgpack:"url,omitempty"`       // content-update
	Error  string  `json:"error,omitempty" msgpack:"error,omitempty"`   // error
}

// Signal is a negotiation payload addressed to a room
type Signal struct {
	Kind       string `json:"kind" msgpack:"kind"`
	Body       string `json:"body,omitempty" msgpack:"body,omitempty"` // SDP or JSON candidate init
	TargetRoom string `json:"targetRoom" msgpack:"targetRoom"`
	Restart    bool   `json:"restart,omitempty" msgpack:"restart,omitempty"` // offer renegotiates ICE on the existing link
}

// NewSignal builds a signal message for room
func NewSignal(room, kind, body string) Message {
	return Message{
		Event:  MsgSignal,
		Signal: &Signal{Kind: kind, Body: body, TargetRoom: room},
	}
}

// TargetRoom returns the room a message is addressed to
func (m Message) TargetRoom() string {
	if m.Event == MsgSignal {
		if m.Signal == nil {
			return ""
		}
		return m.Signal.TargetRoom
	}
	return m.Room
}
