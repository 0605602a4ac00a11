package peer

// Trigger is what prompted a policy decision
type Trigger int

const (
	TriggerICE   Trigger = iota // ICE connection state changed
	TriggerLink                 // peer connection state changed
	TriggerTimer                // a scheduled reconnect fired
)

// Observation is everything the recovery policy looks at
type Observation struct {
	Active  bool // a broadcast is wanted (producer sharing, consumer activated)
	State   State
	ICE     ICEState
	Link    LinkState
	Pending bool // a reconnect is already scheduled
}

// Action is what the manager should do next
type Action int

const (
	ActionNone Action = iota
	ActionMarkLive
	ActionRestartICE
	ActionScheduleReconnect
	ActionReconnect
)

func (a Action) String() string {
	switch a {
	case ActionMarkLive:
		return "mark-live"
	case ActionRestartICE:
		return "restart-ice"
	case ActionScheduleReconnect:
		return "schedule-reconnect"
	case ActionReconnect:
		return "reconnect"
	default:
		return "none"
	}
}

// Decide is the two-tier recovery policy. ICE failures are repaired in place
// with an ICE restart; a broken link gets one delayed full rebuild, and a
// rebuild that comes due after the link recovered is skipped.
func Decide(o Observation, t Trigger) Action {
	if !o.Active {
		return ActionNone
	}

	switch t {
	case TriggerICE:
		if o.ICE == ICEFailed && o.Link != LinkClosed {
			return ActionRestartICE
		}
	case TriggerLink:
		if o.Link == LinkConnected {
			if o.State != StateLive {
				return ActionMarkLive
			}
			return ActionNone
		}
		if o.Link.Broken() && !o.Pending {
			return ActionScheduleReconnect
		}
	case TriggerTimer:
		if o.Link == LinkConnected {
			if o.State != StateLive {
				return ActionMarkLive
			}
			return ActionNone
		}
		return ActionReconnect
	}
	return ActionNone
}
