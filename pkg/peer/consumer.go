package peer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/tomaslejdung/peepcast/pkg/signal"
)

// ConsumerConfig wires a Consumer to its collaborators
type ConsumerConfig struct {
	Signaler       Signaler
	NewLink        LinkFactory
	Renderer       Renderer
	ReconnectDelay time.Duration
	MaxReconnects  int // 0 means unbounded
	Clock          Clock
	Logger         *slog.Logger
	OnStatus       func(Status)
}

// Consumer receives the broadcast of one room. Only producers offer; a
// consumer answers, and on a broken link goes back to waiting for an offer.
type Consumer struct {
	cfg         ConsumerConfig
	logger      *slog.Logger
	renderer    Renderer
	reconnector *Reconnector
	statusBox   statusBox
	loop

	// Everything below is owned by the Run goroutine.
	state       State
	room        string
	activated   bool
	link        Link
	gen         int
	remote      string
	ice         ICEState
	linkState   LinkState
	connType    string
	attempt     int
	exhausted   bool
	signalingUp bool
	relayLost   bool // set between a transport drop and the next connect
	err         error
}

// NewConsumer creates an idle consumer. Call Run before anything else.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NewStatsRenderer()
	}

	c := &Consumer{
		cfg:      cfg,
		logger:   cfg.Logger.With("role", RoleConsumer.String()),
		renderer: cfg.Renderer,
		loop:     newLoop(),
		state:    StateIdle,
	}
	c.statusBox.onStatus = cfg.OnStatus
	c.reconnector = NewReconnector(cfg.ReconnectDelay, cfg.MaxReconnects, cfg.Clock, func(attempt int) {
		c.post(func() { c.onReconnectDue(attempt) })
	})
	c.publish()
	return c
}

// Run processes signaling and link events until ctx is cancelled or the
// signaling transport closes for good
func (c *Consumer) Run(ctx context.Context) error {
	defer c.exit()

	events := c.cfg.Signaler.Events()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case fn := <-c.inbox:
			fn()
		case ev, ok := <-events:
			if !ok {
				c.shutdown()
				return ErrClosed
			}
			c.handleEvent(ev)
		}
	}
}

// Status returns the latest status snapshot
func (c *Consumer) Status() Status {
	return c.statusBox.get()
}

// Activate joins room and waits for its producer's offer. Activating another
// room drops the current one.
func (c *Consumer) Activate(ctx context.Context, room string) error {
	if room == "" {
		return newError("activate", room, ErrNoRoom)
	}

	return c.do(ctx, func() error {
		c.closeLink()
		c.renderer.Clear()
		c.reconnector.Reset()
		c.attempt = 0
		c.exhausted = false
		c.err = nil
		c.room = room
		c.activated = true
		c.transition(StateJoined)
		c.send(signal.Message{Event: signal.MsgJoinRoom, Room: room})
		c.awaitOffer()
		return nil
	})
}

// Close leaves the room and releases the link
func (c *Consumer) Close(ctx context.Context) error {
	return c.do(ctx, func() error {
		if !c.activated {
			return nil
		}
		c.release()
		c.send(signal.Message{Event: signal.MsgLeaveRoom, Room: c.room})
		c.activated = false
		c.transition(StateClosed)
		c.publish()
		return nil
	})
}

func (c *Consumer) transition(to State) bool {
	if !RoleConsumer.CanTransition(c.state, to) {
		c.logger.Debug("ignored state change", "from", c.state, "to", to)
		return false
	}
	if c.state != to {
		c.logger.Info("state changed", "from", c.state, "to", to, "room", c.room)
	}
	c.state = to
	return true
}

func (c *Consumer) publish() {
	c.statusBox.set(Status{
		Role:        RoleConsumer,
		State:       c.state,
		ICE:         c.ice,
		Link:        c.linkState,
		Room:        c.room,
		Remote:      c.remote,
		Attempt:     c.attempt,
		MaxAttempts: c.reconnector.Max(),
		ConnType:    c.connType,
		Signaling:   c.signalingUp,
		Err:         c.err,
	})
}

func (c *Consumer) send(msg signal.Message) {
	if err := c.cfg.Signaler.Send(msg); err != nil {
		c.logger.Warn("failed to send to relay", "event", msg.Event, "err", err)
	}
}

// linkActive reports whether link failures should be recovered from
func (c *Consumer) linkActive() bool {
	if !c.activated || c.exhausted {
		return false
	}
	switch c.state {
	case StateNegotiating, StateLive, StateFailed:
		return true
	}
	return false
}

// awaitOffer asks the room's producer for an offer
func (c *Consumer) awaitOffer() {
	c.transition(StateAwaitingOffer)
	c.send(signal.NewSignal(c.room, signal.KindReady, ""))
	c.publish()
}

func (c *Consumer) closeLink() {
	c.gen++
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			c.logger.Debug("link close", "err", err)
		}
		c.link = nil
	}
	c.remote = ""
	c.ice = ICENew
	c.linkState = LinkNew
	c.connType = ""
}

// release drops the link and everything rendered from it
func (c *Consumer) release() {
	c.reconnector.Reset()
	c.attempt = 0
	c.closeLink()
	c.renderer.Clear()
}

func (c *Consumer) shutdown() {
	if c.activated {
		c.release()
		c.send(signal.Message{Event: signal.MsgLeaveRoom, Room: c.room})
		c.activated = false
		c.transition(StateClosed)
	}
	c.reconnector.Reset()
	c.publish()
}

func (c *Consumer) handlers(gen int) LinkHandlers {
	return LinkHandlers{
		OnCandidate: func(ci webrtc.ICECandidateInit) {
			c.post(func() {
				if gen == c.gen {
					c.sendCandidate(ci)
				}
			})
		},
		OnICEState: func(s ICEState) {
			c.post(func() {
				if gen == c.gen {
					c.onICEState(s)
				}
			})
		},
		OnLinkState: func(s LinkState) {
			c.post(func() {
				if gen == c.gen {
					c.onLinkState(s)
				}
			})
		},
		OnTrack: func(track TrackReader) {
			// runs on pion's track goroutine until the track ends
			c.pump(track)
		},
	}
}

// pump feeds a received track into the renderer
func (c *Consumer) pump(track TrackReader) {
	codec := track.Codec()
	c.logger.Info("receiving track", "track", track.ID(), "codec", codec.MimeType)
	if err := c.renderer.Start(track.ID(), codec); err != nil {
		c.logger.Warn("renderer refused track", "track", track.ID(), "err", err)
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			c.logger.Debug("track ended", "track", track.ID(), "err", err)
			return
		}
		if err := c.renderer.WritePacket(track.ID(), pkt); err != nil {
			c.logger.Debug("renderer write failed", "err", err)
		}
	}
}

func (c *Consumer) sendCandidate(ci webrtc.ICECandidateInit) {
	body, err := EncodeCandidate(ci)
	if err != nil {
		c.logger.Warn("dropping local candidate", "err", err)
		return
	}
	c.send(signal.NewSignal(c.room, signal.KindCandidate, body))
}

func (c *Consumer) observe() Observation {
	return Observation{
		Active:  c.linkActive(),
		State:   c.state,
		ICE:     c.ice,
		Link:    c.linkState,
		Pending: c.reconnector.Pending(),
	}
}

func (c *Consumer) onICEState(s ICEState) {
	c.ice = s
	c.apply(Decide(c.observe(), TriggerICE))
	c.publish()
}

func (c *Consumer) onLinkState(s LinkState) {
	c.linkState = s
	if s == LinkConnected && c.link != nil {
		c.connType = c.link.ConnectionType()
	}
	c.apply(Decide(c.observe(), TriggerLink))
	c.publish()
}

func (c *Consumer) onReconnectDue(attempt int) {
	if attempt != c.attempt {
		return
	}
	c.apply(Decide(c.observe(), TriggerTimer))
	c.publish()
}

func (c *Consumer) apply(a Action) {
	switch a {
	case ActionMarkLive:
		c.transition(StateLive)
		c.reconnector.Reset()
		c.attempt = 0
		c.err = nil
		c.logger.Info("receiving broadcast", "room", c.room, "producer", c.remote, "connection", c.connType)
	case ActionRestartICE:
		// only the offerer can restart ICE
		c.logger.Info("requesting ICE restart", "room", c.room)
		c.send(signal.NewSignal(c.room, signal.KindICERestart, ""))
	case ActionScheduleReconnect:
		c.scheduleReconnect()
	case ActionReconnect:
		c.logger.Info("rebuilding link", "room", c.room, "attempt", c.attempt)
		c.attempt = 0
		c.closeLink()
		c.renderer.Clear()
		c.awaitOffer()
	}
}

func (c *Consumer) scheduleReconnect() {
	c.transition(StateFailed)
	attempt, err := c.reconnector.Schedule()
	if err != nil {
		c.exhausted = true
		c.attempt = 0
		c.err = newError("reconnect", c.room, err)
		c.closeLink()
		c.renderer.Clear()
		c.logger.Error("giving up on broadcast", "room", c.room, "err", err)
		return
	}
	if attempt > 0 {
		c.attempt = attempt
		c.logger.Info("reconnect scheduled", "room", c.room, "attempt", attempt, "delay", c.cfg.ReconnectDelay)
	}
}

// linkBroken treats a negotiation error as a failed link
func (c *Consumer) linkBroken(err error) {
	c.logger.Warn("negotiation failed", "err", err)
	c.err = err
	c.linkState = LinkFailed
	c.apply(Decide(c.observe(), TriggerLink))
	c.publish()
}

func (c *Consumer) handleEvent(ev signal.Event) {
	switch ev.Kind {
	case signal.EventConnected:
		c.signalingUp = true
		reconnected := c.relayLost
		c.relayLost = false
		if reconnected && c.activated {
			// a new relay connection has a new id and no room
			c.release()
			c.exhausted = false
			c.transition(StateJoined)
			c.send(signal.Message{Event: signal.MsgJoinRoom, Room: c.room})
			c.awaitOffer()
		}
		c.publish()
	case signal.EventDisconnected, signal.EventClosed:
		c.signalingUp = false
		c.relayLost = true
		if c.activated {
			c.release()
			if c.state == StateNegotiating || c.state == StateLive {
				c.transition(StateFailed)
			}
			if ev.Kind == signal.EventClosed {
				c.err = newError("signal", c.room, ev.Err)
			}
		}
		c.publish()
	case signal.EventReconnecting:
		c.logger.Info("reconnecting to relay", "attempt", ev.Attempt, "max", ev.MaxAttempts)
	case signal.EventMessage:
		c.handleMessage(ev.Message)
	}
}

func (c *Consumer) handleMessage(msg signal.Message) {
	if !c.activated {
		return
	}

	switch msg.Event {
	case signal.MsgSignal:
		if msg.Signal == nil || msg.Signal.TargetRoom != c.room {
			return
		}
		c.handleSignal(msg.From, msg.Signal)
	case signal.MsgStopBroadcast:
		if msg.Room != c.room {
			return
		}
		if c.remote != "" && msg.From != c.remote {
			c.logger.Debug("ignoring stop from another producer", "from", msg.From)
			return
		}
		c.logger.Info("broadcast stopped by producer", "room", c.room)
		c.release()
		c.transition(StateClosed)
		c.publish()
	case signal.MsgContentUpdate:
		if msg.Room == c.room {
			c.renderer.ShowContent(msg.URL)
		}
	case signal.MsgJoined:
		c.logger.Debug("joined room", "room", msg.Room, "id", msg.ID)
	case signal.MsgError:
		c.logger.Warn("relay error", "error", msg.Error)
	}
}

func (c *Consumer) handleSignal(from string, sig *signal.Signal) {
	switch sig.Kind {
	case signal.KindOffer:
		c.handleOffer(from, sig)
	case signal.KindCandidate:
		if c.link == nil || from != c.remote {
			return
		}
		ci, err := DecodeCandidate(sig.Body)
		if err != nil {
			c.logger.Warn("bad remote candidate", "from", from, "err", err)
			return
		}
		if err := c.link.AddCandidate(ci); err != nil {
			c.logger.Warn("failed to add remote candidate", "err", err)
		}
	}
}

// handleOffer answers an offer. Only an ICE-restart offer from the bound
// producer on an unbroken link is applied in place; any other offer comes
// from a fresh peer connection and gets a fresh link.
func (c *Consumer) handleOffer(from string, sig *signal.Signal) {
	sdp := sig.Body
	inPlace := sig.Restart && c.link != nil && from == c.remote && !c.linkState.Broken()

	if !inPlace {
		if c.link != nil {
			c.closeLink()
			c.renderer.Clear()
		}
		c.gen++
		link, err := c.cfg.NewLink(c.handlers(c.gen))
		if err != nil {
			c.transition(StateNegotiating)
			c.linkBroken(negotiationError("answer", c.room, err))
			return
		}
		c.link = link
		c.remote = from
		c.reconnector.Reset()
		c.attempt = 0
		c.transition(StateNegotiating)
	}

	answer, err := c.link.AcceptOffer(sdp)
	if err != nil {
		c.linkBroken(negotiationError("answer", c.room, fmt.Errorf("offer from %s: %w", from, err)))
		return
	}
	c.send(signal.NewSignal(c.room, signal.KindAnswer, answer))
	c.logger.Info("answered offer", "room", c.room, "producer", from, "restart", inPlace)
	c.publish()
}
