package peer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/tomaslejdung/peepcast/pkg/signal"
)

// DefaultReconnectDelay is the wait before a full link rebuild
const DefaultReconnectDelay = 3 * time.Second

// ProducerConfig wires a Producer to its collaborators
type ProducerConfig struct {
	Signaler       Signaler
	NewLink        LinkFactory
	ReconnectDelay time.Duration
	MaxReconnects  int // 0 means unbounded
	Clock          Clock
	Logger         *slog.Logger
	OnStatus       func(Status)
}

// Producer broadcasts a Source to whichever consumer answers in the target
// room. It owns at most one PeerLink at a time.
type Producer struct {
	cfg         ProducerConfig
	logger      *slog.Logger
	reconnector *Reconnector
	statusBox   statusBox
	loop

	// Everything below is owned by the Run goroutine.
	state        State
	room         string
	source       Source
	link         Link
	gen          int
	remote       string
	offerPending bool
	ice          ICEState
	linkState    LinkState
	connType     string
	attempt      int
	exhausted    bool
	signalingUp  bool
	relayLost    bool // set between a transport drop and the next connect
	err          error
}

// NewProducer creates an idle producer. Call Run before anything else.
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Producer{
		cfg:    cfg,
		logger: cfg.Logger.With("role", RoleProducer.String()),
		loop:   newLoop(),
		state:  StateIdle,
	}
	p.statusBox.onStatus = cfg.OnStatus
	p.reconnector = NewReconnector(cfg.ReconnectDelay, cfg.MaxReconnects, cfg.Clock, func(attempt int) {
		p.post(func() { p.onReconnectDue(attempt) })
	})
	p.publish()
	return p
}

// Run processes signaling and link events until ctx is cancelled or the
// signaling transport closes for good. The broadcast is stopped on return.
func (p *Producer) Run(ctx context.Context) error {
	defer p.exit()

	events := p.cfg.Signaler.Events()
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return ctx.Err()
		case fn := <-p.inbox:
			fn()
		case ev, ok := <-events:
			if !ok {
				p.shutdown()
				return ErrClosed
			}
			p.handleEvent(ev)
		}
	}
}

// Status returns the latest status snapshot
func (p *Producer) Status() Status {
	return p.statusBox.get()
}

// Select enters screen selection
func (p *Producer) Select(ctx context.Context) error {
	return p.do(ctx, func() error {
		if p.state == StateSelecting {
			return nil
		}
		if !p.transition(StateSelecting) {
			return newError("select", p.room, fmt.Errorf("%w: %s", ErrInvalidState, p.state))
		}
		p.err = nil
		p.publish()
		return nil
	})
}

// Share starts broadcasting to room. From Selecting it acquires a source
// first; a failed acquisition returns the producer to Idle and is not
// retried. While already broadcasting it moves the existing source to room.
func (p *Producer) Share(ctx context.Context, room string, acquire AcquireFunc) error {
	if room == "" {
		return newError("share", room, ErrNoRoom)
	}

	needSource := false
	err := p.do(ctx, func() error {
		switch p.state {
		case StateSelecting:
			needSource = true
			return nil
		case StateNegotiating, StateLive, StateFailed:
			if p.source == nil {
				return newError("share", room, ErrNotActive)
			}
			if p.room != room {
				p.retarget(room)
			}
			return nil
		default:
			return newError("share", room, fmt.Errorf("%w: %s", ErrInvalidState, p.state))
		}
	})
	if err != nil || !needSource {
		return err
	}

	src, err := acquire(ctx)
	if err != nil {
		shareErr := newError("share", room, fmt.Errorf("%w: %w", ErrSourceUnavailable, err))
		p.do(context.Background(), func() error {
			if p.state == StateSelecting {
				p.transition(StateIdle)
				p.err = shareErr
				p.publish()
			}
			return nil
		})
		p.logger.Warn("media source unavailable", "room", room, "err", err)
		return shareErr
	}

	err = p.do(ctx, func() error {
		if p.state != StateSelecting {
			return newError("share", room, ErrNotActive)
		}
		p.source = src
		p.room = room
		p.err = nil
		p.exhausted = false
		p.reconnector.Reset()
		p.join()
		p.negotiate()
		return nil
	})
	if err != nil {
		src.Close()
	}
	return err
}

// Stop ends the broadcast: tracks stop, the link closes and the room is told.
// It returns once everything is released.
func (p *Producer) Stop(ctx context.Context) error {
	return p.do(ctx, func() error {
		switch p.state {
		case StateSelecting:
			p.transition(StateIdle)
			p.publish()
			return nil
		case StateNegotiating, StateLive, StateFailed:
			p.stopBroadcast()
			p.transition(StateStopped)
			p.publish()
			return nil
		default:
			return nil
		}
	})
}

// PushContent sends a static image URL to the consumers of the active room
func (p *Producer) PushContent(ctx context.Context, url string) error {
	return p.do(ctx, func() error {
		if p.room == "" || p.source == nil {
			return newError("content", "", ErrNotActive)
		}
		return p.cfg.Signaler.Send(signal.Message{Event: signal.MsgContentUpdate, Room: p.room, URL: url})
	})
}

func (p *Producer) active() bool {
	if p.source == nil || p.exhausted {
		return false
	}
	switch p.state {
	case StateNegotiating, StateLive, StateFailed:
		return true
	}
	return false
}

func (p *Producer) transition(to State) bool {
	if !RoleProducer.CanTransition(p.state, to) {
		p.logger.Debug("ignored state change", "from", p.state, "to", to)
		return false
	}
	if p.state != to {
		p.logger.Info("state changed", "from", p.state, "to", to, "room", p.room)
	}
	p.state = to
	return true
}

func (p *Producer) publish() {
	s := Status{
		Role:        RoleProducer,
		State:       p.state,
		ICE:         p.ice,
		Link:        p.linkState,
		Room:        p.room,
		Remote:      p.remote,
		Attempt:     p.attempt,
		MaxAttempts: p.reconnector.Max(),
		ConnType:    p.connType,
		Signaling:   p.signalingUp,
		Err:         p.err,
	}
	p.statusBox.set(s)
}

func (p *Producer) send(msg signal.Message) {
	if err := p.cfg.Signaler.Send(msg); err != nil {
		p.logger.Warn("failed to send to relay", "event", msg.Event, "err", err)
	}
}

func (p *Producer) join() {
	p.send(signal.Message{Event: signal.MsgJoinRoom, Room: p.room})
}

// closeLink releases the active link. Events from it are ignored afterwards.
func (p *Producer) closeLink() {
	p.gen++
	if p.link != nil {
		if err := p.link.Close(); err != nil {
			p.logger.Debug("link close", "err", err)
		}
		p.link = nil
	}
	p.remote = ""
	p.offerPending = false
	p.ice = ICENew
	p.linkState = LinkNew
	p.connType = ""
}

func (p *Producer) handlers(gen int) LinkHandlers {
	return LinkHandlers{
		OnCandidate: func(c webrtc.ICECandidateInit) {
			p.post(func() {
				if gen == p.gen {
					p.sendCandidate(c)
				}
			})
		},
		OnICEState: func(s ICEState) {
			p.post(func() {
				if gen == p.gen {
					p.onICEState(s)
				}
			})
		},
		OnLinkState: func(s LinkState) {
			p.post(func() {
				if gen == p.gen {
					p.onLinkState(s)
				}
			})
		},
	}
}

// negotiate builds a fresh link and offers it to the room
func (p *Producer) negotiate() {
	p.closeLink()
	p.transition(StateNegotiating)
	gen := p.gen

	link, err := p.cfg.NewLink(p.handlers(gen))
	if err != nil {
		p.linkBroken(negotiationError("offer", p.room, err))
		return
	}
	p.link = link

	for _, track := range p.source.Tracks() {
		if err := link.AddTrack(track); err != nil {
			p.linkBroken(negotiationError("offer", p.room, err))
			return
		}
	}

	sdp, err := link.CreateOffer(false)
	if err != nil {
		p.linkBroken(negotiationError("offer", p.room, err))
		return
	}
	p.offerPending = true
	p.send(signal.NewSignal(p.room, signal.KindOffer, sdp))
	p.publish()
}

// restartICE renegotiates candidates on the existing link
func (p *Producer) restartICE() {
	if p.link == nil {
		return
	}
	p.logger.Info("restarting ICE", "room", p.room)
	sdp, err := p.link.CreateOffer(true)
	if err != nil {
		p.linkBroken(negotiationError("ice-restart", p.room, err))
		return
	}
	p.offerPending = true
	msg := signal.NewSignal(p.room, signal.KindOffer, sdp)
	msg.Signal.Restart = true
	p.send(msg)
}

// retarget moves the broadcast to another room, keeping the source
func (p *Producer) retarget(room string) {
	p.logger.Info("switching target room", "from", p.room, "to", room)
	p.reconnector.Reset()
	p.attempt = 0
	p.closeLink()
	p.send(signal.Message{Event: signal.MsgStopBroadcast, Room: p.room})
	p.room = room
	p.join()
	p.negotiate()
}

// stopBroadcast releases the link and the source and tells the room
func (p *Producer) stopBroadcast() {
	p.reconnector.Reset()
	p.attempt = 0
	p.closeLink()
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			p.logger.Warn("failed to stop source", "err", err)
		}
		p.source = nil
	}
	if p.room != "" {
		p.send(signal.Message{Event: signal.MsgStopBroadcast, Room: p.room})
	}
}

func (p *Producer) shutdown() {
	if p.active() {
		p.stopBroadcast()
		p.transition(StateStopped)
	} else if p.source != nil {
		p.source.Close()
		p.source = nil
	}
	p.reconnector.Reset()
	p.publish()
}

func (p *Producer) sendCandidate(c webrtc.ICECandidateInit) {
	body, err := EncodeCandidate(c)
	if err != nil {
		p.logger.Warn("dropping local candidate", "err", err)
		return
	}
	p.send(signal.NewSignal(p.room, signal.KindCandidate, body))
}

func (p *Producer) observe() Observation {
	return Observation{
		Active:  p.active(),
		State:   p.state,
		ICE:     p.ice,
		Link:    p.linkState,
		Pending: p.reconnector.Pending(),
	}
}

func (p *Producer) onICEState(s ICEState) {
	if !p.ice.CanTransition(s) && p.ice != s {
		p.logger.Debug("unexpected ICE transition", "from", p.ice, "to", s)
	}
	p.ice = s
	p.apply(Decide(p.observe(), TriggerICE))
	p.publish()
}

func (p *Producer) onLinkState(s LinkState) {
	p.linkState = s
	if s == LinkConnected && p.link != nil {
		p.connType = p.link.ConnectionType()
	}
	p.apply(Decide(p.observe(), TriggerLink))
	p.publish()
}

func (p *Producer) onReconnectDue(attempt int) {
	if attempt != p.attempt {
		return
	}
	p.apply(Decide(p.observe(), TriggerTimer))
	p.publish()
}

// apply carries out a policy decision
func (p *Producer) apply(a Action) {
	switch a {
	case ActionMarkLive:
		p.transition(StateLive)
		p.reconnector.Reset()
		p.attempt = 0
		p.err = nil
		p.logger.Info("broadcast live", "room", p.room, "consumer", p.remote, "connection", p.connType)
	case ActionRestartICE:
		p.restartICE()
	case ActionScheduleReconnect:
		p.scheduleReconnect()
	case ActionReconnect:
		p.logger.Info("rebuilding link", "room", p.room, "attempt", p.attempt)
		p.attempt = 0
		p.negotiate()
	}
}

// linkBroken treats a negotiation error as a failed link
func (p *Producer) linkBroken(err error) {
	p.logger.Warn("negotiation failed", "err", err)
	p.err = err
	p.closeLink()
	p.linkState = LinkFailed
	p.apply(Decide(p.observe(), TriggerLink))
	p.publish()
}

func (p *Producer) scheduleReconnect() {
	p.transition(StateFailed)
	attempt, err := p.reconnector.Schedule()
	if err != nil {
		p.exhausted = true
		p.attempt = 0
		p.err = newError("reconnect", p.room, err)
		p.closeLink()
		p.logger.Error("giving up on broadcast", "room", p.room, "err", err)
		return
	}
	if attempt > 0 {
		p.attempt = attempt
		p.logger.Info("reconnect scheduled", "room", p.room, "attempt", attempt, "delay", p.cfg.ReconnectDelay)
	}
}

func (p *Producer) handleEvent(ev signal.Event) {
	switch ev.Kind {
	case signal.EventConnected:
		p.signalingUp = true
		reconnected := p.relayLost
		p.relayLost = false
		if reconnected && p.active() {
			p.logger.Info("relay reconnected, renegotiating", "room", p.room)
			p.reconnector.Reset()
			p.attempt = 0
			p.join()
			p.negotiate()
		}
		p.publish()
	case signal.EventDisconnected:
		p.signalingUp = false
		p.relayLost = true
		if p.active() {
			// the link cannot be renegotiated without the relay
			p.reconnector.Reset()
			p.attempt = 0
			p.closeLink()
			p.transition(StateFailed)
		}
		p.publish()
	case signal.EventClosed:
		p.signalingUp = false
		p.relayLost = true
		if p.active() {
			p.closeLink()
			p.transition(StateFailed)
			p.err = newError("signal", p.room, ev.Err)
		}
		p.publish()
	case signal.EventReconnecting:
		p.logger.Info("reconnecting to relay", "attempt", ev.Attempt, "max", ev.MaxAttempts)
	case signal.EventMessage:
		p.handleMessage(ev.Message)
	}
}

func (p *Producer) handleMessage(msg signal.Message) {
	switch msg.Event {
	case signal.MsgSignal:
		if msg.Signal == nil || msg.Signal.TargetRoom != p.room {
			return
		}
		p.handleSignal(msg.From, msg.Signal)
	case signal.MsgJoined:
		p.logger.Debug("joined room", "room", msg.Room, "id", msg.ID)
	case signal.MsgError:
		p.logger.Warn("relay error", "error", msg.Error)
	}
}

func (p *Producer) handleSignal(from string, sig *signal.Signal) {
	if !p.active() {
		return
	}

	switch sig.Kind {
	case signal.KindAnswer:
		if p.link == nil || !p.offerPending {
			p.logger.Debug("ignoring unexpected answer", "from", from)
			return
		}
		if p.remote != "" && p.remote != from {
			p.logger.Debug("ignoring answer from unbound consumer", "from", from)
			return
		}
		if err := p.link.AcceptAnswer(sig.Body); err != nil {
			p.linkBroken(negotiationError("answer", p.room, err))
			return
		}
		p.remote = from
		p.offerPending = false
		p.logger.Info("answer accepted", "room", p.room, "consumer", from)
		p.publish()

	case signal.KindCandidate:
		if p.link == nil || from != p.remote {
			return
		}
		c, err := DecodeCandidate(sig.Body)
		if err != nil {
			p.logger.Warn("bad remote candidate", "from", from, "err", err)
			return
		}
		if err := p.link.AddCandidate(c); err != nil {
			p.logger.Warn("failed to add remote candidate", "err", err)
		}

	case signal.KindReady:
		if p.state == StateLive && p.remote != "" && p.remote != from {
			p.logger.Debug("busy with another consumer", "from", from)
			return
		}
		p.logger.Info("consumer ready, sending offer", "room", p.room, "consumer", from)
		p.reconnector.Reset()
		p.attempt = 0
		p.negotiate()

	case signal.KindICERestart:
		if from == p.remote {
			p.restartICE()
		}
	}
}
