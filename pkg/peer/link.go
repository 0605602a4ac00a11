package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// TrackReader is the read side of a received media track
type TrackReader interface {
	ID() string
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// LinkHandlers receive a link's asynchronous events. They are called from
// pion's goroutines and must not block.
type LinkHandlers struct {
	OnCandidate func(webrtc.ICECandidateInit)
	OnICEState  func(ICEState)
	OnLinkState func(LinkState)
	OnTrack     func(TrackReader)
}

// Link is one peer connection as the negotiation managers see it
type Link interface {
	AddTrack(track webrtc.TrackLocal) error
	// CreateOffer creates an offer, sets it locally and returns its SDP
	CreateOffer(iceRestart bool) (string, error)
	// AcceptOffer applies a remote offer and returns the local answer SDP
	AcceptOffer(sdp string) (string, error)
	AcceptAnswer(sdp string) error
	// AddCandidate applies a remote candidate, holding it until a remote
	// description exists
	AddCandidate(c webrtc.ICECandidateInit) error
	// ConnectionType reports "direct", "relay" or "unknown"
	ConnectionType() string
	Close() error
}

// LinkFactory builds a fresh link wired to handlers
type LinkFactory func(h LinkHandlers) (Link, error)

// EncodeCandidate serializes a candidate for a signal body
func EncodeCandidate(c webrtc.ICECandidateInit) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode candidate: %w", err)
	}
	return string(data), nil
}

// DecodeCandidate parses a candidate signal body
func DecodeCandidate(body string) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return c, fmt.Errorf("failed to decode candidate: %w", err)
	}
	if c.Candidate == "" {
		return c, errors.New("empty candidate")
	}
	return c, nil
}

// pionLink is a Link backed by a pion PeerConnection
type pionLink struct {
	pc     *webrtc.PeerConnection
	closed atomic.Bool

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// NewPionLinkFactory creates links using cfg's ICE servers
func NewPionLinkFactory(cfg ICEConfig) LinkFactory {
	config := cfg.WebRTCConfig()
	return func(h LinkHandlers) (Link, error) {
		// one API per link so no MediaEngine is shared between connections
		api, err := cfg.API()
		if err != nil {
			return nil, err
		}
		pc, err := api.NewPeerConnection(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create peer connection: %w", err)
		}
		l := &pionLink{pc: pc}
		l.wire(h)
		return l, nil
	}
}

func (l *pionLink) wire(h LinkHandlers) {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil || l.closed.Load() || h.OnCandidate == nil {
			return
		}
		h.OnCandidate(c.ToJSON())
	})

	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if l.closed.Load() || h.OnICEState == nil {
			return
		}
		h.OnICEState(iceStateFrom(s))
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if l.closed.Load() || h.OnLinkState == nil {
			return
		}
		h.OnLinkState(linkStateFrom(s))
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if l.closed.Load() || h.OnTrack == nil {
			return
		}
		h.OnTrack(track)
	})
}

func (l *pionLink) AddTrack(track webrtc.TrackLocal) error {
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	// Read incoming RTCP so interceptors run
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (l *pionLink) CreateOffer(iceRestart bool) (string, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
		// Candidates for the new credentials must wait for the new answer
		l.mu.Lock()
		l.remoteSet = false
		l.mu.Unlock()
	}

	offer, err := l.pc.CreateOffer(opts)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return offer.SDP, nil
}

func (l *pionLink) AcceptOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}
	if err := l.flushCandidates(); err != nil {
		return "", err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return answer.SDP, nil
}

func (l *pionLink) AcceptAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return l.flushCandidates()
}

func (l *pionLink) AddCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.remoteSet {
		l.pending = append(l.pending, c)
		return nil
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

// flushCandidates applies candidates that arrived before the remote description
func (l *pionLink) flushCandidates() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.remoteSet = true
	var errs []error
	for _, c := range l.pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			errs = append(errs, fmt.Errorf("failed to add ICE candidate: %w", err))
		}
	}
	l.pending = nil
	return errors.Join(errs...)
}

// ConnectionType checks if connection is direct or relayed
func (l *pionLink) ConnectionType() string {
	stats := l.pc.GetStats()

	for _, stat := range stats {
		candidatePair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || candidatePair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		local, ok := stats[candidatePair.LocalCandidateID].(webrtc.ICECandidateStats)
		if !ok {
			continue
		}
		switch local.CandidateType {
		case webrtc.ICECandidateTypeRelay:
			return "relay"
		case webrtc.ICECandidateTypeHost, webrtc.ICECandidateTypeSrflx, webrtc.ICECandidateTypePrflx:
			return "direct"
		}
	}
	return "unknown"
}

func (l *pionLink) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.pc.Close()
}
