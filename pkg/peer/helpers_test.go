package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
	"github.com/tomaslejdung/peepcast/pkg/signal"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSignaler records what a manager sends and lets tests inject events.
// events is unbuffered so an injected event has been picked up by the loop
// once the send returns.
type fakeSignaler struct {
	mu     sync.Mutex
	sent   []signal.Message
	events chan signal.Event
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{events: make(chan signal.Event)}
}

func (f *fakeSignaler) Send(msg signal.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSignaler) Events() <-chan signal.Event {
	return f.events
}

func (f *fakeSignaler) messages() []signal.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]signal.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSignaler) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// signals returns the kinds of sent signal messages in order
func (f *fakeSignaler) signals() []string {
	var kinds []string
	for _, m := range f.messages() {
		if m.Event == signal.MsgSignal && m.Signal != nil {
			kinds = append(kinds, m.Signal.Kind)
		}
	}
	return kinds
}

// events returns the event names of everything sent, in order
func (f *fakeSignaler) eventNames() []string {
	var names []string
	for _, m := range f.messages() {
		names = append(names, m.Event)
	}
	return names
}

func (f *fakeSignaler) inject(t *testing.T, ev signal.Event) {
	t.Helper()
	select {
	case f.events <- ev:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not take the event")
	}
}

func (f *fakeSignaler) injectSignal(t *testing.T, from, room, kind, body string) {
	t.Helper()
	msg := signal.NewSignal(room, kind, body)
	msg.From = from
	f.inject(t, signal.Event{Kind: signal.EventMessage, Message: msg})
}

// injectRestartOffer delivers an ICE-restart offer from a producer
func (f *fakeSignaler) injectRestartOffer(t *testing.T, from, room, sdp string) {
	t.Helper()
	msg := signal.NewSignal(room, signal.KindOffer, sdp)
	msg.Signal.Restart = true
	msg.From = from
	f.inject(t, signal.Event{Kind: signal.EventMessage, Message: msg})
}

// fakeLink is a scripted Link
type fakeLink struct {
	id int
	h  LinkHandlers

	mu             sync.Mutex
	tracks         int
	offers         []bool // ice restart flag per offer
	acceptedOffers []string
	answers        []string
	candidates     []webrtc.ICECandidateInit
	closed         bool

	offerErr  error
	answerErr error
}

func (l *fakeLink) AddTrack(webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks++
	return nil
}

func (l *fakeLink) CreateOffer(iceRestart bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offerErr != nil {
		return "", l.offerErr
	}
	l.offers = append(l.offers, iceRestart)
	return fmt.Sprintf("offer-%d-%d", l.id, len(l.offers)), nil
}

func (l *fakeLink) AcceptOffer(sdp string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offerErr != nil {
		return "", l.offerErr
	}
	l.acceptedOffers = append(l.acceptedOffers, sdp)
	return "answer-to-" + sdp, nil
}

func (l *fakeLink) AcceptAnswer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.answerErr != nil {
		return l.answerErr
	}
	l.answers = append(l.answers, sdp)
	return nil
}

func (l *fakeLink) AddCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) ConnectionType() string { return "direct" }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) offerFlags() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.offers...)
}

// linkRecorder is a LinkFactory that keeps every link it built
type linkRecorder struct {
	mu    sync.Mutex
	links []*fakeLink
	err   error
}

func (r *linkRecorder) factory(h LinkHandlers) (Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	l := &fakeLink{id: len(r.links) + 1, h: h}
	r.links = append(r.links, l)
	return l, nil
}

func (r *linkRecorder) nth(t *testing.T, i int) *fakeLink {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Greater(t, len(r.links), i, "link %d was never built", i)
	return r.links[i]
}

func (r *linkRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

func (r *linkRecorder) last(t *testing.T) *fakeLink {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.links, "no link was built")
	return r.links[len(r.links)-1]
}

// manualClock fires timers only when told to
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// pending counts armed timers
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every armed timer
func (c *manualClock) fire() int {
	c.mu.Lock()
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

// fakeSource hands out one real static track
type fakeSource struct {
	track  webrtc.TrackLocal
	closed atomic.Bool
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	require.NoError(t, err)
	return &fakeSource{track: track}
}

func (s *fakeSource) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{s.track} }

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSource) acquire(context.Context) (Source, error) {
	return s, nil
}

var errNoDisplay = errors.New("no display permission")

func failingAcquire(context.Context) (Source, error) {
	return nil, errNoDisplay
}

// fakeRenderer records what a consumer asked it to show
type fakeRenderer struct {
	mu      sync.Mutex
	clears  int
	content string
	packets int
}

func (r *fakeRenderer) Start(string, webrtc.RTPCodecParameters) error { return nil }

func (r *fakeRenderer) WritePacket(string, *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets++
	return nil
}

func (r *fakeRenderer) ShowContent(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = url
}

func (r *fakeRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.content = ""
}

func (r *fakeRenderer) snapshot() (clears int, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears, r.content
}

// barrier waits until everything queued on a manager's loop has run
func barrier(t *testing.T, l *loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.do(ctx, func() error { return nil }))
}
