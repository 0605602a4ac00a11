package peer

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomaslejdung/peepcast/pkg/signal"
)

func TestCandidateRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	in := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 192.168.1.20 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}

	body, err := EncodeCandidate(in)
	require.NoError(t, err)
	assert.Contains(t, body, `"candidate":"candidate:1`)

	out, err := DecodeCandidate(body)
	require.NoError(t, err)
	assert.Equal(t, in.Candidate, out.Candidate)
	require.NotNil(t, out.SDPMid)
	assert.Equal(t, "0", *out.SDPMid)
}

func TestDecodeCandidateRejectsGarbage(t *testing.T) {
	_, err := DecodeCandidate("not json")
	assert.Error(t, err)

	_, err = DecodeCandidate(`{"sdpMid":"0"}`)
	assert.Error(t, err)
}

func TestICEConfig(t *testing.T) {
	cfg := ICEConfig{}.WebRTCConfig()
	assert.Len(t, cfg.ICEServers, 3)
	assert.Equal(t, webrtc.ICETransportPolicyAll, cfg.ICETransportPolicy)

	cfg = ICEConfig{TURNServer: "turn:turn.example.com:3478", TURNUser: "u", TURNPass: "p", ForceRelay: true}.WebRTCConfig()
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, cfg.ICETransportPolicy)

	cfg = ICEConfig{NoSTUN: true}.WebRTCConfig()
	assert.Empty(t, cfg.ICEServers)
}

func TestPionLinkBuffersEarlyCandidates(t *testing.T) {
	factory := NewPionLinkFactory(ICEConfig{NoSTUN: true, Loopback: true})
	l, err := factory(LinkHandlers{})
	require.NoError(t, err)
	defer l.Close()

	mid := "0"
	require.NoError(t, l.AddCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host", SDPMid: &mid}))

	pl := l.(*pionLink)
	pl.mu.Lock()
	assert.Len(t, pl.pending, 1)
	pl.mu.Unlock()

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "close is idempotent")
}

// loopback wires a producer and a consumer with real pion links to an
// in-process relay
type loopback struct {
	ctx      context.Context
	producer *Producer
	consumer *Consumer
	prodID   string
	consID   string
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	relay := signal.NewServer(signal.NewRegistry(), signal.DefaultServerConfig(), quietLogger())
	prodPipe := relay.Pipe()
	consPipe := relay.Pipe()
	t.Cleanup(func() {
		prodPipe.Close()
		consPipe.Close()
	})

	links := NewPionLinkFactory(ICEConfig{NoSTUN: true, Loopback: true})
	lb := &loopback{
		ctx:      ctx,
		producer: NewProducer(ProducerConfig{Signaler: prodPipe, NewLink: links, Logger: quietLogger()}),
		consumer: NewConsumer(ConsumerConfig{Signaler: consPipe, NewLink: links, Logger: quietLogger()}),
		prodID:   prodPipe.ID(),
		consID:   consPipe.ID(),
	}
	go lb.producer.Run(ctx)
	go lb.consumer.Run(ctx)
	return lb
}

func (lb *loopback) share(t *testing.T, room string) *fakeSource {
	t.Helper()
	require.NoError(t, lb.producer.Select(lb.ctx))
	src := newFakeSource(t)
	require.NoError(t, lb.producer.Share(lb.ctx, room, src.acquire))
	return src
}

func (lb *loopback) waitLive(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return lb.producer.Status().State == StateLive && lb.consumer.Status().State == StateLive
	}, 10*time.Second, 20*time.Millisecond,
		"producer=%s consumer=%s", lb.producer.Status().Label(), lb.consumer.Status().Label())

	assert.Equal(t, lb.consID, lb.producer.Status().Remote)
	assert.Equal(t, lb.prodID, lb.consumer.Status().Remote)
}

// TestLoopbackBroadcast negotiates a real pion link between a producer and a
// consumer that was already waiting in the room
func TestLoopbackBroadcast(t *testing.T) {
	lb := newLoopback(t)

	require.NoError(t, lb.consumer.Activate(lb.ctx, "pid3"))
	src := lb.share(t, "pid3")
	lb.waitLive(t)

	require.NoError(t, lb.producer.Stop(lb.ctx))
	require.Eventually(t, func() bool {
		return lb.consumer.Status().State == StateClosed
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, src.closed.Load())
}

// TestLoopbackLateViewer has the producer offer to an empty room first; the
// consumer's ready brings a fresh offer
func TestLoopbackLateViewer(t *testing.T) {
	lb := newLoopback(t)

	lb.share(t, "Outbound Dock")
	require.Eventually(t, func() bool {
		return lb.producer.Status().State == StateNegotiating
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, lb.consumer.Activate(lb.ctx, "Outbound Dock"))
	lb.waitLive(t)

	// stays live rather than renegotiating again
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateLive, lb.producer.Status().State)
	assert.Equal(t, StateLive, lb.consumer.Status().State)
}

func TestICEConfigAPIRegistersCodecs(t *testing.T) {
	api, err := ICEConfig{NoSTUN: true}.API()
	require.NoError(t, err)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.AddTrack(newFakeSource(t).track)
	require.NoError(t, err)
	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "VP8")
}
