package peer

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestProducerTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateSelecting, true},
		{StateIdle, StateNegotiating, false},
		{StateSelecting, StateNegotiating, true},
		{StateSelecting, StateIdle, true},
		{StateNegotiating, StateLive, true},
		{StateLive, StateNegotiating, true},
		{StateLive, StateFailed, true},
		{StateFailed, StateLive, true},
		{StateLive, StateStopped, true},
		{StateStopped, StateSelecting, true},
		{StateStopped, StateLive, false},
		{StateLive, StateAwaitingOffer, false},
		{StateIdle, StateClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, RoleProducer.CanTransition(tt.from, tt.to))
		})
	}
}

func TestConsumerTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateJoined, true},
		{StateIdle, StateNegotiating, false},
		{StateJoined, StateAwaitingOffer, true},
		{StateAwaitingOffer, StateNegotiating, true},
		{StateNegotiating, StateLive, true},
		{StateLive, StateFailed, true},
		{StateFailed, StateAwaitingOffer, true},
		{StateLive, StateJoined, true},
		{StateLive, StateClosed, true},
		{StateClosed, StateNegotiating, true},
		{StateClosed, StateLive, false},
		{StateJoined, StateSelecting, false},
		{StateLive, StateStopped, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, RoleConsumer.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "awaiting-offer", StateAwaitingOffer.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "producer", RoleProducer.String())
	assert.Equal(t, "consumer", RoleConsumer.String())
}

func TestICETransitions(t *testing.T) {
	assert.True(t, ICENew.CanTransition(ICEChecking))
	assert.True(t, ICEChecking.CanTransition(ICEConnected))
	assert.True(t, ICEConnected.CanTransition(ICEChecking), "restart")
	assert.True(t, ICEFailed.CanTransition(ICEChecking), "restart after failure")
	assert.False(t, ICEFailed.CanTransition(ICEConnected))
	assert.False(t, ICENew.CanTransition(ICEConnected))
	assert.False(t, ICEClosed.CanTransition(ICEChecking))

	assert.True(t, ICEConnected.Healthy())
	assert.True(t, ICECompleted.Healthy())
	assert.False(t, ICEDisconnected.Healthy())
}

func TestLinkStateBroken(t *testing.T) {
	for _, s := range []LinkState{LinkDisconnected, LinkFailed, LinkClosed} {
		assert.True(t, s.Broken(), s.String())
	}
	for _, s := range []LinkState{LinkNew, LinkConnecting, LinkConnected} {
		assert.False(t, s.Broken(), s.String())
	}
}

func TestPionStateMapping(t *testing.T) {
	assert.Equal(t, LinkConnected, linkStateFrom(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, LinkFailed, linkStateFrom(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, LinkNew, linkStateFrom(webrtc.PeerConnectionStateNew))
	assert.Equal(t, LinkNew, linkStateFrom(webrtc.PeerConnectionState(0)), "zero value")

	assert.Equal(t, ICEFailed, iceStateFrom(webrtc.ICEConnectionStateFailed))
	assert.Equal(t, ICECompleted, iceStateFrom(webrtc.ICEConnectionStateCompleted))
	assert.Equal(t, ICENew, iceStateFrom(webrtc.ICEConnectionStateNew))
}
