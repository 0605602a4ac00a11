package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRelaysBetweenMembers(t *testing.T) {
	srv := NewServer(NewRegistry(), DefaultServerConfig(), quietLogger())
	producer := srv.Pipe()
	consumer := srv.Pipe()
	defer producer.Close()
	defer consumer.Close()

	assert.Equal(t, EventConnected, nextEvent(t, producer.Events()).Kind)
	assert.Equal(t, EventConnected, nextEvent(t, consumer.Events()).Kind)

	require.NoError(t, consumer.Send(Message{Event: MsgJoinRoom, Room: "pid3"}))
	ack := nextEvent(t, consumer.Events())
	assert.Equal(t, consumer.ID(), ack.Message.ID)

	require.NoError(t, producer.Send(Message{Event: MsgJoinRoom, Room: "pid3"}))
	nextEvent(t, producer.Events())

	require.NoError(t, producer.Send(NewSignal("pid3", KindOffer, "v=0")))
	ev := nextEvent(t, consumer.Events())
	assert.Equal(t, producer.ID(), ev.Message.From)
	assert.Equal(t, KindOffer, ev.Message.Signal.Kind)
}

func TestPipeCloseLeavesRoom(t *testing.T) {
	srv := NewServer(NewRegistry(), DefaultServerConfig(), quietLogger())
	p := srv.Pipe()
	require.NoError(t, p.Send(Message{Event: MsgJoinRoom, Room: "pid1"}))
	require.Equal(t, 1, srv.Registry().Len())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Equal(t, 0, srv.Registry().Len())
	assert.ErrorIs(t, p.Send(Message{Event: MsgJoinRoom, Room: "pid1"}), ErrClosed)
}
