package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomaslejdung/peepcast/pkg/peer"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
	"github.com/tomaslejdung/peepcast/pkg/settings"
)

type fakeSession struct {
	role peer.Role

	mu        sync.Mutex
	status    peer.Status
	chosen    []string
	stops     int
	chooseErr error
}

func (s *fakeSession) Role() peer.Role { return s.role }

func (s *fakeSession) Status() peer.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSession) Choose(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chooseErr != nil {
		return s.chooseErr
	}
	s.chosen = append(s.chosen, room)
	s.status.Room = room
	s.status.State = peer.StateNegotiating
	return nil
}

func (s *fakeSession) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.status.State = peer.StateStopped
	return nil
}

func key(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T, s *fakeSession, cfg Config) model {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg.Codec = sig.JSON
	return initialModel(context.Background(), s, cfg)
}

func TestModelChoosesSelectedScreen(t *testing.T) {
	s := &fakeSession{role: peer.RoleProducer, status: peer.Status{Role: peer.RoleProducer, Signaling: true}}
	m := newTestModel(t, s, Config{SignalURL: "http://relay"})

	// move to the second screen and pick it
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.(model).Update(key("enter"))
	m = next.(model)
	require.NotNil(t, cmd)
	assert.NotEmpty(t, m.busy)

	next, _ = m.Update(cmd())
	m = next.(model)
	assert.Empty(t, m.busy)
	assert.Empty(t, m.lastError)
	assert.Equal(t, []string{"pid2"}, s.chosen)
	assert.Contains(t, m.View(), "Sharing to:")

	saved, err := settings.Load()
	require.NoError(t, err)
	assert.Equal(t, "pid2", saved.LastScreen)
}

func TestModelShowsChooseError(t *testing.T) {
	s := &fakeSession{role: peer.RoleProducer, chooseErr: errors.New("no display permission")}
	m := newTestModel(t, s, Config{})

	next, cmd := m.Update(key("enter"))
	next, _ = next.(model).Update(cmd())
	m = next.(model)

	assert.Equal(t, "no display permission", m.lastError)
	assert.Contains(t, m.View(), "no display permission")
}

func TestModelStop(t *testing.T) {
	s := &fakeSession{role: peer.RoleConsumer, status: peer.Status{Role: peer.RoleConsumer, Room: "pid1", State: peer.StateLive, Signaling: true}}
	m := newTestModel(t, s, Config{})

	next, cmd := m.Update(key("s"))
	require.NotNil(t, cmd)
	next.(model).Update(cmd())
	assert.Equal(t, 1, s.stops)
}

func TestModelStartsWithConfiguredScreen(t *testing.T) {
	s := &fakeSession{role: peer.RoleConsumer}
	m := newTestModel(t, s, Config{Screen: "outbound"})

	assert.Equal(t, "outbound", m.screens.SelectedItem().(screenItem).ID)
	assert.NotEmpty(t, m.busy)
}

func TestStateBadge(t *testing.T) {
	assert.Contains(t, stateBadge(peer.Status{Attempt: 2, MaxAttempts: 10, Signaling: true}), "[RECONNECTING 2/10]")
	assert.Contains(t, stateBadge(peer.Status{Attempt: 4, Signaling: true}), "[RECONNECTING 4]")
	assert.Contains(t, stateBadge(peer.Status{State: peer.StateLive}), "[RELAY DOWN]")
	assert.Contains(t, stateBadge(peer.Status{State: peer.StateLive, Signaling: true}), "[LIVE]")
	assert.Contains(t, stateBadge(peer.Status{State: peer.StateAwaitingOffer, Signaling: true}), "[AWAITING-OFFER]")
}

func TestStatusLine(t *testing.T) {
	line := statusLine(peer.Status{
		Role:        peer.RoleProducer,
		State:       peer.StateFailed,
		Room:        "pid1",
		Attempt:     1,
		MaxAttempts: 10,
		Signaling:   true,
	})
	assert.Equal(t, "[producer] reconnecting 1/10 room=pid1", line)

	line = statusLine(peer.Status{Role: peer.RoleConsumer, State: peer.StateLive, Room: "pid2", Remote: "abc", ConnType: "direct"})
	assert.Equal(t, "[consumer] live room=pid2 peer=abc path=direct relay=down", line)
}

func TestRoomsURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:8080":      "http://localhost:8080/rooms",
		"wss://relay.example.com/ws": "https://relay.example.com/rooms",
		"ws://relay:9000/ws?codec=x": "http://relay:9000/rooms",
	} {
		got, err := roomsURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := roomsURL("ftp://relay")
	assert.Error(t, err)
}

func TestFetchRooms(t *testing.T) {
	server := sig.NewServer(sig.NewRegistry(), sig.DefaultServerConfig(), nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	pipe := server.Pipe()
	defer pipe.Close()
	require.NoError(t, pipe.Send(sig.Message{Event: sig.MsgJoinRoom, Room: "pid4"}))

	rooms, err := fetchRooms(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"pid4": 1}, rooms.Rooms)

	out := roomsTable(rooms)
	assert.Contains(t, out, "pid4")
	assert.Contains(t, out, "PID 4")

	assert.Contains(t, roomsTable(sig.RoomsResponse{}), "No active rooms")
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "1.2K", formatNumber(1200))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "-", orDash(""))
}
