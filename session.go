package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomaslejdung/peepcast/pkg/peer"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
)

// session is what the TUI and the headless runner drive. It hides whether
// this process produces or consumes.
type session interface {
	Role() peer.Role
	Status() peer.Status
	// Choose starts broadcasting to, or watching, room
	Choose(ctx context.Context, room string) error
	// Stop ends the broadcast or closes the viewer
	Stop(ctx context.Context) error
}

type producerSession struct {
	p       *peer.Producer
	acquire peer.AcquireFunc
	content string // image URL announced after each share
}

func (s producerSession) Role() peer.Role { return peer.RoleProducer }
func (s producerSession) Status() peer.Status { return s.p.Status() }

func (s producerSession) Choose(ctx context.Context, room string) error {
	switch s.p.Status().State {
	case peer.StateIdle, peer.StateStopped:
		if err := s.p.Select(ctx); err != nil {
			return err
		}
	}
	if err := s.p.Share(ctx, room, s.acquire); err != nil {
		return err
	}
	if s.content != "" {
		return s.p.PushContent(ctx, s.content)
	}
	return nil
}

func (s producerSession) Stop(ctx context.Context) error { return s.p.Stop(ctx) }

type consumerSession struct {
	c *peer.Consumer
}

func (s consumerSession) Role() peer.Role { return peer.RoleConsumer }
func (s consumerSession) Status() peer.Status { return s.c.Status() }

func (s consumerSession) Choose(ctx context.Context, room string) error {
	return s.c.Activate(ctx, room)
}

func (s consumerSession) Stop(ctx context.Context) error { return s.c.Close(ctx) }

// bindNetworkFlags registers the relay and ICE flags shared by share and view
func bindNetworkFlags(cmd *cobra.Command, o *Options) {
	f := cmd.Flags()
	f.StringVar(&o.SignalURL, "signal", "", "signal relay URL (env PEEPCAST_SIGNAL)")
	f.BoolVar(&o.Local, "local", false, "use the local relay ("+LocalSignalServer+")")
	f.StringVar(&o.Codec, "codec", "", "relay wire codec: json or msgpack")
	f.StringVar(&o.FPS, "fps", "", fpsHelp())
	f.StringVar(&o.TURNServer, "turn", "", "TURN server URL (e.g., turn:turn.example.com:3478)")
	f.StringVar(&o.TURNUser, "turn-user", "", "TURN server username")
	f.StringVar(&o.TURNPass, "turn-pass", "", "TURN server password")
	f.BoolVar(&o.ForceRelay, "force-relay", false, "force TURN relay (disable direct P2P)")
	f.Int("max-reconnects", 10, "full reconnect attempts before giving up, 0 for unbounded")
}

// withReconnectFlag copies --max-reconnects into o when it was given
func withReconnectFlag(cmd *cobra.Command, o Options) Options {
	if cmd.Flags().Changed("max-reconnects") {
		n, err := cmd.Flags().GetInt("max-reconnects")
		if err == nil {
			o.MaxReconnects = &n
		}
	}
	return o
}

// connect opens the relay transport. With embedded set a relay is started in
// this process and the manager talks to it through a pipe; remote viewers
// reach the same relay over websockets.
func connect(ctx context.Context, cfg Config, embedded bool) (peer.Signaler, func(), error) {
	if embedded {
		relayCfg, err := relayConfig("", "")
		if err != nil {
			return nil, nil, err
		}
		server := sig.NewServer(sig.NewRegistry(), relayCfg, slog.Default().With("component", "relay"))

		relayCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe(relayCtx) }()

		pipe := server.Pipe()
		return pipe, func() {
			pipe.Close()
			cancel()
			if err := <-errCh; err != nil {
				slog.Warn("embedded relay stopped", "err", err)
			}
		}, nil
	}

	opts := sig.DefaultClientOptions()
	opts.Codec = cfg.Codec
	opts.Logger = slog.Default().With("component", "signal")
	conn, err := sig.Dial(ctx, cfg.SignalURL, opts)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { conn.Close() }, nil
}

// statusFeed forwards manager status changes without ever blocking the
// manager; a slow reader misses intermediate states.
func statusFeed() (func(peer.Status), <-chan peer.Status) {
	ch := make(chan peer.Status, 16)
	return func(s peer.Status) {
		select {
		case ch <- s:
		default:
		}
	}, ch
}

// runHeadless prints status changes until ctx ends or reconnects run out
func runHeadless(ctx context.Context, s session, room string, statuses <-chan peer.Status) error {
	if err := s.Choose(ctx, room); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil && !errors.Is(err, peer.ErrClosed) {
			slog.Warn("failed to stop cleanly", "err", err)
		}
	}()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-statuses:
			if line := statusLine(st); line != last {
				fmt.Fprintln(os.Stdout, line)
				last = line
			}
			if errors.Is(st.Err, peer.ErrReconnectExhausted) {
				return st.Err
			}
		}
	}
}

// statusLine is the plain-text status for headless output
func statusLine(st peer.Status) string {
	line := fmt.Sprintf("[%s] %s", st.Role, st.Label())
	if st.Room != "" {
		line += " room=" + st.Room
	}
	if st.Remote != "" {
		line += " peer=" + st.Remote
	}
	if st.ConnType != "" {
		line += " path=" + st.ConnType
	}
	if !st.Signaling {
		line += " relay=down"
	}
	return line
}
