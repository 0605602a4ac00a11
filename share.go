package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tomaslejdung/peepcast/pkg/peer"
)

var (
	shareOpts         Options
	flagShareSource   string
	flagShareContent  string
	flagShareStill    string
	flagShareNoTUI    bool
	flagShareEmbedded bool
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Broadcast a video source to a screen",
	Long: `Broadcast a video source to a screen. Without --screen the TUI lets you
pick one from the catalog.

Examples:
  peepcast share --source clip.ivf --screen pid1
  peepcast share --still frame.ivf --fps 5
  peepcast share --still frame.ivf --content /uploads/board.png --screen outbound
  peepcast share --embedded --source clip.ivf`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(withReconnectFlag(cmd, shareOpts))
		if err != nil {
			return err
		}
		acquire, err := sourceFromFlags(cfg.FPS)
		if err != nil {
			return err
		}
		if flagShareNoTUI && cfg.Screen == "" {
			return errNeedScreen
		}
		return runShare(cmd.Context(), cfg, acquire)
	},
}

func init() {
	bindNetworkFlags(shareCmd, &shareOpts)
	f := shareCmd.Flags()
	f.StringVar(&shareOpts.Screen, "screen", "", "screen to broadcast to (see `peepcast screens`)")
	f.StringVar(&flagShareSource, "source", "", "IVF clip to play in a loop")
	f.StringVar(&flagShareStill, "still", "", "IVF file whose first frame is shown as a still image")
	f.StringVar(&flagShareContent, "content", "", "image URL sent to viewers as a content update")
	f.BoolVar(&flagShareNoTUI, "no-tui", false, "print status lines instead of running the TUI")
	f.BoolVar(&flagShareEmbedded, "embedded", false, "run the signal relay inside this process")
	shareCmd.MarkFlagsMutuallyExclusive("source", "still")
}

var errNeedScreen = errors.New("--no-tui needs a screen")

// sourceFromFlags picks the media source for the broadcast
func sourceFromFlags(fps int) (peer.AcquireFunc, error) {
	logger := slog.Default().With("component", "source")
	switch {
	case flagShareSource != "":
		return peer.IVFFile(flagShareSource, fps, logger), nil
	case flagShareStill != "":
		return peer.StillFrame(flagShareStill, fps, logger), nil
	default:
		return nil, errors.New("nothing to share: pass --source or --still")
	}
}

func runShare(parent context.Context, cfg Config, acquire peer.AcquireFunc) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	signaler, disconnect, err := connect(ctx, cfg, flagShareEmbedded)
	if err != nil {
		return err
	}
	defer disconnect()

	onStatus, statuses := statusFeed()
	producer := peer.NewProducer(peer.ProducerConfig{
		Signaler:      signaler,
		NewLink:       peer.NewPionLinkFactory(cfg.ICE),
		MaxReconnects: cfg.MaxReconnects,
		Logger:        slog.Default().With("component", "producer"),
		OnStatus:      onStatus,
	})

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() { cancel(producer.Run(runCtx)) }()

	s := producerSession{p: producer, acquire: acquire, content: flagShareContent}
	if flagShareNoTUI {
		err = runHeadless(runCtx, s, cfg.Screen, statuses)
	} else {
		if err := producer.Select(runCtx); err != nil {
			return err
		}
		err = RunTUI(runCtx, s, cfg)
	}
	if err != nil {
		return err
	}
	return relayLost(runCtx)
}

// relayLost turns a manager that stopped because the relay went away for
// good into an error
func relayLost(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, peer.ErrClosed) {
		return fmt.Errorf("lost the signal relay: %w", cause)
	}
	return nil
}
