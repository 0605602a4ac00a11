package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tomaslejdung/peepcast/pkg/peer"
)

var (
	viewOpts       Options
	flagViewRecord string
	flagViewNoTUI  bool
)

var viewCmd = &cobra.Command{
	Use:     "view [screen]",
	Aliases: []string{"v"},
	Short:   "Watch what is broadcast to a screen",
	Long: `Watch what is broadcast to a screen. Without an argument the TUI lets you
pick one.

Examples:
  peepcast view pid1
  peepcast view dockclerk --record dock.ivf --no-tui`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := withReconnectFlag(cmd, viewOpts)
		if len(args) == 1 {
			opts.Screen = args[0]
		}
		cfg, err := LoadConfig(opts)
		if err != nil {
			return err
		}
		if flagViewNoTUI && cfg.Screen == "" {
			return errNeedScreen
		}
		return runView(cmd.Context(), cfg)
	},
}

func init() {
	bindNetworkFlags(viewCmd, &viewOpts)
	f := viewCmd.Flags()
	f.StringVar(&flagViewRecord, "record", "", "also write received VP8 video to this IVF file")
	f.BoolVar(&flagViewNoTUI, "no-tui", false, "print status lines instead of running the TUI")
}

func runView(parent context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	signaler, disconnect, err := connect(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer disconnect()

	stats := peer.NewStatsRenderer()
	renderer := peer.Renderer(stats)
	if flagViewRecord != "" {
		renderer = peer.Renderers{stats, peer.NewIVFRecorder(flagViewRecord, slog.Default().With("component", "recorder"))}
	}

	onStatus, statuses := statusFeed()
	consumer := peer.NewConsumer(peer.ConsumerConfig{
		Signaler:      signaler,
		NewLink:       peer.NewPionLinkFactory(cfg.ICE),
		Renderer:      renderer,
		MaxReconnects: cfg.MaxReconnects,
		Logger:        slog.Default().With("component", "consumer"),
		OnStatus:      onStatus,
	})

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() { cancel(consumer.Run(runCtx)) }()

	s := consumerSession{c: consumer}
	if flagViewNoTUI {
		err = runHeadless(runCtx, s, cfg.Screen, statuses)
	} else {
		err = RunTUI(runCtx, s, cfg, withStats(stats))
	}
	if err != nil {
		return err
	}
	return relayLost(runCtx)
}
