// Command server runs the peepcast signal relay on its own, for cloud
// deployments where PORT is set by the platform.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
)

func main() {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:           "peepcast-relay",
		Short:         "peepcast signal relay",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sig.LoadServerConfig(configPath)
			if err != nil {
				return err
			}
			// Check for PORT env var (for cloud deployments)
			if cfg, err = cfg.WithPort(os.Getenv("PORT")); err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				if cfg, err = cfg.WithPort(strconv.Itoa(port)); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := sig.NewServer(sig.NewRegistry(), cfg, slog.Default())
			return server.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "relay config file (TOML)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "server port")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := cmd.Execute(); err != nil {
		slog.Error("relay stopped", "err", err)
		os.Exit(1)
	}
}
