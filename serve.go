package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
)

var (
	flagServeConfig string
	flagServePort   int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Run the signal relay",
	Long: `Run the signal relay that sharers and viewers meet on.

The listen address comes from the TOML config file, then the PORT
environment variable, then --port.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := ""
		if cmd.Flags().Changed("port") {
			port = strconv.Itoa(flagServePort)
		}
		cfg, err := relayConfig(flagServeConfig, port)
		if err != nil {
			return err
		}
		return runRelay(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagServeConfig, "config", "c", "", "relay config file (TOML)")
	serveCmd.Flags().IntVarP(&flagServePort, "port", "p", 8080, "listen port")
}

// relayConfig loads the relay settings: file, then PORT, then the flag
func relayConfig(path, port string) (sig.ServerConfig, error) {
	cfg, err := sig.LoadServerConfig(path)
	if err != nil {
		return cfg, err
	}
	if cfg, err = cfg.WithPort(os.Getenv("PORT")); err != nil {
		return cfg, fmt.Errorf("PORT: %w", err)
	}
	return cfg.WithPort(port)
}

func runRelay(ctx context.Context, cfg sig.ServerConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := sig.NewServer(sig.NewRegistry(), cfg, slog.Default())
	fmt.Printf("Starting signal relay on http://localhost%s\n", cfg.Addr)
	fmt.Println("Press Ctrl+C to stop")
	return server.ListenAndServe(ctx)
}
