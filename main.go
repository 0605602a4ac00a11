package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "peepcast",
	Short: "Broadcast a screen to a room of viewers over WebRTC",
	Long: `peepcast pushes one video source to a named screen (a room on the signal
relay). Viewers that activate the same screen receive it peer to peer.

Examples:
  peepcast serve                         # run a local signal relay
  peepcast share --local --source clip.ivf --screen pid1
  peepcast view pid1 --local
  peepcast screens`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(serveCmd, shareCmd, viewCmd, screensCmd, roomsCmd)
}

// Execute runs the root command. It is called once by main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	initLogging(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func main() {
	Execute()
}
