package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
)

var screensCmd = &cobra.Command{
	Use:   "screens",
	Short: "List the known screens",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"#", "Screen", "Name"})
		for i, s := range sig.Screens() {
			t.AppendRow(table.Row{i + 1, s.ID, s.Name})
		}
		t.Render()
	},
}
