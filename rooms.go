package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
)

var (
	flagRoomsSignal string
	flagRoomsLocal  bool
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Show the active rooms on a relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(Options{SignalURL: flagRoomsSignal, Local: flagRoomsLocal})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		rooms, err := fetchRooms(ctx, cfg.SignalURL)
		if err != nil {
			return err
		}
		fmt.Println(roomsTable(rooms))
		return nil
	},
}

func init() {
	roomsCmd.Flags().StringVar(&flagRoomsSignal, "signal", "", "signal relay URL")
	roomsCmd.Flags().BoolVar(&flagRoomsLocal, "local", false, "use the local relay ("+LocalSignalServer+")")
}

// roomsURL turns a relay URL (http, https, ws or wss) into its /rooms endpoint
func roomsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid signal URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported signal URL scheme %q", u.Scheme)
	}
	u.Path = "/rooms"
	u.RawQuery = ""
	return u.String(), nil
}

func fetchRooms(ctx context.Context, signalURL string) (sig.RoomsResponse, error) {
	var out sig.RoomsResponse

	endpoint, err := roomsURL(signalURL)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("relay answered %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode room list: %w", err)
	}
	return out, nil
}

func roomsTable(rooms sig.RoomsResponse) string {
	if len(rooms.Rooms) == 0 {
		return dimStyle.Render(fmt.Sprintf("No active rooms (%d connections)", rooms.Connections))
	}

	names := make([]string, 0, len(rooms.Rooms))
	for name := range rooms.Rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		label := ""
		if s, ok := sig.LookupScreen(name); ok {
			label = s.Name
		}
		rows = append(rows, []string{name, label, strconv.Itoa(rooms.Rooms[name])})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("12"))).
		Headers("Room", "Screen", "Members").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return boxTitleStyle
			}
			return normalStyle
		})
	return tbl.Render()
}
