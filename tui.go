package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tomaslejdung/peepcast/pkg/peer"
	sig "github.com/tomaslejdung/peepcast/pkg/signal"
	"github.com/tomaslejdung/peepcast/pkg/settings"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	urlStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	viewerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")) // Cyan for keys

	keySepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Dim separator

	activeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)

	boxTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
)

// Messages
type tickMsg time.Time

type actionDoneMsg struct {
	op  string
	err error
}

// screenItem is a catalog entry in the selection list
type screenItem struct {
	sig.Screen
}

func (i screenItem) Title() string       { return i.Name }
func (i screenItem) Description() string { return i.ID }
func (i screenItem) FilterValue() string { return i.ID + " " + i.Name }

type tuiOption func(*model)

// withStats shows what the viewer receives
func withStats(stats *peer.StatsRenderer) tuiOption {
	return func(m *model) { m.stats = stats }
}

type model struct {
	ctx     context.Context
	session session
	cfg     Config
	stats   *peer.StatsRenderer

	screens list.Model
	spinner spinner.Model

	status    peer.Status
	busy      string // operation in flight
	lastError string
	quitting  bool
}

func initialModel(ctx context.Context, s session, cfg Config, opts ...tuiOption) model {
	items := make([]list.Item, 0, len(sig.Screens()))
	for _, screen := range sig.Screens() {
		items = append(items, screenItem{screen})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(lipgloss.Color("10")).BorderForeground(lipgloss.Color("10"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(lipgloss.Color("8")).BorderForeground(lipgloss.Color("10"))

	screens := list.New(items, delegate, 40, 14)
	screens.Title = "Screens"
	screens.Styles.Title = boxTitleStyle
	screens.SetShowStatusBar(false)
	screens.SetShowHelp(false)
	screens.SetFilteringEnabled(false)

	// Preselect the requested screen, else the one used last time
	want := cfg.Screen
	if want == "" {
		if saved, err := settings.Load(); err == nil {
			want = saved.LastScreen
		}
	}
	for i, item := range items {
		if item.(screenItem).ID == want {
			screens.Select(i)
		}
	}

	m := model{
		ctx:     ctx,
		session: s,
		cfg:     cfg,
		screens: screens,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(statusStyle)),
		status:  s.Status(),
	}
	if cfg.Screen != "" {
		m.busy = "Connecting to " + cfg.Screen
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tickCmd()}
	if m.cfg.Screen != "" {
		cmds = append(cmds, m.choose(m.cfg.Screen))
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// choose starts sharing to or watching room in the background
func (m model) choose(room string) tea.Cmd {
	s, ctx, cfg := m.session, m.ctx, m.cfg
	return func() tea.Msg {
		err := s.Choose(ctx, room)
		if err == nil {
			remember(cfg, room)
		}
		return actionDoneMsg{op: "choose", err: err}
	}
}

func (m model) stop() tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		return actionDoneMsg{op: "stop", err: s.Stop(ctx)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.screens.SetSize(msg.Width/2, max(6, msg.Height-10))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.ctx.Err() != nil {
			m.quitting = true
			return m, tea.Quit
		}
		m.status = m.session.Status()
		if m.status.Err != nil && m.busy == "" {
			m.lastError = m.status.Err.Error()
		}
		return m, tickCmd()

	case actionDoneMsg:
		m.busy = ""
		m.status = m.session.Status()
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.lastError = msg.err.Error()
		} else {
			m.lastError = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "enter", " ":
		if m.busy != "" {
			return m, nil
		}
		item, ok := m.screens.SelectedItem().(screenItem)
		if !ok {
			return m, nil
		}
		m.busy = "Connecting to " + item.Name
		return m, m.choose(item.ID)

	case "s":
		if m.busy != "" || m.status.Room == "" {
			return m, nil
		}
		m.busy = "Stopping"
		return m, m.stop()
	}

	var cmd tea.Cmd
	m.screens, cmd = m.screens.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("peepcast"))
	if m.session.Role() == peer.RoleProducer {
		b.WriteString(dimStyle.Render(" - share a screen"))
	} else {
		b.WriteString(dimStyle.Render(" - view a screen"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	columns := []string{activeBoxStyle.Render(m.screens.View())}
	if m.stats != nil {
		columns = append(columns, m.renderStats())
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	b.WriteString("\n")

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

// stateBadge is the bracketed mode indicator at the start of the status bar
func stateBadge(st peer.Status) string {
	switch {
	case st.Reconnecting():
		if st.MaxAttempts > 0 {
			return errorStyle.Render(fmt.Sprintf("[RECONNECTING %d/%d]", st.Attempt, st.MaxAttempts))
		}
		return errorStyle.Render(fmt.Sprintf("[RECONNECTING %d]", st.Attempt))
	case !st.Signaling:
		return errorStyle.Render("[RELAY DOWN]")
	case st.State == peer.StateLive:
		return selectedStyle.Render("[LIVE]")
	case st.State == peer.StateFailed:
		return errorStyle.Render("[FAILED]")
	default:
		return dimStyle.Render("[" + strings.ToUpper(st.State.String()) + "]")
	}
}

func (m model) renderStatus() string {
	var b strings.Builder
	st := m.status

	b.WriteString(stateBadge(st))
	b.WriteString("  ")

	b.WriteString(statusStyle.Render("Relay: "))
	b.WriteString(urlStyle.Render(m.cfg.SignalURL))
	b.WriteString("\n")

	switch {
	case m.busy != "":
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(normalStyle.Render(m.busy))
		b.WriteString("  ")
		b.WriteString(dimStyle.Render("please wait..."))
	case st.Room != "":
		name := st.Room
		if screen, ok := sig.LookupScreen(st.Room); ok {
			name = screen.Name
		}
		if st.Role == peer.RoleProducer {
			b.WriteString(statusStyle.Render("Sharing to: "))
		} else {
			b.WriteString(statusStyle.Render("Watching: "))
		}
		b.WriteString(selectedStyle.Render(name))
		b.WriteString("  ")

		b.WriteString(statusStyle.Render("Peer: "))
		switch {
		case st.Remote != "":
			b.WriteString(viewerStyle.Render(truncate(st.Remote, 12)))
		case st.State == peer.StateNegotiating || st.State == peer.StateAwaitingOffer:
			b.WriteString(m.spinner.View())
			b.WriteString(dimStyle.Render(" waiting..."))
		default:
			b.WriteString(dimStyle.Render("none"))
		}

		if st.ConnType != "" {
			b.WriteString("  ")
			b.WriteString(statusStyle.Render("Path: "))
			b.WriteString(normalStyle.Render(st.ConnType))
		}
	default:
		b.WriteString(dimStyle.Render("Select a screen to start"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m model) renderStats() string {
	s := m.stats.Stats()

	var b strings.Builder
	b.WriteString(boxTitleStyle.Render("Received"))
	b.WriteString("\n\n")
	row := func(label, value string) {
		b.WriteString(statusStyle.Render(fmt.Sprintf("%-9s", label)))
		b.WriteString(normalStyle.Render(value))
		b.WriteString("\n")
	}
	row("Codec", orDash(s.Codec))
	row("Tracks", fmt.Sprintf("%d", s.Tracks))
	row("Packets", formatNumber(int64(s.Packets)))
	row("Data", formatBytes(int64(s.Bytes)))
	if !s.LastPacket.IsZero() {
		row("Last", formatDuration(time.Since(s.LastPacket))+" ago")
	}
	row("Image", orDash(s.Content))

	return activeBoxStyle.Render(b.String())
}

func (m model) renderHelp() string {
	sep := keySepStyle.Render("  ")

	var actions []string
	actions = append(actions, keyStyle.Render("↑/↓")+helpStyle.Render(" select"))
	if m.session.Role() == peer.RoleProducer {
		actions = append(actions, keyStyle.Render("enter")+helpStyle.Render(" share"))
	} else {
		actions = append(actions, keyStyle.Render("enter")+helpStyle.Render(" watch"))
	}
	if m.status.Room != "" {
		actions = append(actions, keyStyle.Render("s")+helpStyle.Render(" stop"))
	}
	actions = append(actions, keyStyle.Render("q")+helpStyle.Render(" quit"))

	return strings.Join(actions, sep)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// RunTUI runs the interactive screen until the user quits or ctx ends. The
// session is stopped on the way out.
func RunTUI(ctx context.Context, s session, cfg Config, opts ...tuiOption) error {
	// Write logs to file instead of corrupting TUI display
	restore := logToFile()
	defer restore()

	p := tea.NewProgram(
		initialModel(ctx, s, cfg, opts...),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, runErr := p.Run()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil && !errors.Is(err, peer.ErrClosed) {
		return err
	}

	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}
