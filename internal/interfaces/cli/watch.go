package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	"kilometers.ai/authclient/internal/core/events"
)

// WatchFlags holds command-line flags for the watch command
type WatchFlags struct {
	Path      string
	Interval  time.Duration
	MaxEvents int
}

// newWatchCommand creates the watch command
func newWatchCommand(container *CLIContainer) *cobra.Command {
	flags := &WatchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of polled requests and session events",
		Long: `Poll an endpoint at a fixed interval and show the outcome of each call
next to the client's session events: token refreshes, replayed requests and
forced logouts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), container, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Path, "path", "/api/profile", "Path to poll")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 2*time.Second, "Polling interval")
	cmd.Flags().IntVar(&flags.MaxEvents, "max-events", 20, "Maximum number of events to display")

	return cmd
}

// runWatch starts the terminal view
func runWatch(ctx context.Context, container *CLIContainer, flags *WatchFlags) error {
	if flags.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if container.Location != nil {
		container.Location.Set(flags.Path)
	}

	sub, cancel := container.Bus.Subscribe()
	defer cancel()

	model := newWatchModel(ctx, container, flags, sub)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}

// watchModel holds the state for the Bubble Tea view
type watchModel struct {
	ctx       context.Context
	container *CLIContainer
	flags     *WatchFlags
	sub       <-chan events.Event

	events     []events.Event
	lastPoll   pollResultMsg
	polls      int
	failures   int
	paused     bool
	loggedOut  bool
	lastUpdate time.Time
}

func newWatchModel(ctx context.Context, container *CLIContainer, flags *WatchFlags, sub <-chan events.Event) watchModel {
	return watchModel{
		ctx:        ctx,
		container:  container,
		flags:      flags,
		sub:        sub,
		lastUpdate: time.Now(),
	}
}

// tickMsg is sent every polling interval
type tickMsg time.Time

// busEventMsg carries one event from the bus
type busEventMsg events.Event

// busClosedMsg is sent when the subscription ends
type busClosedMsg struct{}

// pollResultMsg is the outcome of one poll
type pollResultMsg struct {
	at      time.Time
	status  int
	latency time.Duration
	traceID string
	err     error
}

// Init implements the Bubble Tea init method
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.waitForEvent(), m.tickCmd())
}

// Update implements the Bubble Tea update method
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			return m, nil
		case "r":
			return m, m.pollCmd()
		}

	case tickMsg:
		if m.paused {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.tickCmd(), m.pollCmd())

	case pollResultMsg:
		m.lastPoll = msg
		m.polls++
		if msg.err != nil {
			m.failures++
		}
		m.lastUpdate = msg.at
		return m, nil

	case busEventMsg:
		ev := events.Event(msg)
		m.events = append(m.events, ev)
		if limit := m.flags.MaxEvents; limit > 0 && len(m.events) > limit {
			m.events = m.events[len(m.events)-limit:]
		}
		switch ev.Topic {
		case events.AuthFailure:
			m.loggedOut = true
		case events.RefreshSucceeded:
			m.loggedOut = false
		}
		return m, m.waitForEvent()

	case busClosedMsg:
		return m, nil
	}

	return m, nil
}

// View implements the Bubble Tea view method
func (m watchModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderPoll(),
		m.renderEvents(),
		lipgloss.NewStyle().Foreground(lipgloss.Color("245")).
			Render("Controls: [Space] Pause/Resume | [r] Poll now | [q] Quit"),
	)
}

func (m watchModel) renderHeader() string {
	status := okStyle.Render("LIVE")
	if m.paused {
		status = warnStyle.Render("PAUSED")
	}
	if m.loggedOut {
		status = errStyle.Render("LOGGED OUT")
	}

	line := fmt.Sprintf("%s  %s every %s | polls: %d | failures: %d",
		titleStyle.Render("kmauth watch"),
		m.flags.Path,
		m.flags.Interval,
		m.polls,
		m.failures,
	)
	return lipgloss.JoinHorizontal(lipgloss.Left, line, "  ", status)
}

func (m watchModel) renderPoll() string {
	if m.polls == 0 {
		return "Waiting for first response..."
	}
	p := m.lastPoll
	if p.err != nil {
		return fmt.Sprintf("%s %s %s", p.at.Format("15:04:05"), errStyle.Render("error"), describeError(p.err))
	}
	return fmt.Sprintf("%s %s %s (%s) trace=%s",
		p.at.Format("15:04:05"),
		okStyle.Render(fmt.Sprintf("%d", p.status)),
		http.StatusText(p.status),
		p.latency.Round(time.Millisecond),
		p.traceID,
	)
}

func (m watchModel) renderEvents() string {
	if len(m.events) == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("240")).
			Render("\n  No session events yet.\n")
	}

	rows := []string{titleStyle.Render(fmt.Sprintf("%-8s │ %-18s │ %s", "TIME", "EVENT", "DETAIL"))}
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		rows = append(rows, fmt.Sprintf("%-8s │ %-18s │ %s",
			ev.Timestamp.Format("15:04:05"),
			topicStyle(ev.Topic).Render(string(ev.Topic)),
			eventDetail(ev),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func topicStyle(topic events.Topic) lipgloss.Style {
	switch topic {
	case events.AuthFailure, events.RefreshFailed:
		return errStyle
	case events.RefreshStarted:
		return warnStyle
	default:
		return okStyle
	}
}

func eventDetail(ev events.Event) string {
	var parts []string
	if ev.Reason != "" {
		parts = append(parts, ev.Reason)
	}
	if ev.Redirect != "" {
		parts = append(parts, "redirect="+ev.Redirect)
	}
	if ev.TraceID != "" {
		parts = append(parts, "trace="+ev.TraceID)
	}
	if ev.Topic == events.RefreshSucceeded || ev.Topic == events.RefreshFailed {
		parts = append(parts, fmt.Sprintf("queued=%d", ev.Queued))
	}
	return strings.Join(parts, " ")
}

func (m watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.flags.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) pollCmd() tea.Cmd {
	return func() tea.Msg {
		req := httpdomain.NewRequest(http.MethodGet, m.flags.Path, nil)
		resp, err := m.container.Client.Do(m.ctx, req)

		msg := pollResultMsg{at: time.Now(), traceID: req.TraceID, err: err}
		if resp != nil {
			msg.status = resp.StatusCode
			msg.latency = resp.Latency
		}
		return msg
	}
}

func (m watchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.sub
		if !ok {
			return busClosedMsg{}
		}
		return busEventMsg(ev)
	}
}
