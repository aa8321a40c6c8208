package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/conductor-sh/conductor/internal/conductor"
)

// maxFeedLines bounds the retained event feed.
const maxFeedLines = 200

// refreshMsg triggers a poll of the conductor's state.
type refreshMsg time.Time

// eventMsg wraps one conductor event for the update loop.
type eventMsg conductor.ConductorEvent

// eventsClosedMsg signals the conductor's event channel closed.
type eventsClosedMsg struct{}

// chiefRow is the per-chief display state, built from turn events.
type chiefRow struct {
	lastAction string
	lastReward float64
	lastTick   uint64
	failed     bool
}

// Monitor is the bubbletea model for the live conductor view.
type Monitor struct {
	cond    *conductor.Conductor
	refresh time.Duration

	table table.Model
	rows  map[string]*chiefRow
	feed  []string

	width    int
	height   int
	quitting bool
}

// NewMonitor creates a monitor over a running conductor.
func NewMonitor(c *conductor.Conductor, refresh time.Duration) *Monitor {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Domain", Width: 10},
			{Title: "Action", Width: 28},
			{Title: "Reward", Width: 9},
			{Title: "Tick", Width: 8},
		}),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("240"))
	t.SetStyles(styles)

	return &Monitor{
		cond:    c,
		refresh: refresh,
		table:   t,
		rows:    make(map[string]*chiefRow),
	}
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.scheduleRefresh(), m.waitForEvent())
}

// scheduleRefresh ticks the display at the configured rate.
func (m *Monitor) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// waitForEvent blocks on the conductor's event stream.
func (m *Monitor) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.cond.Events()
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			if m.cond.IsPaused() {
				m.cond.Resume()
			} else {
				m.cond.Pause()
			}
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case refreshMsg:
		m.rebuildTable()
		return m, m.scheduleRefresh()

	case eventMsg:
		m.applyEvent(conductor.ConductorEvent(msg))
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// applyEvent folds one conductor event into the display state.
func (m *Monitor) applyEvent(ev conductor.ConductorEvent) {
	switch ev.Type {
	case conductor.EventTurnCompleted:
		row := m.row(ev.Chief)
		row.lastAction = ev.Action.String()
		row.lastReward = ev.Reward
		row.lastTick = ev.Tick
		row.failed = false

	case conductor.EventTurnFailed:
		row := m.row(ev.Chief)
		row.lastTick = ev.Tick
		row.failed = true
		m.pushFeed(ev.Timestamp, eventErrorStyle.Render(
			fmt.Sprintf("%s turn failed: %v", ev.Chief, ev.Error)))

	case conductor.EventUnknownAction:
		m.pushFeed(ev.Timestamp, eventErrorStyle.Render(
			fmt.Sprintf("%s chose unknown action %s", ev.Chief, ev.Action.Tag)))

	case conductor.EventPaused:
		m.pushFeed(ev.Timestamp, pausedStyle.Render("conductor paused"))

	case conductor.EventResumed:
		m.pushFeed(ev.Timestamp, "conductor resumed")

	case conductor.EventCycleCompleted:
		if ev.ActionsTaken > 0 {
			m.pushFeed(ev.Timestamp, fmt.Sprintf("tick %d: %d actions in %s",
				ev.Tick, ev.ActionsTaken, ev.Duration.Round(time.Millisecond)))
		}
	}
}

// row returns the display row for a chief, creating it on first sight.
func (m *Monitor) row(chief string) *chiefRow {
	if chief == "" {
		chief = "?"
	}
	r, ok := m.rows[chief]
	if !ok {
		r = &chiefRow{}
		m.rows[chief] = r
	}
	return r
}

// pushFeed appends one line to the bounded event feed.
func (m *Monitor) pushFeed(at time.Time, line string) {
	stamp := eventTimeStyle.Render(at.Format("15:04:05"))
	m.feed = append(m.feed, stamp+" "+line)
	if len(m.feed) > maxFeedLines {
		m.feed = m.feed[len(m.feed)-maxFeedLines:]
	}
}

// rebuildTable refreshes table rows in registration order.
func (m *Monitor) rebuildTable() {
	domains := m.cond.Chiefs()
	rows := make([]table.Row, 0, len(domains))
	for _, d := range domains {
		r := m.row(d)
		action := r.lastAction
		if r.failed {
			action = "FAILED"
		}
		if action == "" {
			action = "-"
		}
		rows = append(rows, table.Row{
			d,
			action,
			fmt.Sprintf("%+.2f", r.lastReward),
			fmt.Sprintf("%d", r.lastTick),
		})
	}
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetHeight(len(rows) + 1)
	}
}

// View implements tea.Model.
func (m *Monitor) View() string {
	if m.quitting {
		return ""
	}

	title := titleStyle.Render("conductor monitor")
	if m.cond.IsPaused() {
		title += "  " + pausedStyle.Render("PAUSED")
	}

	feedHeight := m.height - m.table.Height() - 6
	if feedHeight < 3 {
		feedHeight = 3
	}
	start := 0
	if len(m.feed) > feedHeight {
		start = len(m.feed) - feedHeight
	}
	feed := ""
	for _, line := range m.feed[start:] {
		feed += line + "\n"
	}

	footer := footerStyle.Render(fmt.Sprintf(
		"tick %d | cycle ema %.1fms | p pause/resume | q quit",
		m.cond.TickCount(), m.cond.CycleEMA()*1000))

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s",
		title, tableBorderStyle.Render(m.table.View()), feed, footer)
}

// Run starts the monitor and blocks until it exits or the context is
// cancelled.
func Run(ctx context.Context, c *conductor.Conductor, refresh time.Duration) error {
	p := tea.NewProgram(NewMonitor(c, refresh),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
