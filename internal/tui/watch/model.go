package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/smoked-tofu/internal/checks"
	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/events"
)

const (
	maxEventLog       = 50
	healthInterval    = 5 * time.Second
	reconnectInterval = 3 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	client *Client

	width  int
	height int

	health    HealthState
	tracker   *Tracker
	eventLog  []events.Event
	lastID    int64
	activity  Activity
	lastError string

	theme      Theme
	deliveries table.Model
	detail     viewport.Model

	hubEvents chan events.Event
	now       func() time.Time
}

// New creates a watch model reading from the ops API at apiURL.
func New(apiURL, apiKey string) *Model {
	ctx, cancel := context.WithCancel(context.Background())

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Delivery", Width: 10},
			{Title: "Repository", Width: 28},
			{Title: "Ref", Width: 18},
			{Title: "Commits", Width: 8},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		ctx:        ctx,
		cancel:     cancel,
		client:     NewClient(apiURL, apiKey),
		tracker:    NewTracker(),
		eventLog:   make([]events.Event, 0, maxEventLog),
		theme:      NewDefaultTheme(),
		deliveries: t,
		detail:     viewport.New(80, 6),
		hubEvents:  make(chan events.Event, 100),
		now:        time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.ctx, m.client, 0, m.hubEvents),
		receiveNextEvent(m.ctx, m.hubEvents),
		func() tea.Msg { return fetchHealth(m.ctx, m.client) },
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.deliveries, cmd = m.deliveries.Update(msg)
		m.refreshDetail()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deliveries.SetWidth(max(m.width-6, 20))
		m.deliveries.SetHeight(max(m.height/4, 4))
		m.detail.Width = max(m.width-6, 20)
		m.detail.Height = max(m.height/5, 3)
		m.refreshDetail()

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.activity.OnEvent(m.now())
		m.tracker.Apply(e)
		m.refreshRows()

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.ctx, m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.HistoryEnabled = msg.HistoryEnabled
		m.health.Subscribers = msg.Subscribers
		m.health.Connected = true
		m.health.LastCheck = m.now()
		return m, m.pollHealth()

	case streamClosedMsg:
		if m.ctx.Err() != nil {
			return m, nil
		}
		if msg.lastID > m.lastID {
			m.lastID = msg.lastID
		}
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		// The pending receiveNextEvent keeps reading from hubEvents, which
		// the next subscription feeds.
		return m, tea.Tick(reconnectInterval, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribe(m.ctx, m.client, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, m.pollHealth()
	}

	return m, nil
}

func (m Model) pollHealth() tea.Cmd {
	return tea.Tick(healthInterval, func(time.Time) tea.Msg {
		return fetchHealth(m.ctx, m.client)
	})
}

func (m *Model) refreshRows() {
	list := m.tracker.Deliveries()
	rows := make([]table.Row, 0, len(list))
	for _, d := range list {
		rows = append(rows, table.Row{
			m.statusSymbol(d),
			shortID(d.ID),
			d.Repository,
			strings.TrimPrefix(d.Ref, "refs/heads/"),
			fmt.Sprintf("%d/%d", len(d.Outcomes), d.Commits),
			m.elapsed(d),
		})
	}
	m.deliveries.SetRows(rows)
	m.refreshDetail()
}

func (m *Model) refreshDetail() {
	list := m.tracker.Deliveries()
	cursor := m.deliveries.Cursor()
	if cursor < 0 || cursor >= len(list) {
		m.detail.SetContent(m.theme.Dim.Render("  No delivery selected"))
		return
	}
	m.detail.SetContent(renderDetail(list[cursor], m.theme))
}

func (m Model) statusSymbol(d *DeliveryState) string {
	switch {
	case !d.Done():
		return m.theme.StatusRunning.Render("◉")
	case d.Failed():
		return m.theme.StatusFailed.Render("✗")
	default:
		return m.theme.StatusOK.Render("●")
	}
}

func (m Model) elapsed(d *DeliveryState) string {
	if d.StartedAt.IsZero() {
		return "-"
	}
	end := d.FinishedAt
	if end.IsZero() {
		end = m.now()
	}
	return end.Sub(d.StartedAt).Round(10 * time.Millisecond).String()
}

// renderDetail lists the commit outcomes of one delivery.
func renderDetail(d *DeliveryState, theme Theme) string {
	lines := []string{theme.Highlight.Render(fmt.Sprintf("%s  %s %s", d.ID, d.Repository, d.Ref))}
	for _, o := range d.Outcomes {
		style := theme.StatusOK
		if o.Stage != dispatch.StageCompleted || o.Conclusion != string(checks.ConclusionSuccess) {
			style = theme.StatusFailed
		}
		line := fmt.Sprintf("  %s  %-14s", shortSHA(o.CommitID), o.Stage)
		if o.Conclusion != "" {
			line += " " + o.Conclusion
		}
		if o.ExitCode != nil {
			line += fmt.Sprintf(" (exit %d)", *o.ExitCode)
		}
		if o.CheckRunID != 0 {
			line += fmt.Sprintf(" check #%d", o.CheckRunID)
		}
		if o.Error != "" {
			line += ": " + o.Error
		}
		lines = append(lines, style.Render(line))
	}
	if !d.Done() && d.Commits > len(d.Outcomes) {
		lines = append(lines, theme.StatusRunning.Render(
			fmt.Sprintf("  %d commit(s) pending", d.Commits-len(d.Outcomes))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}
	innerWidth := m.width - 4
	now := m.now()

	header := renderHeader(m.health, m.activity, m.tracker.Totals(), m.theme, m.width, now)

	list := m.theme.Dim.Render("  Waiting for deliveries...")
	if m.tracker.Len() > 0 {
		list = m.deliveries.View()
	}
	deliveries := m.theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("DELIVERIES"), list),
	)
	detail := m.theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("COMMITS"), m.detail.View()),
	)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	parts := []string{header, deliveries, detail, eventStream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select delivery"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
