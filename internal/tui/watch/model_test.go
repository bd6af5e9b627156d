package watch

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel() Model {
	m := New("http://127.0.0.1:1", "k")
	m.now = func() time.Time { return base.Add(time.Minute) }
	return *m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestModel_EventUpdatesState(t *testing.T) {
	m := newTestModel()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, cmd := update(t, m, eventMsg(mkEvent(t, 5, events.TypeDeliveryStarted, "d-1", map[string]any{
		"repository": "acme/widgets", "ref": "refs/heads/main", "commits": 1,
	})))
	assert.NotNil(t, cmd, "keeps receiving events")
	assert.Equal(t, int64(5), m.lastID)
	assert.True(t, m.health.Connected)
	assert.Len(t, m.eventLog, 1)
	assert.Equal(t, activityDots, m.activity.Dots())

	m, _ = update(t, m, eventMsg(mkEvent(t, 6, events.TypeCommitOutcome, "d-1", dispatch.Outcome{
		CommitID: "abc1234def", Stage: dispatch.StageCompleted, Conclusion: "success", CheckRunID: 7,
	})))
	require.Len(t, m.deliveries.Rows(), 1)
	row := m.deliveries.Rows()[0]
	assert.Equal(t, "d-1", row[1])
	assert.Equal(t, "acme/widgets", row[2])
	assert.Equal(t, "main", row[3])
	assert.Equal(t, "1/1", row[4])

	view := m.View()
	assert.Contains(t, view, "SMOKED-TOFU WATCH")
	assert.Contains(t, view, "acme/widgets")
	assert.Contains(t, view, "abc1234")
}

func TestModel_EventLogBounded(t *testing.T) {
	m := newTestModel()
	for i := range maxEventLog + 3 {
		m, _ = update(t, m, eventMsg(mkEvent(t, int64(i+1), events.TypeDeliveryStarted, "d-1", map[string]any{"commits": 0})))
	}
	assert.Len(t, m.eventLog, maxEventLog)
	assert.Equal(t, int64(maxEventLog+3), m.eventLog[0].ID)
}

func TestModel_StreamClosedSchedulesReconnect(t *testing.T) {
	m := newTestModel()
	m.lastID = 3
	m.health.Connected = true

	m, cmd := update(t, m, streamClosedMsg{lastID: 8, err: errors.New("EOF")})
	assert.NotNil(t, cmd)
	assert.False(t, m.health.Connected)
	assert.Equal(t, int64(8), m.lastID)
	assert.Contains(t, m.lastError, "reconnecting")

	_, cmd = update(t, m, reconnectMsg{})
	assert.NotNil(t, cmd)
}

func TestModel_HealthAndErrors(t *testing.T) {
	m := newTestModel()

	m, cmd := update(t, m, healthMsg{Status: "ok", UptimeSeconds: 90, HistoryEnabled: true, Subscribers: 2})
	assert.NotNil(t, cmd, "schedules the next poll")
	assert.Equal(t, "ok", m.health.Status)
	assert.True(t, m.health.HistoryEnabled)
	assert.Equal(t, 2, m.health.Subscribers)

	m, cmd = update(t, m, errMsg{errors.New("connection refused")})
	assert.NotNil(t, cmd)
	assert.Equal(t, "connection refused", m.lastError)
}

func TestModel_QuitCancelsStreams(t *testing.T) {
	m := newTestModel()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Error(t, m.ctx.Err())

	// A stream closing after quit does not reconnect.
	_, cmd = update(t, m, streamClosedMsg{})
	assert.Nil(t, cmd)
}

func TestModel_ViewBeforeSize(t *testing.T) {
	assert.Equal(t, "Initializing watch...", newTestModel().View())
}

func TestRenderDetail(t *testing.T) {
	d := &DeliveryState{
		ID:         "d-1",
		Repository: "acme/widgets",
		Commits:    3,
		Outcomes: []dispatch.Outcome{
			{CommitID: "aaaaaaaaaa", Stage: dispatch.StageCompleted, Conclusion: "failure", ExitCode: intPtr(2), CheckRunID: 11},
			{CommitID: "bbbbbbbbbb", Stage: dispatch.StageExecuteFailed, CheckRunID: 12, Error: "exec: not found"},
		},
	}
	out := renderDetail(d, NewDefaultTheme())
	assert.Contains(t, out, "aaaaaaa")
	assert.Contains(t, out, "(exit 2)")
	assert.Contains(t, out, "check #11")
	assert.Contains(t, out, "exec: not found")
	assert.Contains(t, out, "1 commit(s) pending")
}
