package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/smoked-tofu/internal/checks"
	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/events"
)

const maxEventLines = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= maxEventLines {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	typeStyle := theme.Dim
	switch e.Type {
	case events.TypeDeliveryStarted:
		typeStyle = theme.StatusRunning
	case events.TypeDeliveryFinished:
		typeStyle = theme.Highlight
	case events.TypeCommitOutcome:
		typeStyle = theme.StatusOK
		var o dispatch.Outcome
		if json.Unmarshal(e.Data, &o) == nil && (o.Stage != dispatch.StageCompleted || o.Conclusion != string(checks.ConclusionSuccess)) {
			typeStyle = theme.StatusFailed
		}
	}
	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))

	return fmt.Sprintf("%s %s [%s] %s", ts, typeName, shortID(e.DeliveryID), describeEvent(e))
}

// describeEvent extracts a brief description from the event payload.
func describeEvent(e events.Event) string {
	switch e.Type {
	case events.TypeDeliveryStarted:
		var data struct {
			Repository string `json:"repository"`
			Ref        string `json:"ref"`
			Commits    int    `json:"commits"`
		}
		if json.Unmarshal(e.Data, &data) == nil {
			return fmt.Sprintf("%s %s (%d commits)", data.Repository, data.Ref, data.Commits)
		}
	case events.TypeCommitOutcome:
		var o dispatch.Outcome
		if json.Unmarshal(e.Data, &o) == nil {
			parts := []string{shortSHA(o.CommitID), string(o.Stage)}
			if o.Conclusion != "" {
				parts = append(parts, o.Conclusion)
			}
			if o.Error != "" {
				parts = append(parts, o.Error)
			}
			return strings.Join(parts, " ")
		}
	case events.TypeDeliveryFinished:
		var batch dispatch.BatchResult
		if json.Unmarshal(e.Data, &batch) == nil {
			return fmt.Sprintf("%s done in %s (%d/%d completed)",
				batch.Repository,
				batch.FinishedAt.Sub(batch.StartedAt).Round(10*time.Millisecond),
				batch.Count(dispatch.StageCompleted),
				len(batch.Outcomes),
			)
		}
	}

	raw := string(e.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return raw
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
