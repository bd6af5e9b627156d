package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks relay health from /healthz polling.
type HealthState struct {
	Status         string
	UptimeSeconds  int64
	HistoryEnabled bool
	Subscribers    int
	Connected      bool
	LastCheck      time.Time
}

func renderHeader(health HealthState, activity Activity, totals Totals, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}

	title := " SMOKED-TOFU WATCH"
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	history := "off"
	if health.HistoryEnabled {
		history = "on"
	}
	statsLine := fmt.Sprintf(" %s  up %s  history: %s  watchers: %d",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		history,
		health.Subscribers,
	)

	totalsLine := fmt.Sprintf(" Deliveries: %d  Commits: %s %s %s",
		totals.Deliveries,
		theme.StatusOK.Render(fmt.Sprintf("%d passed", totals.Passed)),
		theme.StatusFailed.Render(fmt.Sprintf("%d failed", totals.Failed)),
		theme.StatusRunning.Render(fmt.Sprintf("%d running", totals.Running)),
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, activity.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		totalsLine,
		activityLine,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
