// Package inspect renders recorded deliveries for the terminal.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/history"
)

// Source is the read side of the delivery history.
type Source interface {
	Get(ctx context.Context, deliveryID string) (*dispatch.BatchResult, error)
	Recent(ctx context.Context, limit int) ([]history.Summary, error)
}

// Report is the structured JSON representation of one delivery.
type Report struct {
	DeliveryID string         `json:"delivery_id"`
	Repository string         `json:"repository"`
	Ref        string         `json:"ref,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Counts     map[string]int `json:"counts"`
	Commits    []Step         `json:"commits"`
}

// Step is one commit of the delivery.
type Step struct {
	Position   int    `json:"position"`
	CommitID   string `json:"commit_id"`
	Stage      string `json:"stage"`
	CheckRunID int64  `json:"check_run_id,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

var stages = []dispatch.Stage{
	dispatch.StageCompleted,
	dispatch.StageSkipped,
	dispatch.StageCreateFailed,
	dispatch.StageExecuteFailed,
	dispatch.StageUpdateFailed,
}

// BuildReport renders a terminal-friendly report for a delivery.
func BuildReport(ctx context.Context, src Source, deliveryID string) (string, error) {
	report, err := gatherReportData(ctx, src, deliveryID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Delivery Report\n")
	fmt.Fprintf(&out, "Delivery ID : %s\n", report.DeliveryID)
	fmt.Fprintf(&out, "Repository  : %s\n", report.Repository)
	fmt.Fprintf(&out, "Ref         : %s\n", renderUnset(report.Ref, "<none>"))
	fmt.Fprintf(&out, "Started     : %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "Duration    : %s\n", (time.Duration(report.DurationMS) * time.Millisecond).String())
	fmt.Fprintf(&out, "Commits     : %d (%s)\n", len(report.Commits), renderCounts(report.Counts))
	fmt.Fprintf(&out, "\n")

	for _, step := range report.Commits {
		fmt.Fprintf(&out, "[%d] %s\n", step.Position, step.CommitID)
		fmt.Fprintf(&out, "    stage      : %s\n", step.Stage)
		if step.CheckRunID != 0 {
			fmt.Fprintf(&out, "    check_run  : %d\n", step.CheckRunID)
		} else {
			fmt.Fprintf(&out, "    check_run  : <none>\n")
		}
		if step.Conclusion != "" {
			fmt.Fprintf(&out, "    conclusion : %s\n", step.Conclusion)
		}
		if step.ExitCode != nil {
			fmt.Fprintf(&out, "    exit_code  : %d\n", *step.ExitCode)
		}
		if step.Error != "" {
			fmt.Fprintf(&out, "    error      : %s\n", step.Error)
		}
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable report for a delivery.
func BuildJSONReport(ctx context.Context, src Source, deliveryID string) (string, error) {
	report, err := gatherReportData(ctx, src, deliveryID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// BuildList renders the newest deliveries as one line each.
func BuildList(ctx context.Context, src Source, limit int) (string, error) {
	list, err := src.Recent(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No deliveries recorded.\n", nil
	}

	var out strings.Builder
	for _, s := range list {
		fmt.Fprintf(&out, "%s  %-36s  %-30s  %d commit(s)\n",
			s.StartedAt.Format(time.RFC3339), s.DeliveryID, s.Repository, s.Commits)
	}
	return out.String(), nil
}

func gatherReportData(ctx context.Context, src Source, deliveryID string) (*Report, error) {
	if strings.TrimSpace(deliveryID) == "" {
		return nil, fmt.Errorf("delivery_id is required")
	}

	batch, err := src.Get(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("delivery %q: %w", deliveryID, err)
	}

	report := &Report{
		DeliveryID: batch.DeliveryID,
		Repository: batch.Repository,
		Ref:        batch.Ref,
		StartedAt:  batch.StartedAt,
		DurationMS: batch.FinishedAt.Sub(batch.StartedAt).Milliseconds(),
		Counts:     make(map[string]int, len(stages)),
		Commits:    make([]Step, 0, len(batch.Outcomes)),
	}
	for _, stage := range stages {
		report.Counts[string(stage)] = batch.Count(stage)
	}
	for i, o := range batch.Outcomes {
		report.Commits = append(report.Commits, Step{
			Position:   i + 1,
			CommitID:   o.CommitID,
			Stage:      string(o.Stage),
			CheckRunID: o.CheckRunID,
			Conclusion: o.Conclusion,
			ExitCode:   o.ExitCode,
			Error:      o.Error,
		})
	}
	return report, nil
}

func renderCounts(counts map[string]int) string {
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		if n := counts[string(stage)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", stage, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
