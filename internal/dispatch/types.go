package dispatch

import (
	"context"
	"time"

	"github.com/mattjoyce/smoked-tofu/internal/command"
	"github.com/mattjoyce/smoked-tofu/internal/events"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/smoked-tofu/internal/dispatch Executor,Recorder

// Executor runs the configured command once.
type Executor interface {
	Execute(ctx context.Context) (*command.Result, error)
}

// Recorder persists finished batches.
type Recorder interface {
	Record(ctx context.Context, batch *BatchResult) error
}

// Publisher receives progress notices.
type Publisher interface {
	Publish(eventType, deliveryID string, data any) events.Event
}

// Stage is how far a commit got before processing stopped.
type Stage string

const (
	StageSkipped       Stage = "skipped"
	StageCreateFailed  Stage = "create_failed"
	StageExecuteFailed Stage = "execute_failed"
	StageUpdateFailed  Stage = "update_failed"
	StageCompleted     Stage = "completed"
)

// Outcome is the result of processing one commit.
// CheckRunID is 0 when no check run was created.
type Outcome struct {
	CommitID   string `json:"commit_id"`
	Stage      Stage  `json:"stage"`
	CheckRunID int64  `json:"check_run_id,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchResult collects the outcomes of one delivery in payload order.
type BatchResult struct {
	DeliveryID string    `json:"delivery_id"`
	Repository string    `json:"repository"`
	Ref        string    `json:"ref,omitempty"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Count returns how many commits ended at stage.
func (b *BatchResult) Count(stage Stage) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Stage == stage {
			n++
		}
	}
	return n
}
