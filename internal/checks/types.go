package checks

import (
	"context"
	"fmt"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/mattjoyce/smoked-tofu/internal/checks Client

// Client creates and updates check runs on the hosting platform.
// Implementations surface any transport or application failure as *APIError.
type Client interface {
	Create(ctx context.Context, owner, repo string, run CheckRun) (Handle, error)
	Update(ctx context.Context, owner, repo string, h Handle, run CheckRun) (Handle, error)
}

// Status is the lifecycle state of a check run.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Conclusion is the final verdict of a completed check run.
type Conclusion string

const (
	ConclusionSuccess Conclusion = "success"
	ConclusionFailure Conclusion = "failure"
)

// CheckRun is the request body for both create and update.
type CheckRun struct {
	Name       string      `json:"name"`
	HeadSHA    string      `json:"head_sha"`
	Status     Status      `json:"status"`
	Conclusion *Conclusion `json:"conclusion,omitempty"`
	Output     *Output     `json:"output,omitempty"`
}

// Output is the rendered body of a check run.
type Output struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Text    *string `json:"text,omitempty"`
}

// Handle is the identity the remote API assigned on create.
type Handle struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Validate enforces that a conclusion is present if and only if the run is completed.
func (c CheckRun) Validate() error {
	switch c.Status {
	case StatusInProgress:
		if c.Conclusion != nil {
			return fmt.Errorf("check run %q: conclusion set on in_progress run", c.Name)
		}
	case StatusCompleted:
		if c.Conclusion == nil {
			return fmt.Errorf("check run %q: completed run without conclusion", c.Name)
		}
	default:
		return fmt.Errorf("check run %q: unknown status %q", c.Name, c.Status)
	}
	if c.HeadSHA == "" {
		return fmt.Errorf("check run %q: head_sha is empty", c.Name)
	}
	return nil
}
