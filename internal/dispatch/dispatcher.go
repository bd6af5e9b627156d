package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/smoked-tofu/internal/checks"
	"github.com/mattjoyce/smoked-tofu/internal/events"
	"github.com/mattjoyce/smoked-tofu/internal/log"
	"github.com/mattjoyce/smoked-tofu/internal/push"
)

// Dispatcher runs the check lifecycle for each commit of a push.
// All fields are set at construction and only read afterwards, so one
// Dispatcher serves concurrent deliveries.
type Dispatcher struct {
	checks    checks.Client
	runner    Executor
	checkName string
	logger    *slog.Logger
	events    Publisher
	recorder  Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithEvents publishes progress to p.
func WithEvents(p Publisher) Option {
	return func(d *Dispatcher) { d.events = p }
}

// WithRecorder stores every finished batch in r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a Dispatcher reporting check runs named checkName.
func New(client checks.Client, runner Executor, checkName string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		checks:    client,
		runner:    runner,
		checkName: checkName,
		logger:    log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process handles every commit of ev sequentially and returns their outcomes.
// It never fails as a whole: an error on one commit is recorded in its Outcome
// and processing moves on to the next.
func (d *Dispatcher) Process(ctx context.Context, deliveryID string, ev *push.Event) *BatchResult {
	batch := &BatchResult{
		DeliveryID: deliveryID,
		Repository: ev.Repository.FullName,
		Outcomes:   make([]Outcome, 0, len(ev.Commits)),
		StartedAt:  time.Now().UTC(),
	}
	if ev.Ref != nil {
		batch.Ref = *ev.Ref
	}

	logger := d.logger.With("delivery_id", deliveryID, "repository", ev.Repository.FullName)
	logger.Info("processing push", "ref", batch.Ref, "commits", len(ev.Commits))
	d.publish(events.TypeDeliveryStarted, deliveryID, map[string]any{
		"repository": batch.Repository,
		"ref":        batch.Ref,
		"commits":    len(ev.Commits),
	})

	for _, commit := range ev.Commits {
		outcome := d.processCommit(ctx, logger.With("commit", commit.ID), ev.Repository, commit)
		batch.Outcomes = append(batch.Outcomes, outcome)
		d.publish(events.TypeCommitOutcome, deliveryID, outcome)
	}

	batch.FinishedAt = time.Now().UTC()
	logger.Info("push processed",
		"completed", batch.Count(StageCompleted),
		"skipped", batch.Count(StageSkipped),
		"create_failed", batch.Count(StageCreateFailed),
		"execute_failed", batch.Count(StageExecuteFailed),
		"update_failed", batch.Count(StageUpdateFailed),
		"duration_ms", batch.FinishedAt.Sub(batch.StartedAt).Milliseconds(),
	)
	d.publish(events.TypeDeliveryFinished, deliveryID, batch)

	if d.recorder != nil {
		if err := d.recorder.Record(ctx, batch); err != nil {
			logger.Error("failed to record delivery", "error", err)
		}
	}
	return batch
}

func (d *Dispatcher) processCommit(ctx context.Context, logger *slog.Logger, repository push.Repository, commit push.Commit) Outcome {
	outcome := Outcome{CommitID: commit.ID}
	logger.Info("processing commit", "message", commit.Message, "author", commit.Author.Name)

	owner, repo, err := repository.Split()
	if err != nil {
		logger.Warn("skipping commit", "error", err)
		outcome.Stage = StageSkipped
		outcome.Error = err.Error()
		return outcome
	}

	handle, err := d.checks.Create(ctx, owner, repo, checks.Started(d.checkName, commit.ID))
	if err != nil {
		logger.Error("failed to create check run", "error", err)
		outcome.Stage = StageCreateFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.CheckRunID = handle.ID
	logger = logger.With("check_run_id", handle.ID)
	logger.Info("created check run")

	result, err := d.runner.Execute(ctx)
	if err != nil {
		// The check run stays in_progress on the remote side.
		logger.Error("failed to execute command", "error", err)
		outcome.Stage = StageExecuteFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.ExitCode = result.ExitCode

	final := checks.Finished(d.checkName, commit.ID, result)
	outcome.Conclusion = string(*final.Conclusion)

	if _, err := d.checks.Update(ctx, owner, repo, handle, final); err != nil {
		logger.Error("failed to update check run", "error", err, "conclusion", outcome.Conclusion)
		outcome.Stage = StageUpdateFailed
		outcome.Error = err.Error()
		return outcome
	}

	logger.Info("updated check run",
		"conclusion", outcome.Conclusion,
		"exit_code", result.ExitCodeString(),
		"duration_ms", result.Duration.Milliseconds(),
	)
	outcome.Stage = StageCompleted
	return outcome
}

func (d *Dispatcher) publish(eventType, deliveryID string, data any) {
	if d.events != nil {
		d.events.Publish(eventType, deliveryID, data)
	}
}
