// Package history keeps an audit log of processed deliveries and their per-commit outcomes.
// It is write-only from the dispatcher's point of view; nothing is resumed from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
)

// ErrNotFound is returned when a delivery id is unknown.
var ErrNotFound = errors.New("delivery not found")

// Store persists dispatch.BatchResult values. It implements dispatch.Recorder.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already bootstrapped database (see storage.OpenSQLite).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record writes a batch and its outcomes in one transaction.
// Recording the same delivery id again replaces the earlier entry.
func (s *Store) Record(ctx context.Context, batch *dispatch.BatchResult) error {
	if batch.DeliveryID == "" {
		return fmt.Errorf("delivery id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM commit_outcomes WHERE delivery_id = ?;`, batch.DeliveryID); err != nil {
		return fmt.Errorf("replace delivery: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?;`, batch.DeliveryID); err != nil {
		return fmt.Errorf("replace delivery: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO deliveries(id, repository, ref, commits, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?);
`, batch.DeliveryID, batch.Repository, nullString(batch.Ref), len(batch.Outcomes),
		formatTime(batch.StartedAt), formatTime(batch.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}

	for i, o := range batch.Outcomes {
		var checkRunID, exitCode any
		if o.CheckRunID != 0 {
			checkRunID = o.CheckRunID
		}
		if o.ExitCode != nil {
			exitCode = *o.ExitCode
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO commit_outcomes(delivery_id, position, commit_id, stage, check_run_id, conclusion, exit_code, error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, batch.DeliveryID, i, o.CommitID, string(o.Stage), checkRunID, nullString(o.Conclusion), exitCode, nullString(o.Error))
		if err != nil {
			return fmt.Errorf("insert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get loads one delivery with its outcomes in payload order.
func (s *Store) Get(ctx context.Context, deliveryID string) (*dispatch.BatchResult, error) {
	var (
		batch              dispatch.BatchResult
		ref                sql.NullString
		startedS, finished string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, repository, ref, started_at, finished_at FROM deliveries WHERE id = ?;
`, deliveryID).Scan(&batch.DeliveryID, &batch.Repository, &ref, &startedS, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read delivery: %w", err)
	}
	batch.Ref = ref.String
	batch.StartedAt = parseTime(startedS)
	batch.FinishedAt = parseTime(finished)

	rows, err := s.db.QueryContext(ctx, `
SELECT commit_id, stage, check_run_id, conclusion, exit_code, error
FROM commit_outcomes WHERE delivery_id = ? ORDER BY position ASC;
`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	defer rows.Close()

	batch.Outcomes = []dispatch.Outcome{}
	for rows.Next() {
		var (
			o          dispatch.Outcome
			stage      string
			checkRunID sql.NullInt64
			conclusion sql.NullString
			exitCode   sql.NullInt64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&o.CommitID, &stage, &checkRunID, &conclusion, &exitCode, &errMsg); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Stage = dispatch.Stage(stage)
		o.CheckRunID = checkRunID.Int64
		o.Conclusion = conclusion.String
		o.Error = errMsg.String
		if exitCode.Valid {
			code := int(exitCode.Int64)
			o.ExitCode = &code
		}
		batch.Outcomes = append(batch.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return &batch, nil
}

// Summary is a delivery row without its outcomes.
type Summary struct {
	DeliveryID string    `json:"delivery_id"`
	Repository string    `json:"repository"`
	Ref        string    `json:"ref,omitempty"`
	Commits    int       `json:"commits"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Recent lists the newest deliveries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, repository, ref, commits, started_at, finished_at
FROM deliveries ORDER BY started_at DESC, rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum                Summary
			ref                sql.NullString
			startedS, finished string
		)
		if err := rows.Scan(&sum.DeliveryID, &sum.Repository, &ref, &sum.Commits, &startedS, &finished); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		sum.Ref = ref.String
		sum.StartedAt = parseTime(startedS)
		sum.FinishedAt = parseTime(finished)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

// Prune deletes deliveries that started before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, `
DELETE FROM commit_outcomes
WHERE delivery_id IN (SELECT id FROM deliveries WHERE started_at < ?);
`, c); err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE started_at < ?;`, c)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
