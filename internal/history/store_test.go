package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleBatch(id string, started time.Time) *dispatch.BatchResult {
	zero, one := 0, 1
	return &dispatch.BatchResult{
		DeliveryID: id,
		Repository: "acme/widgets",
		Ref:        "refs/heads/main",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Outcomes: []dispatch.Outcome{
			{CommitID: "c1", Stage: dispatch.StageCompleted, CheckRunID: 11, Conclusion: "success", ExitCode: &zero},
			{CommitID: "c2", Stage: dispatch.StageCreateFailed, Error: "create check run: status 502: bad gateway"},
			{CommitID: "c3", Stage: dispatch.StageCompleted, CheckRunID: 13, Conclusion: "failure", ExitCode: &one},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 1, 12, 0, 0, 123456789, time.UTC)

	want := sampleBatch("d-1", started)
	require.NoError(t, s.Record(ctx, want))

	got, err := s.Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, want.DeliveryID, got.DeliveryID)
	assert.Equal(t, want.Repository, got.Repository)
	assert.Equal(t, want.Ref, got.Ref)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, want.Outcomes, got.Outcomes)
}

func TestRecordReplacesSameDelivery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Record(ctx, sampleBatch("d-1", now)))
	replacement := &dispatch.BatchResult{DeliveryID: "d-1", Repository: "acme/widgets", StartedAt: now, FinishedAt: now}
	require.NoError(t, s.Record(ctx, replacement))

	got, err := s.Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Empty(t, got.Outcomes)
	assert.Empty(t, got.Ref)
}

func TestGetUnknown(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordRejectsEmptyID(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Record(context.Background(), &dispatch.BatchResult{}))
}

func TestRecentAndPrune(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Record(ctx, sampleBatch(id, base.Add(time.Duration(i)*24*time.Hour))))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].DeliveryID)
	assert.Equal(t, "mid", recent[1].DeliveryID)
	assert.Equal(t, 3, recent[0].Commits)

	n, err := s.Prune(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recent, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].DeliveryID)

	_, err = s.Get(ctx, "old")
	assert.True(t, errors.Is(err, ErrNotFound))
}
