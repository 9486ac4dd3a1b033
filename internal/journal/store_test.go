package journal

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gcal-go/internal/calsync"
	"github.com/tonimelisma/gcal-go/internal/gcal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(t.Context(), filepath.Join(t.TempDir(), "journal.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(t.Context(), path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(t.Context(), path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)

	gone := gcal.Classify(gcal.ActionDelete, &gcal.APIError{StatusCode: 410, Message: "Resource has been deleted", Err: gcal.ErrGone})

	res := calsync.Results{
		BatchID:   "b1",
		Action:    gcal.ActionDelete,
		Refreshed: true,
		Outcomes: []calsync.Outcome{
			{Action: gcal.ActionDelete, Index: 0, Target: "a"},
			{Action: gcal.ActionDelete, Index: 1, Target: "b", Err: gone},
		},
	}

	require.NoError(t, s.Record(t.Context(), res))

	entries, err := s.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest row first
	assert.Equal(t, "b", entries[0].Target)
	assert.Equal(t, "already_gone", entries[0].Kind)
	assert.Equal(t, 410, entries[0].Status)
	assert.Contains(t, entries[0].Message, "Resource has been deleted")
	assert.True(t, entries[0].OK())

	assert.Equal(t, "a", entries[1].Target)
	assert.Equal(t, "ok", entries[1].Kind)
	assert.Empty(t, entries[1].Message)
	assert.Equal(t, "delete", entries[1].Action)
	assert.True(t, entries[1].Refreshed)
}

func TestRecord_SkipsRejectedBatch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Record(t.Context(), calsync.Results{Action: gcal.ActionCreate}))

	entries, err := s.Recent(t.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecord_DuplicateBatchFails(t *testing.T) {
	s := newTestStore(t)

	res := calsync.Results{BatchID: "dup", Action: gcal.ActionCreate, Outcomes: []calsync.Outcome{{Target: "x"}}}
	require.NoError(t, s.Record(t.Context(), res))
	require.Error(t, s.Record(t.Context(), res))

	entries, err := s.Recent(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed batch was rolled back")
}

func TestRecent_Limit(t *testing.T) {
	s := newTestStore(t)

	outcomes := make([]calsync.Outcome, 5)
	for i := range outcomes {
		outcomes[i] = calsync.Outcome{Index: i}
	}

	require.NoError(t, s.Record(t.Context(), calsync.Results{BatchID: "b", Action: gcal.ActionUpdate, Outcomes: outcomes}))

	entries, err := s.Recent(t.Context(), 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s.nowFunc = func() time.Time { return base }
	require.NoError(t, s.Record(t.Context(), calsync.Results{BatchID: "old", Action: gcal.ActionCreate, Outcomes: []calsync.Outcome{{}}}))

	s.nowFunc = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, s.Record(t.Context(), calsync.Results{BatchID: "new", Action: gcal.ActionCreate, Outcomes: []calsync.Outcome{{}}}))

	n, err := s.Prune(t.Context(), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.Recent(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].BatchID)
	assert.Equal(t, base.Add(48*time.Hour).UnixNano(), entries[0].RecordedAt.UnixNano())
}
