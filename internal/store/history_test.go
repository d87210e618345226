package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 0)
	run.Test = true
	run.Settings["field_format"] = "{field}_{coll}__{type}"
	require.NoError(t, s.BeginRun(ctx, run))

	require.NoError(t, s.RecordCollection(ctx, CollectionRun{
		RunID: "run-1", Seq: 2, DB: "app", Collection: "b", Index: "app", Type: "b", Docs: 0, Status: "EMPTY",
	}))
	require.NoError(t, s.RecordCollection(ctx, CollectionRun{
		RunID: "run-1", Seq: 1, DB: "app", Collection: "a", Index: "app", Type: "a", Docs: 12, Status: "OK",
	}))

	finished := run.StartedAt.Add(3 * time.Second)
	run.FinishedAt = &finished
	run.Outcome = OutcomeCompleted
	require.NoError(t, s.FinishRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "sync", got.Mode)
	assert.True(t, got.Test)
	assert.Equal(t, "{field}_{coll}__{type}", got.Settings["field_format"])
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.Equal(t, OutcomeCompleted, got.Outcome)

	require.Len(t, got.Collections, 2)
	assert.Equal(t, "a", got.Collections[0].Collection, "collections come back in seq order")
	assert.Equal(t, int64(12), got.Collections[0].Docs)
	assert.Equal(t, "EMPTY", got.Collections[1].Status)
}

func TestBeginRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", 0)
	require.NoError(t, s.BeginRun(ctx, run))
	require.NoError(t, s.BeginRun(ctx, run))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, OutcomeRunning, runs[0].Outcome)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestRecordCollection_KeepsLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, createTestRun("run-1", 0)))

	c := CollectionRun{RunID: "run-1", Seq: 1, DB: "app", Collection: "a", Index: "app", Type: "a", Docs: 5, Status: "FAILED"}
	require.NoError(t, s.RecordCollection(ctx, c))
	c.Docs, c.Status = 9, "INDEXED"
	require.NoError(t, s.RecordCollection(ctx, c))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got.Collections, 1)
	assert.Equal(t, int64(9), got.Collections[0].Docs)
	assert.Equal(t, "INDEXED", got.Collections[0].Status)
}

func TestRecordCollection_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordCollection(context.Background(), CollectionRun{RunID: "ghost", Seq: 1, Status: "OK"})
	assert.Error(t, err)
}

func TestFinishRun_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("ghost", 0)
	assert.Error(t, s.FinishRun(ctx, run), "finish time is required")

	now := testEpoch
	run.FinishedAt = &now
	err := s.FinishRun(ctx, run)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, createTestRun("run-a", 0)))
	require.NoError(t, s.BeginRun(ctx, createTestRun("run-c", 2*time.Minute)))
	require.NoError(t, s.BeginRun(ctx, createTestRun("run-b", time.Minute)))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, ids)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestCollectionHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, status := range []string{"INDEXED", "UP TO DATE", "2 DOCS UPDATED"} {
		id := []string{"run-1", "run-2", "run-3"}[i]
		require.NoError(t, s.BeginRun(ctx, createTestRun(id, time.Duration(i)*time.Hour)))
		require.NoError(t, s.RecordCollection(ctx, CollectionRun{
			RunID: id, Seq: 1, DB: "app", Collection: "events", Index: "app", Type: "events", Status: status,
		}))
		require.NoError(t, s.RecordCollection(ctx, CollectionRun{
			RunID: id, Seq: 2, DB: "app", Collection: "other", Index: "app", Type: "other", Status: "EMPTY",
		}))
	}

	hist, err := s.CollectionHistory(ctx, "app", "events", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2 DOCS UPDATED", hist[0].Status)
	assert.Equal(t, "UP TO DATE", hist[1].Status)

	hist, err = s.CollectionHistory(ctx, "app", "events", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

func TestMarshalSettings(t *testing.T) {
	got, err := marshalSettings(map[string]string{"b": "<x>", "a": "{field}"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"{field}","b":"<x>"}`, got)

	got, err = marshalSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	back, err := unmarshalSettings(`{"a":"{field}"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "{field}"}, back)
}
