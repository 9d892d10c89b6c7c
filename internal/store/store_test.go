package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/taskpilot/internal/orchestrator"
	"github.com/codefionn/taskpilot/internal/planner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func completedTask(id string) *orchestrator.Task {
	started := time.Now().Add(-time.Minute)
	done := time.Now()
	return &orchestrator.Task{
		ID:             id,
		SessionID:      "sess-1",
		Status:         orchestrator.StatusCompleted,
		CompletedSteps: 2,
		FailedSteps:    0,
		ResultSummary:  "2 completed, 0 failed, 0 skipped of 2 steps",
		StartedAt:      started,
		CompletedAt:    &done,
		Plan: &planner.Plan{
			ID:           "plan-" + id,
			OriginalTask: "fetch and summarize",
			Steps: []*planner.Step{
				{Index: 0, Title: "fetch", ToolName: "web_fetch",
					ToolArgs: map[string]interface{}{"url": "https://example.com"},
					Status:   planner.StepCompleted, Result: "page body"},
				{Index: 1, Title: "summarize", Status: planner.StepCompleted, Result: "done"},
			},
		},
	}
}

func TestNewRejectsUnusableDatabasePath(t *testing.T) {
	// A directory is not a valid sqlite file; New must fail without
	// handing back a store.
	s, err := New(t.TempDir())
	require.Error(t, err)
	assert.Nil(t, s)
}

func TestRecordAndGetTask(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordTask(completedTask("task-a")))

	rec, err := s.GetTask("task-a")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "fetch and summarize", rec.Description)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, 2, rec.CompletedSteps)
	assert.NotNil(t, rec.CompletedAt)

	steps, err := s.GetSteps("task-a")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "fetch", steps[0].Title)
	assert.Equal(t, "web_fetch", steps[0].ToolName)
	assert.Contains(t, steps[0].ToolArgs, "example.com")
	assert.Equal(t, "", steps[1].ToolName)
}

func TestRecordRejectsNonTerminalTask(t *testing.T) {
	s := openTestStore(t)

	task := completedTask("task-b")
	task.Status = orchestrator.StatusExecuting
	err := s.RecordTask(task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in a terminal state")

	require.Error(t, s.RecordTask(nil))
}

func TestRecordReplacesEarlierRows(t *testing.T) {
	s := openTestStore(t)

	task := completedTask("task-c")
	require.NoError(t, s.RecordTask(task))

	task.Status = orchestrator.StatusFailed
	task.Error = "step 2 (summarize) failed: boom"
	task.Plan.Steps = task.Plan.Steps[:1]
	require.NoError(t, s.RecordTask(task))

	rec, err := s.GetTask("task-c")
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)
	assert.Contains(t, rec.Error, "boom")

	steps, err := s.GetSteps("task-c")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)

	old := completedTask("task-old")
	old.StartedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.RecordTask(old))

	recent := completedTask("task-new")
	require.NoError(t, s.RecordTask(recent))

	records, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "task-new", records[0].ID)
	assert.Equal(t, "task-old", records[1].ID)

	limited, err := s.Recent(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "task-new", limited[0].ID)
}
