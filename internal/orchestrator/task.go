package orchestrator

import (
	"time"

	"github.com/codefionn/taskpilot/internal/planner"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusAnalyzing Status = "analyzing"
	// StatusPlanning is reserved for implementations that split analysis
	// and planning into separate phases; the engine folds both into one
	// synthesis call and never enters it.
	StatusPlanning   Status = "planning"
	StatusConfirming Status = "confirming"
	StatusExecuting  Status = "executing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is one end-to-end request to decompose and execute a free-text goal.
// The orchestrator owns the live task exclusively; subscribers only ever see
// clones.
type Task struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`

	Status           Status        `json:"status"`
	Plan             *planner.Plan `json:"plan,omitempty"`
	CurrentStepIndex int           `json:"current_step_index"` // -1 until confirmed
	CompletedSteps   int           `json:"completed_steps"`    // never decremented
	FailedSteps      int           `json:"failed_steps"`       // never decremented

	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
}

// Clone returns a deep copy safe to hand to subscribers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Plan = t.Plan.Clone()
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// StatusUpdate is the fine-grained event channel payload: which task (and,
// for step events, which exact step) just changed.
type StatusUpdate struct {
	TaskID  string        `json:"task_id"`
	Status  Status        `json:"status"`
	Step    *planner.Step `json:"step,omitempty"`
	Message string        `json:"message,omitempty"`
}
