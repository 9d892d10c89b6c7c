package server

import (
	"time"

	"github.com/codefionn/taskpilot/internal/orchestrator"
)

// Event message types pushed over the websocket.
const (
	EventTypeTask   = "task"
	EventTypeStatus = "status"
)

// Event is one websocket frame. Task events carry the full task snapshot
// (nil after a clear), status events carry the fine-grained update.
type Event struct {
	Type      string                     `json:"type"`
	Task      *orchestrator.Task         `json:"task,omitempty"`
	Update    *orchestrator.StatusUpdate `json:"update,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

// NewTaskEvent wraps a task snapshot for broadcast.
func NewTaskEvent(task *orchestrator.Task) *Event {
	return &Event{Type: EventTypeTask, Task: task, Timestamp: time.Now().UTC()}
}

// NewStatusEvent wraps a status update for broadcast.
func NewStatusEvent(update orchestrator.StatusUpdate) *Event {
	return &Event{Type: EventTypeStatus, Update: &update, Timestamp: time.Now().UTC()}
}

// startTaskRequest is the body of POST /api/tasks.
type startTaskRequest struct {
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	Description string `json:"description"`
}

// registerToolRequest is the body of POST /api/tools.
type registerToolRequest struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Parameters  map[string]toolParamEntry `json:"parameters"`
	Required    []string                  `json:"required"`
	Endpoint    string                    `json:"endpoint"`
	Enabled     *bool                     `json:"enabled"`
}

type toolParamEntry struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// enableToolRequest is the body of POST /api/tools/:id/enable.
type enableToolRequest struct {
	Enabled bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}
