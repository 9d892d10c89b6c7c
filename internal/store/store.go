// Package store persists finished tasks to a local SQLite database so the
// history of orchestrated work survives restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/taskpilot/internal/orchestrator"
)

// Store handles SQLite operations for task history
type Store struct {
	db     *sql.DB
	dbPath string
}

// TaskRecord is one row of task history.
type TaskRecord struct {
	ID             string     `json:"id" db:"id"`
	SessionID      string     `json:"session_id" db:"session_id"`
	Description    string     `json:"description" db:"description"`
	Status         string     `json:"status" db:"status"`
	CompletedSteps int        `json:"completed_steps" db:"completed_steps"`
	FailedSteps    int        `json:"failed_steps" db:"failed_steps"`
	Error          string     `json:"error,omitempty" db:"error"`
	ResultSummary  string     `json:"result_summary,omitempty" db:"result_summary"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// StepRecord is one executed (or abandoned) step of a recorded task.
type StepRecord struct {
	ID       int64  `json:"id" db:"id"`
	TaskID   string `json:"task_id" db:"task_id"`
	StepIdx  int    `json:"step_index" db:"step_index"`
	Title    string `json:"title" db:"title"`
	ToolName string `json:"tool_name,omitempty" db:"tool_name"`
	ToolArgs string `json:"tool_args,omitempty" db:"tool_args"`
	Status   string `json:"status" db:"status"`
	Result   string `json:"result,omitempty" db:"result"`
	Error    string `json:"error,omitempty" db:"error"`
}

// New opens (creating if necessary) the history database at dbPath.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate ensures the database schema is up to date
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		completed_steps INTEGER NOT NULL DEFAULT 0,
		failed_steps INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		result_summary TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		title TEXT NOT NULL,
		tool_name TEXT,
		tool_args TEXT,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_task_steps_task_id ON task_steps(task_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create initial schema: %w", err)
	}
	return nil
}

// RecordTask writes a terminal task and its plan steps to the history.
// Re-recording the same task id replaces the earlier rows.
func (s *Store) RecordTask(task *orchestrator.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if !task.Status.Terminal() {
		return fmt.Errorf("task %s is not in a terminal state (%s)", task.ID, task.Status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	description := ""
	if task.Plan != nil {
		description = task.Plan.OriginalTask
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO tasks
		(id, session_id, description, status, completed_steps, failed_steps, error, result_summary, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.SessionID, description, string(task.Status),
		task.CompletedSteps, task.FailedSteps, task.Error, task.ResultSummary,
		task.StartedAt, task.CompletedAt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM task_steps WHERE task_id = ?`, task.ID); err != nil {
		return err
	}

	if task.Plan != nil {
		for _, step := range task.Plan.Steps {
			args := ""
			if len(step.ToolArgs) > 0 {
				raw, err := json.Marshal(step.ToolArgs)
				if err != nil {
					return fmt.Errorf("failed to encode args for step %d: %w", step.Index, err)
				}
				args = string(raw)
			}
			_, err := tx.Exec(`
				INSERT INTO task_steps (task_id, step_index, title, tool_name, tool_args, status, result, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, task.ID, step.Index, step.Title, step.ToolName, args,
				string(step.Status), step.Result, step.Error)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetTask gets a recorded task by id
func (s *Store) GetTask(id string) (*TaskRecord, error) {
	var completedAt *time.Time
	var errText, summary sql.NullString
	rec := &TaskRecord{ID: id}

	err := s.db.QueryRow(`
		SELECT session_id, description, status, completed_steps, failed_steps, error, result_summary, started_at, completed_at
		FROM tasks WHERE id = ?
	`, id).Scan(&rec.SessionID, &rec.Description, &rec.Status,
		&rec.CompletedSteps, &rec.FailedSteps, &errText, &summary, &rec.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if errText.Valid {
		rec.Error = errText.String
	}
	if summary.Valid {
		rec.ResultSummary = summary.String
	}
	rec.CompletedAt = completedAt
	return rec, nil
}

// Recent returns the latest recorded tasks, newest first.
func (s *Store) Recent(limit int) ([]*TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, description, status, completed_steps, failed_steps, error, result_summary, started_at, completed_at
		FROM tasks ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TaskRecord
	for rows.Next() {
		var completedAt *time.Time
		var errText, summary sql.NullString
		rec := &TaskRecord{}

		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Description, &rec.Status,
			&rec.CompletedSteps, &rec.FailedSteps, &errText, &summary, &rec.StartedAt, &completedAt)
		if err != nil {
			return nil, err
		}

		if errText.Valid {
			rec.Error = errText.String
		}
		if summary.Valid {
			rec.ResultSummary = summary.String
		}
		rec.CompletedAt = completedAt
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetSteps gets all recorded steps for a task
func (s *Store) GetSteps(taskID string) ([]StepRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, step_index, title, tool_name, tool_args, status, result, error
		FROM task_steps WHERE task_id = ?
		ORDER BY step_index
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var step StepRecord
		var toolName, toolArgs, result, errText sql.NullString
		err := rows.Scan(&step.ID, &step.TaskID, &step.StepIdx, &step.Title,
			&toolName, &toolArgs, &step.Status, &result, &errText)
		if err != nil {
			return nil, err
		}

		if toolName.Valid {
			step.ToolName = toolName.String
		}
		if toolArgs.Valid {
			step.ToolArgs = toolArgs.String
		}
		if result.Valid {
			step.Result = result.String
		}
		if errText.Valid {
			step.Error = errText.String
		}

		steps = append(steps, step)
	}

	return steps, rows.Err()
}
