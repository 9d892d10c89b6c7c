// Package orchestrator owns the lifecycle of the single live task: plan
// synthesis, user confirmation, step-by-step execution against the tool
// registry, and pause/resume/cancel control.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/taskpilot/internal/config"
	"github.com/codefionn/taskpilot/internal/ident"
	"github.com/codefionn/taskpilot/internal/logger"
	"github.com/codefionn/taskpilot/internal/planner"
	"github.com/codefionn/taskpilot/internal/tools"
)

// ErrTaskSuperseded reports that a newer StartTask replaced the task before
// its synthesis result arrived. The stale result is discarded.
var ErrTaskSuperseded = errors.New("task superseded by a newer task")

// ErrTaskCancelled reports that the task was cancelled while its plan was
// still being synthesized. The synthesis result is discarded.
var ErrTaskCancelled = errors.New("task cancelled during planning")

const noToolResult = "Step completed (no tool invocation)"

// Synthesizer is the planning capability the orchestrator consumes.
type Synthesizer interface {
	Synthesize(ctx context.Context, taskDescription string) (*planner.Plan, error)
}

// Orchestrator runs at most one task at a time.
type Orchestrator struct {
	synth    Synthesizer
	registry *tools.Registry
	cfg      *config.Config

	mu     sync.Mutex // guards task, cancel and the loop fields
	task   *Task
	cancel context.CancelFunc

	// loopGen/loopActive track the single live execution loop. The
	// generation ties the active flag to the loop that set it, so a
	// superseded loop exiting late cannot clear its successor's flag.
	loopGen    int
	loopActive bool

	subMu      sync.Mutex // guards the subscriber maps, never held during callbacks
	taskSubs   map[int]func(*Task)
	statusSubs map[int]func(StatusUpdate)
	nextSubID  int
}

// New creates an Orchestrator.
func New(synth Synthesizer, registry *tools.Registry, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		synth:      synth,
		registry:   registry,
		cfg:        cfg,
		taskSubs:   make(map[int]func(*Task)),
		statusSubs: make(map[int]func(StatusUpdate)),
	}
}

// Subscribe registers a task-snapshot callback. The current snapshot (nil if
// no task exists) is replayed immediately. The returned func unsubscribes.
func (o *Orchestrator) Subscribe(cb func(*Task)) func() {
	o.mu.Lock()
	snapshot := o.task.Clone()
	o.mu.Unlock()

	o.subMu.Lock()
	o.nextSubID++
	id := o.nextSubID
	o.taskSubs[id] = cb
	o.subMu.Unlock()

	cb(snapshot)

	return func() {
		o.subMu.Lock()
		delete(o.taskSubs, id)
		o.subMu.Unlock()
	}
}

// SubscribeStatusUpdate registers a fine-grained event callback. The
// returned func unsubscribes.
func (o *Orchestrator) SubscribeStatusUpdate(cb func(StatusUpdate)) func() {
	o.subMu.Lock()
	o.nextSubID++
	id := o.nextSubID
	o.statusSubs[id] = cb
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.statusSubs, id)
		o.subMu.Unlock()
	}
}

// emitTask broadcasts a task snapshot to the snapshot channel.
func (o *Orchestrator) emitTask(snapshot *Task) {
	o.subMu.Lock()
	cbs := make([]func(*Task), 0, len(o.taskSubs))
	for _, cb := range o.taskSubs {
		cbs = append(cbs, cb)
	}
	o.subMu.Unlock()

	for _, cb := range cbs {
		cb(snapshot.Clone())
	}
}

// emitStatus broadcasts a fine-grained event.
func (o *Orchestrator) emitStatus(update StatusUpdate) {
	o.subMu.Lock()
	cbs := make([]func(StatusUpdate), 0, len(o.statusSubs))
	for _, cb := range o.statusSubs {
		cbs = append(cbs, cb)
	}
	o.subMu.Unlock()

	for _, cb := range cbs {
		cb(update)
	}
}

// emitTransition keeps the ordering contract: the snapshot channel fires
// before the matching fine-grained event.
func (o *Orchestrator) emitTransition(snapshot *Task, update StatusUpdate) {
	o.emitTask(snapshot)
	o.emitStatus(update)
}

// CurrentTask returns a snapshot of the live task, or nil.
func (o *Orchestrator) CurrentTask() *Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.task.Clone()
}

// StartTask creates a new task for description and synthesizes its plan.
// Any live non-terminal task is cancelled first: there is never more than
// one. On success the task waits in confirming; on synthesis failure the
// task ends failed and the error is returned as well.
func (o *Orchestrator) StartTask(ctx context.Context, sessionID, messageID, description string) (*Task, error) {
	o.mu.Lock()
	var cancelledSnapshot *Task
	if o.task != nil && !o.task.Status.Terminal() {
		o.cancelLocked()
		cancelledSnapshot = o.task.Clone()
	}

	task := &Task{
		ID:               ident.New("task"),
		SessionID:        sessionID,
		MessageID:        messageID,
		Status:           StatusAnalyzing,
		CurrentStepIndex: -1,
		StartedAt:        time.Now(),
	}
	o.task = task
	taskID := task.ID
	snapshot := task.Clone()
	o.mu.Unlock()

	if cancelledSnapshot != nil {
		o.emitTransition(cancelledSnapshot, StatusUpdate{TaskID: cancelledSnapshot.ID, Status: StatusCancelled})
	}

	logger.Info("Starting task %s: %s", taskID, description)
	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusAnalyzing})

	plan, synthErr := o.synth.Synthesize(ctx, description)

	o.mu.Lock()
	if o.task == nil || o.task.ID != taskID {
		o.mu.Unlock()
		return nil, ErrTaskSuperseded
	}
	if o.task.Status.Terminal() {
		// Cancelled while synthesis was in flight; the task keeps its
		// terminal state and the plan is thrown away.
		o.mu.Unlock()
		return nil, ErrTaskCancelled
	}

	if synthErr != nil {
		o.task.Status = StatusFailed
		o.task.Error = synthErr.Error()
		now := time.Now()
		o.task.CompletedAt = &now
		snapshot = o.task.Clone()
		o.mu.Unlock()

		logger.Error("Task %s failed during analysis: %v", taskID, synthErr)
		o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusFailed, Message: synthErr.Error()})
		return nil, synthErr
	}

	o.task.Plan = plan
	o.task.Status = StatusConfirming
	snapshot = o.task.Clone()
	o.mu.Unlock()

	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusConfirming})
	return snapshot, nil
}

// ConfirmAndExecute runs the confirmed plan to completion (or until pause,
// cancellation or failure). It requires a task in confirming with a plan;
// anything else is caller misuse and mutates nothing.
func (o *Orchestrator) ConfirmAndExecute(ctx context.Context) error {
	o.mu.Lock()
	if o.task == nil || o.task.Status != StatusConfirming || o.task.Plan == nil {
		o.mu.Unlock()
		return fmt.Errorf("no task awaiting confirmation")
	}

	o.task.Status = StatusExecuting
	o.task.CurrentStepIndex = 0
	execCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.loopGen++
	gen := o.loopGen
	o.loopActive = true
	taskID := o.task.ID
	snapshot := o.task.Clone()
	o.mu.Unlock()

	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusExecuting})
	return o.runToCompletion(execCtx, taskID, gen)
}

// PauseTask suspends execution at the next step boundary. No-op unless the
// task is executing.
func (o *Orchestrator) PauseTask() {
	o.mu.Lock()
	if o.task == nil || o.task.Status != StatusExecuting {
		o.mu.Unlock()
		return
	}
	o.task.Status = StatusPaused
	taskID := o.task.ID
	snapshot := o.task.Clone()
	o.mu.Unlock()

	logger.Info("Task %s paused", taskID)
	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusPaused})
}

// ResumeTask re-enters the execution loop from the current step cursor with
// a fresh cancellation token. While the paused step's tool call is still in
// flight the old loop owns the cursor, so the resume is refused rather than
// starting a second loop over the same step.
func (o *Orchestrator) ResumeTask(ctx context.Context) error {
	o.mu.Lock()
	if o.task == nil || o.task.Status != StatusPaused {
		o.mu.Unlock()
		return fmt.Errorf("no paused task to resume")
	}
	if o.loopActive {
		o.mu.Unlock()
		return fmt.Errorf("cannot resume: the current step has not finished yet")
	}

	o.task.Status = StatusExecuting
	execCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.loopGen++
	gen := o.loopGen
	o.loopActive = true
	taskID := o.task.ID
	snapshot := o.task.Clone()
	o.mu.Unlock()

	logger.Info("Task %s resumed at step %d", taskID, snapshot.CurrentStepIndex)
	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusExecuting})
	return o.runToCompletion(execCtx, taskID, gen)
}

// CancelTask cancels the live task. Safe to call at any point, including
// before any task exists.
func (o *Orchestrator) CancelTask() {
	o.mu.Lock()
	if o.task == nil || o.task.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.cancelLocked()
	snapshot := o.task.Clone()
	taskID := o.task.ID
	o.mu.Unlock()

	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusCancelled})
}

// cancelLocked flips the live task to cancelled and fires the token.
// Caller holds the lock and is responsible for emitting.
func (o *Orchestrator) cancelLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.task.Status = StatusCancelled
	now := time.Now()
	o.task.CompletedAt = &now
	logger.Info("Task %s cancelled", o.task.ID)
}

// ClearTask unconditionally discards the current task and its cancellation
// token. Only the snapshot channel fires, with nil.
func (o *Orchestrator) ClearTask() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.task = nil
	o.mu.Unlock()

	o.emitTask(nil)
}

// runToCompletion drives the execution loop and settles the task state
// afterwards. A loop error that is not a cancellation marks the task
// failed.
func (o *Orchestrator) runToCompletion(ctx context.Context, taskID string, gen int) error {
	loopErr := o.runLoop(ctx, taskID)

	o.mu.Lock()
	if o.loopGen == gen {
		o.loopActive = false
	}
	if loopErr == nil {
		o.mu.Unlock()
		return nil
	}

	if o.task == nil || o.task.ID != taskID || o.task.Status.Terminal() {
		// Cancellation won while the failure was in flight.
		o.mu.Unlock()
		return loopErr
	}
	o.task.Status = StatusFailed
	o.task.Error = loopErr.Error()
	now := time.Now()
	o.task.CompletedAt = &now
	snapshot := o.task.Clone()
	o.mu.Unlock()

	logger.Error("Task %s failed: %v", taskID, loopErr)
	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusFailed, Message: loopErr.Error()})
	return loopErr
}

// runLoop executes plan steps from the current cursor. The cancellation
// token and the paused/cancelled states are checked only at step
// boundaries: an in-flight tool call is never forcibly stopped, the loop
// just refuses to start the next step.
func (o *Orchestrator) runLoop(ctx context.Context, taskID string) error {
	for {
		o.mu.Lock()
		task := o.task
		if task == nil || task.ID != taskID {
			o.mu.Unlock()
			return nil
		}
		if ctx.Err() != nil || task.Status != StatusExecuting {
			o.mu.Unlock()
			return nil
		}
		if task.CurrentStepIndex >= len(task.Plan.Steps) {
			o.mu.Unlock()
			break
		}

		step := task.Plan.Steps[task.CurrentStepIndex]
		now := time.Now()
		step.Status = planner.StepRunning
		step.StartedAt = &now
		snapshot := task.Clone()
		stepClone := step.Clone()
		o.mu.Unlock()

		o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusExecuting, Step: stepClone})

		result, stepErr := o.executeStep(ctx, stepClone)

		o.mu.Lock()
		task = o.task
		if task == nil || task.ID != taskID {
			o.mu.Unlock()
			return nil
		}
		done := time.Now()
		step.CompletedAt = &done
		if stepErr != nil {
			step.Status = planner.StepFailed
			step.Error = stepErr.Error()
			task.FailedSteps++
		} else {
			step.Status = planner.StepCompleted
			step.Result = result
			task.CompletedSteps++
		}
		task.CurrentStepIndex++
		snapshot = task.Clone()
		stepClone = step.Clone()
		o.mu.Unlock()

		o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: snapshot.Status, Step: stepClone})

		if stepErr != nil {
			if !o.cfg.ContinueOnError {
				return fmt.Errorf("step %d (%s) failed: %w", stepClone.Index+1, stepClone.Title, stepErr)
			}
			logger.Warn("Step %d (%s) failed, continuing: %v", stepClone.Index+1, stepClone.Title, stepErr)
		}
	}

	// All steps exhausted without interruption.
	o.mu.Lock()
	task := o.task
	if task == nil || task.ID != taskID || task.Status != StatusExecuting {
		o.mu.Unlock()
		return nil
	}
	task.Status = StatusCompleted
	now := time.Now()
	task.CompletedAt = &now
	task.ResultSummary = summarize(task)
	snapshot := task.Clone()
	o.mu.Unlock()

	logger.Info("Task %s completed: %s", taskID, snapshot.ResultSummary)
	o.emitTransition(snapshot, StatusUpdate{TaskID: taskID, Status: StatusCompleted, Message: snapshot.ResultSummary})
	return nil
}

// executeStep runs one step. Steps without a tool trivially succeed. Tool
// invocations race a per-step timer: the losing tool call keeps running in
// the background (an accepted leak), the step just stops waiting for it.
func (o *Orchestrator) executeStep(ctx context.Context, step *planner.Step) (string, error) {
	if step.ToolName == "" {
		return noToolResult, nil
	}

	timeout := time.Duration(o.cfg.StepTimeoutMs) * time.Millisecond

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.registry.Execute(ctx, step.ToolName, step.ToolArgs)
		done <- outcome{result, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		return "", fmt.Errorf("step timed out after %s", timeout)
	}
}

func summarize(task *Task) string {
	skipped := 0
	for _, step := range task.Plan.Steps {
		if step.Status == planner.StepSkipped {
			skipped++
		}
	}
	return fmt.Sprintf("%d completed, %d failed, %d skipped of %d steps",
		task.CompletedSteps, task.FailedSteps, skipped, len(task.Plan.Steps))
}
