// Package planner turns a free-text task description into a validated,
// step-ordered execution plan by way of an LLM completion.
package planner

import "time"

// StepStatus tracks a step through its lifecycle.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is one unit of planned work, optionally backed by a named tool
// invocation.
type Step struct {
	ID          string                 `json:"id"`
	Index       int                    `json:"index"` // position at creation time, never renumbered
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	ToolName    string                 `json:"tool_name,omitempty"`
	ToolArgs    map[string]interface{} `json:"tool_args,omitempty"`
	Status      StepStatus             `json:"status"`
	Result      string                 `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	// DependsOn is declared by the model but not consulted during
	// execution; steps run strictly in index order.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Plan is the structured decomposition of a task.
type Plan struct {
	ID              string    `json:"id"`
	OriginalTask    string    `json:"original_task"`
	AnalysisSummary string    `json:"analysis_summary"`
	Complexity      int       `json:"complexity"` // clamped to [1,10]
	EstimatedSteps  int       `json:"estimated_steps"`
	Steps           []*Step   `json:"steps"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ToolArgs != nil {
		cp.ToolArgs = make(map[string]interface{}, len(s.ToolArgs))
		for k, v := range s.ToolArgs {
			cp.ToolArgs[k] = v
		}
	}
	if s.DependsOn != nil {
		cp.DependsOn = append([]string(nil), s.DependsOn...)
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Steps = make([]*Step, len(p.Steps))
	for i, step := range p.Steps {
		cp.Steps[i] = step.Clone()
	}
	return &cp
}
