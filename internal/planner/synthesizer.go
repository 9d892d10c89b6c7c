package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codefionn/taskpilot/internal/ident"
	"github.com/codefionn/taskpilot/internal/llm"
	"github.com/codefionn/taskpilot/internal/logger"
	"github.com/codefionn/taskpilot/internal/tools"
)

const defaultComplexity = 5

const planSystemPrompt = "You are a task planning assistant. " +
	"Respond with a single JSON object and nothing else: no prose, no markdown fences."

const planPromptTemplate = `Analyze the following task and produce a step-by-step execution plan.

Available tools:
%s

Task:
%s

Respond with a JSON object of this shape:
{
  "analysis": "one-paragraph summary of what the task requires",
  "complexity": 5,
  "steps": [
    {
      "title": "short step title",
      "description": "what this step does and why",
      "tool": "name of the tool to invoke, omit for a note-only step",
      "args": {"parameter": "value"},
      "depends_on": []
    }
  ]
}

complexity is an integer from 1 (trivial) to 10 (very hard). Only reference
tools from the list above. Keep the plan as short as the task allows.`

// Synthesizer converts task descriptions into validated Plans.
type Synthesizer struct {
	client   llm.Client
	registry *tools.Registry
	maxSteps int
}

// NewSynthesizer creates a Synthesizer. maxSteps is the hard ceiling on plan
// length; longer plans are rejected, never truncated.
func NewSynthesizer(client llm.Client, registry *tools.Registry, maxSteps int) *Synthesizer {
	return &Synthesizer{
		client:   client,
		registry: registry,
		maxSteps: maxSteps,
	}
}

type rawStep struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Tool        string                 `json:"tool"`
	Args        map[string]interface{} `json:"args"`
	DependsOn   []string               `json:"depends_on"`
}

type rawPlan struct {
	Analysis   string      `json:"analysis"`
	Complexity interface{} `json:"complexity"`
	Steps      []rawStep   `json:"steps"`
}

// Synthesize asks the completion capability for a plan and validates it.
// It never returns a partially valid plan: any parse or structural failure
// is a single descriptive error.
func (s *Synthesizer) Synthesize(ctx context.Context, taskDescription string) (*Plan, error) {
	prompt := fmt.Sprintf(planPromptTemplate, s.formatToolList(), taskDescription)

	response, err := s.client.Complete(ctx, prompt, planSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("plan synthesis request failed: %w", err)
	}

	var raw rawPlan
	if err := llm.ExtractJSONObject(response, &raw); err != nil {
		return nil, fmt.Errorf("plan synthesis produced unparseable output: %w", err)
	}

	steps := make([]*Step, 0, len(raw.Steps))
	for i, rs := range raw.Steps {
		title := strings.TrimSpace(rs.Title)
		if title == "" {
			title = fmt.Sprintf("Step %d", i+1)
		}
		args := rs.Args
		if args == nil {
			args = make(map[string]interface{})
		}
		dependsOn := rs.DependsOn
		if dependsOn == nil {
			dependsOn = []string{}
		}
		steps = append(steps, &Step{
			ID:          ident.New("step"),
			Index:       i,
			Title:       title,
			Description: rs.Description,
			ToolName:    rs.Tool,
			ToolArgs:    args,
			Status:      StepPending,
			DependsOn:   dependsOn,
		})
	}

	// A silently shortened plan is worse than an explicit rejection: the
	// user never approved the truncation.
	if s.maxSteps > 0 && len(steps) > s.maxSteps {
		return nil, fmt.Errorf("synthesized plan has %d steps, exceeding the maximum of %d", len(steps), s.maxSteps)
	}

	plan := &Plan{
		ID:              ident.New("plan"),
		OriginalTask:    taskDescription,
		AnalysisSummary: raw.Analysis,
		Complexity:      clampComplexity(raw.Complexity),
		EstimatedSteps:  len(steps),
		Steps:           steps,
		CreatedAt:       time.Now(),
	}

	logger.Info("Synthesized plan %s: %d steps, complexity %d", plan.ID, len(steps), plan.Complexity)
	return plan, nil
}

// formatToolList renders the enabled tools for the prompt. Synthesis still
// proceeds with zero tools; plans may consist entirely of note-only steps.
func (s *Synthesizer) formatToolList() string {
	enabled := s.registry.ListEnabled()
	if len(enabled) == 0 {
		return "(no tools are currently available)"
	}

	var sb strings.Builder
	for _, def := range enabled {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)

		names := make([]string, 0, len(def.Parameters))
		for name := range def.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			param := def.Parameters[name]
			fmt.Fprintf(&sb, "    %s (%s): %s\n", name, param.Type, param.Description)
		}
		if len(def.Required) > 0 {
			fmt.Fprintf(&sb, "    required parameters: %s\n", strings.Join(def.Required, ", "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func clampComplexity(v interface{}) int {
	value := defaultComplexity
	switch n := v.(type) {
	case float64:
		value = int(n)
	case int:
		value = n
	case string:
		var parsed int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err == nil {
			value = parsed
		}
	}
	if value < 1 {
		value = 1
	}
	if value > 10 {
		value = 10
	}
	return value
}
