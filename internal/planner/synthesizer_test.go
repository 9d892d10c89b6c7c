package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/taskpilot/internal/tools"
)

// mockClient returns a canned response and records the last prompt.
type mockClient struct {
	response   string
	err        error
	lastPrompt string
	lastSystem string
}

func (m *mockClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	m.lastPrompt = prompt
	m.lastSystem = systemPrompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockClient) ModelName() string { return "mock" }

func registryWithEcho(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	r.Register(tools.Definition{
		ID:          "echo-id",
		Name:        "echo",
		Description: "Echo text back",
		Parameters: map[string]tools.Parameter{
			"text": {Type: "string", Description: "text to echo"},
		},
		Required: []string{"text"},
		Enabled:  true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return tools.GetStringParam(args, "text", ""), nil
		},
	}, tools.SourceBuiltin)
	return r
}

func TestSynthesizeBuildsPlan(t *testing.T) {
	client := &mockClient{response: `{
		"analysis": "two echo calls",
		"complexity": 3,
		"steps": [
			{"title": "First", "tool": "echo", "args": {"text": "a"}},
			{"description": "no title here", "tool": "echo", "args": {"text": "b"}}
		]
	}`}

	s := NewSynthesizer(client, registryWithEcho(t), 10)
	plan, err := s.Synthesize(context.Background(), "echo a then b")
	require.NoError(t, err)

	assert.Equal(t, "echo a then b", plan.OriginalTask)
	assert.Equal(t, "two echo calls", plan.AnalysisSummary)
	assert.Equal(t, 3, plan.Complexity)
	assert.Equal(t, 2, plan.EstimatedSteps)
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, 0, plan.Steps[0].Index)
	assert.Equal(t, "First", plan.Steps[0].Title)
	assert.Equal(t, StepPending, plan.Steps[0].Status)
	// Missing title defaults to positional naming.
	assert.Equal(t, "Step 2", plan.Steps[1].Title)
	assert.NotEmpty(t, plan.Steps[1].ID)
	assert.NotNil(t, plan.Steps[1].DependsOn)

	// Prompt carries the tool listing and the verbatim task text.
	assert.Contains(t, client.lastPrompt, "echo: Echo text back")
	assert.Contains(t, client.lastPrompt, "text (string): text to echo")
	assert.Contains(t, client.lastPrompt, "required parameters: text")
	assert.Contains(t, client.lastPrompt, "echo a then b")
	assert.Contains(t, client.lastSystem, "JSON")
}

func TestSynthesizeNoToolsStillProceeds(t *testing.T) {
	client := &mockClient{response: `{"analysis": "notes only", "steps": []}`}
	s := NewSynthesizer(client, tools.NewRegistry(nil), 10)

	plan, err := s.Synthesize(context.Background(), "think about it")
	require.NoError(t, err)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, 0, plan.EstimatedSteps)
	assert.Contains(t, client.lastPrompt, "no tools are currently available")
}

func TestSynthesizeComplexityClamp(t *testing.T) {
	tests := []struct {
		name       string
		complexity string
		expected   int
	}{
		{"absent", ``, 5},
		{"in range", `"complexity": 7,`, 7},
		{"above range", `"complexity": 42,`, 10},
		{"below range", `"complexity": -3,`, 1},
		{"zero", `"complexity": 0,`, 1},
		{"non-numeric", `"complexity": "hard",`, 5},
		{"numeric string", `"complexity": "8",`, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{response: `{"analysis": "x", ` + tt.complexity + ` "steps": []}`}
			s := NewSynthesizer(client, tools.NewRegistry(nil), 10)
			plan, err := s.Synthesize(context.Background(), "task")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, plan.Complexity)
		})
	}
}

func TestSynthesizeRejectsOversizedPlan(t *testing.T) {
	var steps []string
	for i := 0; i < 4; i++ {
		steps = append(steps, `{"title": "s"}`)
	}
	client := &mockClient{response: `{"analysis": "x", "steps": [` + strings.Join(steps, ",") + `]}`}

	s := NewSynthesizer(client, tools.NewRegistry(nil), 3)
	_, err := s.Synthesize(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeding the maximum")
}

func TestSynthesizeUnparseableOutput(t *testing.T) {
	client := &mockClient{response: "not json at all"}
	s := NewSynthesizer(client, tools.NewRegistry(nil), 10)

	_, err := s.Synthesize(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable")
}

func TestSynthesizeCompletionFailure(t *testing.T) {
	client := &mockClient{err: errors.New("upstream down")}
	s := NewSynthesizer(client, tools.NewRegistry(nil), 10)

	_, err := s.Synthesize(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestSynthesizeFencedResponse(t *testing.T) {
	client := &mockClient{response: "Here you go:\n```json\n{\"analysis\": \"fenced\", \"complexity\": 2, \"steps\": [{\"title\": \"only\"}]}\n```"}
	s := NewSynthesizer(client, tools.NewRegistry(nil), 10)

	plan, err := s.Synthesize(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "fenced", plan.AnalysisSummary)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "only", plan.Steps[0].Title)
}

func TestPlanClone(t *testing.T) {
	client := &mockClient{response: `{"analysis": "x", "steps": [{"title": "a", "args": {"k": "v"}, "tool": "echo"}]}`}
	s := NewSynthesizer(client, registryWithEcho(t), 10)
	plan, err := s.Synthesize(context.Background(), "task")
	require.NoError(t, err)

	clone := plan.Clone()
	clone.Steps[0].Status = StepCompleted
	clone.Steps[0].ToolArgs["k"] = "mutated"

	assert.Equal(t, StepPending, plan.Steps[0].Status)
	assert.Equal(t, "v", plan.Steps[0].ToolArgs["k"])
}
