package llm

import (
	"errors"
	"strings"
	"testing"
)

type payload struct {
	Analysis string `json:"analysis"`
	Count    int    `json:"count"`
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected payload
	}{
		{
			name:     "bare json",
			response: `{"analysis": "ok", "count": 2}`,
			expected: payload{Analysis: "ok", Count: 2},
		},
		{
			name:     "fenced with language tag",
			response: "Here is the plan:\n```json\n{\"analysis\": \"fenced\", \"count\": 1}\n```\nDone.",
			expected: payload{Analysis: "fenced", Count: 1},
		},
		{
			name:     "fenced without language tag",
			response: "```\n{\"analysis\": \"plain fence\", \"count\": 3}\n```",
			expected: payload{Analysis: "plain fence", Count: 3},
		},
		{
			name:     "unterminated fence",
			response: "```json\n{\"analysis\": \"open\", \"count\": 4}",
			expected: payload{Analysis: "open", Count: 4},
		},
		{
			name:     "json embedded in prose",
			response: `Sure! The result is {"analysis": "embedded", "count": 5} as requested.`,
			expected: payload{Analysis: "embedded", Count: 5},
		},
		{
			name:     "nested braces",
			response: `prefix {"analysis": "nested", "count": 6, "extra": {"a": 1}} suffix`,
			expected: payload{Analysis: "nested", Count: 6},
		},
		{
			name:     "not json at all",
			response: "not json at all",
			wantErr:  true,
		},
		{
			name:     "empty",
			response: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			err := ExtractJSONObject(tt.response, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				var parseErr *JSONParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("expected *JSONParseError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONObject failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %+v; want %+v", got, tt.expected)
			}
		})
	}
}

func TestExtractFencedBlock(t *testing.T) {
	block, ok := ExtractFencedBlock("```json\n{\"a\":1}\n```")
	if !ok || block != `{"a":1}` {
		t.Errorf("ExtractFencedBlock = %q, %v", block, ok)
	}

	if _, ok := ExtractFencedBlock("no fences here"); ok {
		t.Error("expected no fenced block")
	}
}

func TestTruncateForError(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := TruncateForError(long, 200)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("TruncateForError length = %d", len(got))
	}

	if got := TruncateForError("short", 200); got != "short" {
		t.Errorf("TruncateForError(short) = %q", got)
	}
}
