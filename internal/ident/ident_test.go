package ident

import (
	"strings"
	"testing"
)

func TestNewHasPrefixAndLength(t *testing.T) {
	id := New("task")
	if !strings.HasPrefix(id, "task-") {
		t.Errorf("New(\"task\") = %q; want task- prefix", id)
	}
	if len(id) != len("task-")+16 {
		t.Errorf("New(\"task\") = %q; want 16 hex chars after prefix", id)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New("step")
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewSessionIDShape(t *testing.T) {
	id := NewSessionID()
	parts := strings.Split(id, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		t.Errorf("NewSessionID() = %q; want adjective-noun", id)
	}
}
