package llm

import (
	"encoding/json"
	"strings"
)

// ExtractFencedBlock returns the contents of the first markdown code fence
// in response, and whether one was found. A language tag after the opening
// fence ("```json") is skipped.
func ExtractFencedBlock(response string) (string, bool) {
	start := strings.Index(response, "```")
	if start == -1 {
		return "", false
	}

	rest := response[start+3:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		// Drop the language tag line if the fence has one.
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]") {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// ExtractJSONObject parses a JSON object out of raw model output. Models
// reliably violate "JSON only" instructions, so three strategies are tried
// in order:
//  1. the contents of a fenced code block,
//  2. the outermost {...} span,
//  3. the trimmed response as-is.
func ExtractJSONObject(response string, target interface{}) error {
	trimmed := strings.TrimSpace(response)

	if block, ok := ExtractFencedBlock(trimmed); ok {
		if err := json.Unmarshal([]byte(block), target); err == nil {
			return nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		snippet := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(snippet), target); err == nil {
			return nil
		}
	}

	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}

	return &JSONParseError{Response: response, Message: "could not parse JSON object from model response"}
}

// JSONParseError represents an error that occurred while parsing LLM JSON
// output.
type JSONParseError struct {
	Response string
	Message  string
}

func (e *JSONParseError) Error() string {
	return e.Message + ": " + TruncateForError(e.Response, 200)
}

// TruncateForError truncates a string for error messages.
func TruncateForError(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
