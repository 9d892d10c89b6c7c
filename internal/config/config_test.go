package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("expected orchestration enabled by default")
	}
	if cfg.AutoExecute {
		t.Error("expected auto_execute disabled by default")
	}
	if cfg.MaxSteps != DefaultMaxSteps {
		t.Errorf("MaxSteps = %d; want %d", cfg.MaxSteps, DefaultMaxSteps)
	}
	if cfg.StepTimeoutMs != DefaultStepTimeoutMs {
		t.Errorf("StepTimeoutMs = %d; want %d", cfg.StepTimeoutMs, DefaultStepTimeoutMs)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q; want anthropic", cfg.Provider)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxSteps != DefaultMaxSteps {
		t.Errorf("MaxSteps = %d; want default %d", cfg.MaxSteps, DefaultMaxSteps)
	}
}

func TestLoadOverridesAndRedefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"max_steps": 5, "continue_on_error": true, "provider": "", "step_timeout_ms": 0}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxSteps != 5 {
		t.Errorf("MaxSteps = %d; want 5", cfg.MaxSteps)
	}
	if !cfg.ContinueOnError {
		t.Error("ContinueOnError not applied from file")
	}
	// Empty/zero fields fall back to defaults.
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q; want redefaulted anthropic", cfg.Provider)
	}
	if cfg.StepTimeoutMs != DefaultStepTimeoutMs {
		t.Errorf("StepTimeoutMs = %d; want redefaulted %d", cfg.StepTimeoutMs, DefaultStepTimeoutMs)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.MaxSteps = 7
	cfg.Model = "claude-sonnet-4-5"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.MaxSteps != 7 || loaded.Model != "claude-sonnet-4-5" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}
