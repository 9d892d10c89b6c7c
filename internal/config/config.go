package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// DefaultMaxSteps is the hard ceiling on synthesized plan length.
	DefaultMaxSteps = 20
	// DefaultStepTimeoutMs bounds a single step's tool invocation.
	DefaultStepTimeoutMs = 60_000
)

// Config holds the application configuration
type Config struct {
	// Orchestration settings
	Enabled         bool `json:"enabled"`           // whether task orchestration is active at all
	AutoExecute     bool `json:"auto_execute"`      // skip the confirmation prompt
	ContinueOnError bool `json:"continue_on_error"` // record step failures and keep going
	MaxSteps        int  `json:"max_steps"`         // plan synthesis rejects longer plans
	StepTimeoutMs   int  `json:"step_timeout_ms"`   // per-step execution timeout

	// LLM provider settings
	Provider  string `json:"provider"` // "anthropic" or "openai"
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env"` // env var holding the API key

	// Control server
	ListenAddr string `json:"listen_addr"`

	// Task history
	HistoryDBPath string `json:"history_db_path"`

	// Logging
	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "taskpilot")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "taskpilot")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "taskpilot")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		return defaultConfigDir()
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "taskpilot")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		Enabled:         true,
		AutoExecute:     false,
		ContinueOnError: false,
		MaxSteps:        DefaultMaxSteps,
		StepTimeoutMs:   DefaultStepTimeoutMs,
		Provider:        "anthropic",
		APIKeyEnv:       "",
		ListenAddr:      "127.0.0.1:8123",
		HistoryDBPath:   filepath.Join(stateDir, "history.db"),
		LogLevel:        "info",
		LogPath:         filepath.Join(stateDir, "taskpilot.log"),
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// Ensure critical fields have defaults if still empty
	if config.MaxSteps <= 0 {
		config.MaxSteps = DefaultMaxSteps
	}
	if config.StepTimeoutMs <= 0 {
		config.StepTimeoutMs = DefaultStepTimeoutMs
	}
	if config.Provider == "" {
		config.Provider = "anthropic"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:8123"
	}
	if config.HistoryDBPath == "" {
		config.HistoryDBPath = filepath.Join(defaultStateDir(), "history.db")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(defaultStateDir(), "taskpilot.log")
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
