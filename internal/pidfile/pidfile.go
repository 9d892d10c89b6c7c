// Package pidfile guards against running two server instances against the
// same state directory.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Pidfile represents a PID file
type Pidfile struct {
	path string
}

// New creates a new PID file instance
func New(path string) *Pidfile {
	return &Pidfile{path: path}
}

// Acquire writes the current PID. It fails if the file names a process that
// is still alive; a stale file from a crashed instance is replaced.
func (p *Pidfile) Acquire() error {
	if pid, err := p.Read(); err == nil && processAlive(pid) {
		return fmt.Errorf("another instance is already running (pid %d)", pid)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	content := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(p.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Read reads the PID from the PID file
func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}
	return pid, nil
}

// Release removes the PID file. Missing files are not an error.
func (p *Pidfile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the PID file path
func (p *Pidfile) Path() string {
	return p.path
}

// processAlive reports whether pid names a running process we can signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
