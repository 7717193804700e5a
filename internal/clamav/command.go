// Package clamav scans release archives for malware with ClamAV running in
// a Docker container.
package clamav

import (
	"context"
	"os/exec"
	"sync"
)

// CommandRunner executes external commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a command runner that executes real commands.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ScriptedRunner replays canned responses in call order. Calls past the end
// of the script repeat the last response. It is used by tests in this and
// dependent packages.
type ScriptedRunner struct {
	mu        sync.Mutex
	Responses []ScriptedResponse
	Calls     [][]string
}

// ScriptedResponse is one canned command result.
type ScriptedResponse struct {
	Output []byte
	Err    error
}

// Run records the call and returns the next scripted response.
func (s *ScriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, append([]string{name}, args...))
	if len(s.Responses) == 0 {
		return nil, nil
	}
	idx := len(s.Calls) - 1
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	r := s.Responses[idx]
	return r.Output, r.Err
}
