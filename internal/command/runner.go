// Package command abstracts external process execution so components that
// shell out (installer, metric collection, doctor checks) stay testable.
package command

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands.
type Runner interface {
	// Run executes a command and returns its stdout trimmed of surrounding
	// whitespace.
	Run(ctx context.Context, name string, args ...string) (string, error)
	// RunLines executes a command and returns stdout split into non-empty
	// lines.
	RunLines(ctx context.Context, name string, args ...string) ([]string, error)
	// LookPath reports whether an executable is available in PATH.
	LookPath(name string) bool
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		// Surface stderr when the process ran but exited non-zero.
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s failed: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *ExecRunner) RunLines(ctx context.Context, name string, args ...string) ([]string, error) {
	out, err := r.Run(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (r *ExecRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Response is a canned result for MockRunner.
type Response struct {
	Output string
	Err    error
}

// MockRunner maps "name arg1 arg2" keys to canned responses and records
// every invocation for verification. For tests.
type MockRunner struct {
	Responses map[string]Response
	Calls     []string
	Missing   []string // executables LookPath should report as absent
}

func (m *MockRunner) key(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	k := m.key(name, args...)
	m.Calls = append(m.Calls, k)

	resp, ok := m.Responses[k]
	if !ok {
		return "", fmt.Errorf("mock: unknown command %q", k)
	}
	return resp.Output, resp.Err
}

func (m *MockRunner) RunLines(ctx context.Context, name string, args ...string) ([]string, error) {
	out, err := m.Run(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (m *MockRunner) LookPath(name string) bool {
	for _, missing := range m.Missing {
		if missing == name {
			return false
		}
	}
	return true
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
