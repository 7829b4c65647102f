// Package probe answers "can I use this tool" by running an external
// executable with a version argument under a deadline.
package probe

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultVersionArg is passed to tools that declare no explicit one.
	DefaultVersionArg = "--version"
	// DefaultTimeout bounds a single probe invocation.
	DefaultTimeout = 3 * time.Second
)

// Result is the outcome of one probe invocation. Results are immutable;
// a newer probe supersedes, never mutates, an older one.
type Result struct {
	Tool      string    `json:"tool"`
	Installed bool      `json:"installed"`
	Version   string    `json:"version,omitempty"`
	ProbedAt  time.Time `json:"probedAt"`
}

// Prober runs tool probes. Implementations must be safe for concurrent use.
type Prober interface {
	// Probe checks whether tool is usable. versionArg overrides the
	// argument passed to the tool; empty means DefaultVersionArg.
	Probe(ctx context.Context, tool, versionArg string) Result
}

// ExecProber probes by executing "<tool> <versionArg>" in a child process.
// A probe never returns an error: spawn failure, non-zero exit, and timeout
// all normalize to Installed=false.
type ExecProber struct {
	// Timeout bounds each invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (p *ExecProber) Probe(ctx context.Context, tool, versionArg string) Result {
	if versionArg == "" {
		versionArg = DefaultVersionArg
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := Result{Tool: tool, ProbedAt: time.Now()}

	out, err := exec.CommandContext(ctx, tool, versionArg).CombinedOutput()
	if err != nil {
		// Not installed, hung past the deadline, or exited non-zero.
		// All of these mean the tool is not usable right now.
		return res
	}

	res.Installed = true
	res.Version = strings.TrimSpace(string(out))
	return res
}

// FirstVersionLine reduces a multi-line version banner to its first line,
// for compact rendering.
func FirstVersionLine(version string) string {
	if idx := strings.IndexByte(version, '\n'); idx >= 0 {
		return strings.TrimSpace(version[:idx])
	}
	return version
}
