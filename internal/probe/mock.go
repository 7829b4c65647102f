package probe

import (
	"context"
	"sync"
	"time"
)

// MockProber returns canned results and records every invocation. Results
// is read during probing and must be populated before use; call recording
// is safe under concurrent probes. For tests.
type MockProber struct {
	// Results maps tool name to its canned result. Tools without an entry
	// probe as not installed.
	Results map[string]Result

	mu    sync.Mutex
	calls []string
}

func (m *MockProber) Probe(ctx context.Context, tool, versionArg string) Result {
	m.mu.Lock()
	m.calls = append(m.calls, tool)
	m.mu.Unlock()

	res, ok := m.Results[tool]
	if !ok {
		return Result{Tool: tool, ProbedAt: time.Now()}
	}
	res.Tool = tool
	if res.ProbedAt.IsZero() {
		res.ProbedAt = time.Now()
	}
	return res
}

// Calls returns a copy of the probed tool names in invocation order.
func (m *MockProber) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times tool has been probed.
func (m *MockProber) CallCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == tool {
			n++
		}
	}
	return n
}
