package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestProgressBar_SilentUntilFinish(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress("Creating backup")
	p.SetWriter(buf)

	// A *bytes.Buffer is not a TTY, so intermediate updates stay silent
	// and piped output does not fill with redraws.
	p.SetFraction(0.25)
	p.SetFraction(0.5)
	p.SetFraction(0.75)

	if buf.Len() != 0 {
		t.Errorf("expected no output before Finish on non-TTY, got: %q", buf.String())
	}

	p.Finish()
	out := buf.String()

	if !strings.Contains(out, "100%") {
		t.Errorf("Finish should show 100%%, got: %q", out)
	}
	if !strings.Contains(out, "Creating backup") {
		t.Errorf("Finish should include description, got: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("expected exactly one line, got: %q", out)
	}
}

func TestProgressBar_FractionClamp(t *testing.T) {
	p := NewProgress("Test")
	p.SetWriter(&bytes.Buffer{})

	p.SetFraction(-0.5)
	if got := p.Fraction(); got != 0 {
		t.Errorf("negative fraction should clamp to 0, got %f", got)
	}

	p.SetFraction(1.7)
	if got := p.Fraction(); got != 1 {
		t.Errorf("fraction above 1 should clamp to 1, got %f", got)
	}

	p.SetFraction(0.42)
	if got := p.Fraction(); got != 0.42 {
		t.Errorf("in-range fraction should be kept, got %f", got)
	}
}

func TestProgressBar_BarWidth(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress("Test")
	p.SetWriter(buf)

	p.Finish()
	out := buf.String()

	start := strings.Index(out, "[")
	end := strings.Index(out, "]")
	if start == -1 || end == -1 {
		t.Fatalf("could not find brackets in output: %q", out)
	}

	barContent := out[start+1 : end]
	if len(barContent) != 40 {
		t.Errorf("bar width should be 40, got %d: %q", len(barContent), barContent)
	}
	if !strings.Contains(barContent, "=") {
		t.Errorf("finished bar should be filled, got: %q", barContent)
	}
}

func TestProgressBar_ConcurrentUpdates(t *testing.T) {
	p := NewProgress("Concurrent")
	p.SetWriter(&bytes.Buffer{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.SetFraction(float64(n) / 10)
		}(i)
	}
	wg.Wait()

	if got := p.Fraction(); got < 0 || got > 1 {
		t.Errorf("fraction out of range after concurrent updates: %f", got)
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Probing services")
	s.SetWriter(buf)

	s.Start()
	if got := buf.String(); got != "Probing services...\n" {
		t.Errorf("expected single message line, got: %q", got)
	}

	// Second Start is a no-op while running.
	s.Start()
	if strings.Count(buf.String(), "Probing") != 1 {
		t.Errorf("second Start should not print again, got: %q", buf.String())
	}

	s.Stop()
	// Non-TTY Stop adds nothing; there is no animation line to clear.
	if got := buf.String(); got != "Probing services...\n" {
		t.Errorf("Stop should not print on non-TTY, got: %q", got)
	}
}

func TestSpinner_StopWithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Working")
	s.SetWriter(buf)

	s.Start()
	s.StopWithMessage("Done.")

	if !strings.Contains(buf.String(), "Done.") {
		t.Errorf("expected final message, got: %q", buf.String())
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Never started")
	s.SetWriter(buf)

	// Must not panic or print.
	s.Stop()

	if buf.Len() != 0 {
		t.Errorf("Stop without Start should not print, got: %q", buf.String())
	}
}

func TestSpinner_UpdateMessageBeforeStart(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Old message")
	s.SetWriter(buf)

	s.UpdateMessage("New message")
	s.Start()

	if !strings.Contains(buf.String(), "New message") {
		t.Errorf("expected updated message, got: %q", buf.String())
	}
	if strings.Contains(buf.String(), "Old message") {
		t.Errorf("old message should not appear, got: %q", buf.String())
	}
}
