package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blackwell-systems/devkeep/internal/daemon"
	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/output"
)

// signalContext returns a context cancelled by Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runOperation requests an operation, mirrors its progress into a bar while
// it runs, and returns the terminal record. An interrupt cancels the
// operation and reports the settled record.
func runOperation(ctx context.Context, eng *engine, kind ops.Kind, params map[string]string, description string) (ops.Record, error) {
	if _, err := eng.Start(kind, params); err != nil {
		return ops.Record{}, err
	}

	bar := output.NewProgress(description)
	done := make(chan struct{})
	go followProgress(eng.machine, kind, bar, done)

	rec, err := eng.machine.Wait(ctx, kind)
	if err != nil && ctx.Err() != nil {
		// Interrupted. Cancel is best effort: the action may have reached a
		// terminal state on its own in the meantime.
		eng.machine.Cancel(kind)
		rec, err = eng.machine.Wait(context.Background(), kind)
	}
	close(done)
	if err != nil {
		return rec, err
	}

	switch rec.State {
	case ops.StateSucceeded:
		bar.Finish()
		return rec, nil
	case ops.StateCancelled:
		return rec, fmt.Errorf("%s cancelled", kind)
	default:
		return rec, fmt.Errorf("%s", rec.ErrorMessage)
	}
}

// followProgress polls the current record and mirrors its progress into bar
// until done closes.
func followProgress(machine *ops.Machine, kind ops.Kind, bar *output.ProgressBar, done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if rec, ok := machine.Current(kind); ok {
				bar.SetFraction(rec.Progress)
			}
		}
	}
}

// daemonState reports whether the serve daemon is running and its PID.
func daemonState() (bool, int) {
	pidFile, err := pidFilePath()
	if err != nil {
		return false, 0
	}
	running, err := daemon.Running(pidFile)
	if err != nil || !running {
		return false, 0
	}

	pidData, err := os.ReadFile(pidFile)
	if err != nil {
		return true, 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(pidData)))
	return true, pid
}
