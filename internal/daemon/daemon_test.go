package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func pidPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "devkeep.pid")
}

func TestRunning_NoPIDFile(t *testing.T) {
	pidFile := pidPath(t)

	running, err := Running(pidFile)
	if err != nil {
		t.Errorf("Running() error = %v, want nil", err)
	}
	if running {
		t.Error("Running() = true, want false for non-existent PID file")
	}
}

func TestRunning_CurrentProcess(t *testing.T) {
	pidFile := pidPath(t)

	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, err := Running(pidFile)
	if err != nil {
		t.Errorf("Running() error = %v, want nil", err)
	}
	if !running {
		t.Error("Running() = false, want true for current process")
	}
}

func TestRunning_DeadProcess(t *testing.T) {
	pidFile := pidPath(t)

	// A very high PID that is unlikely to be in use.
	if err := os.WriteFile(pidFile, []byte("999999\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, err := Running(pidFile)
	if err != nil {
		t.Errorf("Running() error = %v, want nil", err)
	}
	if running {
		t.Error("Running() = true, want false for dead process")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("stale PID file was not removed")
	}
}

func TestRunning_InvalidPID(t *testing.T) {
	pidFile := pidPath(t)

	if err := os.WriteFile(pidFile, []byte("not-a-number\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, err := Running(pidFile)
	if err != nil {
		t.Errorf("Running() error = %v, want nil for invalid PID", err)
	}
	if running {
		t.Error("Running() = true, want false for invalid PID")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("unparseable PID file was not removed")
	}
}

func TestStop_NotRunning(t *testing.T) {
	pidFile := pidPath(t)

	if err := Stop(pidFile); err == nil {
		t.Error("Stop() expected error for non-existent daemon, got nil")
	}
}

func TestStop_InvalidPID(t *testing.T) {
	pidFile := pidPath(t)

	if err := os.WriteFile(pidFile, []byte("invalid\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	if err := Stop(pidFile); err == nil {
		t.Error("Stop() expected error for invalid PID, got nil")
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	tmpDir := t.TempDir()
	pidFile := filepath.Join(tmpDir, "devkeep.pid")
	logFile := filepath.Join(tmpDir, "devkeep.log")

	// The current process stands in for a running daemon.
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	if err := Start(pidFile, logFile, "serve"); err == nil {
		t.Error("Start() expected error for already running daemon, got nil")
	}
}

func TestStart_InvalidLogFile(t *testing.T) {
	tmpDir := t.TempDir()
	pidFile := filepath.Join(tmpDir, "devkeep.pid")
	logFile := filepath.Join(tmpDir, "nonexistent", "devkeep.log")

	if err := Start(pidFile, logFile, "serve"); err == nil {
		t.Error("Start() expected error for invalid log file path, got nil")
	}
}

func TestRemovePID(t *testing.T) {
	pidFile := pidPath(t)

	if err := os.WriteFile(pidFile, []byte("12345\n"), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	if err := RemovePID(pidFile); err != nil {
		t.Errorf("RemovePID() error = %v, want nil", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file still exists after RemovePID()")
	}

	// Removing an already-missing file is fine.
	if err := RemovePID(pidFile); err != nil {
		t.Errorf("RemovePID() on missing file error = %v, want nil", err)
	}
}
