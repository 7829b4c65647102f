package app

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/devkeep/internal/backup"
	"github.com/blackwell-systems/devkeep/internal/command"
	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/probe"
	"github.com/blackwell-systems/devkeep/internal/services"
	"github.com/blackwell-systems/devkeep/internal/store"
)

// testEngine bundles an engine with its mocks and a channel signalling each
// audited terminal record.
type testEngine struct {
	*engine
	prober  *probe.MockProber
	runner  *command.MockRunner
	audited chan ops.Record
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	dir := t.TempDir()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	prober := &probe.MockProber{Results: map[string]probe.Result{
		"git":  {Installed: true, Version: "git version 2.44.0"},
		"node": {Installed: true, Version: "v21.6.1"},
	}}
	runner := &command.MockRunner{Responses: map[string]command.Response{}}

	cfgStore := config.NewStore(filepath.Join(dir, "config.json"))
	logger := log.New(io.Discard, "", 0)

	eng := buildEngine(dir, cfgStore, db, prober, runner, logger)
	eng.cache.Reconfigure([]services.Service{{Name: "git"}, {Name: "node"}}, time.Minute)

	te := &testEngine{engine: eng, prober: prober, runner: runner, audited: make(chan ops.Record, 8)}

	// The machine wakes waiters before running the audit hook, so tests wait
	// on this channel before asserting database rows.
	audit := eng.machine.OnTerminal
	eng.machine.OnTerminal = func(rec ops.Record) {
		audit(rec)
		te.audited <- rec
	}
	return te
}

// runToTerminal starts an operation and blocks until its terminal record is
// both published and audited.
func (te *testEngine) runToTerminal(t *testing.T, kind ops.Kind, params map[string]string) ops.Record {
	t.Helper()

	if _, err := te.Start(kind, params); err != nil {
		t.Fatalf("failed to start %s: %v", kind, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := te.machine.Wait(ctx, kind)
	if err != nil {
		t.Fatalf("failed to wait for %s: %v", kind, err)
	}

	select {
	case <-te.audited:
	case <-time.After(5 * time.Second):
		t.Fatalf("audit hook never ran for %s", kind)
	}
	return rec
}

func TestEngineBackupCreate(t *testing.T) {
	te := newTestEngine(t)

	rec := te.runToTerminal(t, ops.KindBackupCreate, map[string]string{"name": "pre-upgrade"})

	if rec.State != ops.StateSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", rec.State, rec.ErrorMessage)
	}
	info, ok := rec.Result.(*backup.Info)
	if !ok {
		t.Fatalf("expected *backup.Info result, got %T", rec.Result)
	}
	if info.Name != "pre-upgrade" {
		t.Errorf("expected name pre-upgrade, got %q", info.Name)
	}
	if info.ToolCount != 2 {
		t.Errorf("expected 2 tools, got %d", info.ToolCount)
	}
	if info.Provider != "local" {
		t.Errorf("expected default provider local, got %q", info.Provider)
	}

	rows, err := te.db.ListBackups()
	if err != nil {
		t.Fatalf("failed to list backups: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 cataloged backup, got %d", len(rows))
	}

	entries, err := te.db.ListOperations(10)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audited operation, got %d", len(entries))
	}
	if entries[0].Kind != string(ops.KindBackupCreate) || entries[0].State != string(ops.StateSucceeded) {
		t.Errorf("unexpected audit entry: kind=%s state=%s", entries[0].Kind, entries[0].State)
	}
}

func TestEngineBackupCreateDefaultName(t *testing.T) {
	te := newTestEngine(t)

	rec := te.runToTerminal(t, ops.KindBackupCreate, map[string]string{})

	if rec.State != ops.StateSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", rec.State, rec.ErrorMessage)
	}
	info := rec.Result.(*backup.Info)
	if info.Name == "" {
		t.Error("expected a generated timestamp name")
	}
}

func TestEngineBackupRestore(t *testing.T) {
	te := newTestEngine(t)

	createRec := te.runToTerminal(t, ops.KindBackupCreate, map[string]string{"name": "baseline"})
	if createRec.State != ops.StateSucceeded {
		t.Fatalf("backup create failed: %s", createRec.ErrorMessage)
	}

	// node disappears from the host after the backup was taken.
	te.prober.Results["node"] = probe.Result{Installed: false}
	te.runner.Responses["brew install node@v21.6.1"] = command.Response{Output: "installed node"}

	rec := te.runToTerminal(t, ops.KindBackupRestore, map[string]string{"ref": "baseline"})
	if rec.State != ops.StateSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", rec.State, rec.ErrorMessage)
	}

	report, ok := rec.Result.(*backup.RestoreReport)
	if !ok {
		t.Fatalf("expected *backup.RestoreReport result, got %T", rec.Result)
	}
	if len(report.Restored) != 1 || report.Restored[0] != "node" {
		t.Errorf("expected node restored, got %v", report.Restored)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "git" {
		t.Errorf("expected git skipped, got %v", report.Skipped)
	}

	found := false
	for _, call := range te.runner.Calls {
		if call == "brew install node@v21.6.1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected versioned brew install, got calls %v", te.runner.Calls)
	}
}

func TestEngineStartValidatesParams(t *testing.T) {
	te := newTestEngine(t)

	tests := []struct {
		name    string
		kind    ops.Kind
		params  map[string]string
		wantErr string
	}{
		{"restore without ref", ops.KindBackupRestore, nil, "requires a ref"},
		{"delete without ref", ops.KindBackupDelete, map[string]string{}, "requires a ref"},
		{"install without tool", ops.KindServiceInstall, nil, "requires a tool"},
		{"configure without tool", ops.KindServiceConfigure, nil, "requires a tool"},
		{"configure unknown tool", ops.KindServiceConfigure, map[string]string{"tool": "docker"}, "no configure steps"},
		{"unknown kind", ops.Kind("bogus"), nil, "unknown operation kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.Start(tt.kind, tt.params)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	// Parameter failures must not burn the slot.
	for _, kind := range ops.Kinds() {
		if _, ok := te.machine.Current(kind); ok {
			t.Errorf("expected no record for %s after validation failures", kind)
		}
	}
}

func TestEngineConflictUntilCleared(t *testing.T) {
	te := newTestEngine(t)

	te.runToTerminal(t, ops.KindBackupCreate, map[string]string{"name": "first"})

	_, err := te.Start(ops.KindBackupCreate, map[string]string{"name": "second"})
	var conflict *ops.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ops.ConflictError, got %v", err)
	}
	if conflict.Kind != ops.KindBackupCreate {
		t.Errorf("expected conflict kind backupCreate, got %s", conflict.Kind)
	}

	if err := te.machine.Clear(ops.KindBackupCreate); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	rec := te.runToTerminal(t, ops.KindBackupCreate, map[string]string{"name": "second"})
	if rec.State != ops.StateSucceeded {
		t.Fatalf("expected second create to succeed after clear, got %s", rec.State)
	}
}

func TestEngineServiceInstall(t *testing.T) {
	te := newTestEngine(t)

	te.runner.Responses["brew install ruby"] = command.Response{Output: "ruby installed"}
	te.prober.Results["ruby"] = probe.Result{Installed: true, Version: "ruby 3.3.0"}

	rec := te.runToTerminal(t, ops.KindServiceInstall, map[string]string{"tool": "ruby"})
	if rec.State != ops.StateSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", rec.State, rec.ErrorMessage)
	}
	msg, ok := rec.Result.(string)
	if !ok || !strings.Contains(msg, "ruby 3.3.0") {
		t.Errorf("expected result to carry the probed version, got %v", rec.Result)
	}
}

func TestEngineServiceInstallFailure(t *testing.T) {
	te := newTestEngine(t)

	// No canned response, so the runner rejects the brew call.
	rec := te.runToTerminal(t, ops.KindServiceInstall, map[string]string{"tool": "ruby"})

	if rec.State != ops.StateFailed {
		t.Fatalf("expected failed, got %s", rec.State)
	}
	if rec.Error != ops.ErrorKindExternal {
		t.Errorf("expected external error kind, got %s", rec.Error)
	}
	if !strings.Contains(rec.ErrorMessage, "brew install ruby") {
		t.Errorf("expected brew failure detail, got %q", rec.ErrorMessage)
	}

	entries, err := te.db.ListOperations(10)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(entries) != 1 || entries[0].ErrorKind != string(ops.ErrorKindExternal) {
		t.Fatalf("expected audited external failure, got %+v", entries)
	}
}

func TestEngineServiceConfigure(t *testing.T) {
	te := newTestEngine(t)

	te.runner.Responses["git config --global init.defaultBranch main"] = command.Response{}

	rec := te.runToTerminal(t, ops.KindServiceConfigure, map[string]string{"tool": "git"})
	if rec.State != ops.StateSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", rec.State, rec.ErrorMessage)
	}
	msg, ok := rec.Result.(string)
	if !ok || !strings.Contains(msg, "default branch main") {
		t.Errorf("expected applied step description, got %v", rec.Result)
	}
}

func TestEngineAuditTrail(t *testing.T) {
	te := newTestEngine(t)

	te.runner.Responses["git config --global init.defaultBranch main"] = command.Response{}

	te.runToTerminal(t, ops.KindBackupCreate, map[string]string{"name": "trail"})
	te.runToTerminal(t, ops.KindServiceConfigure, map[string]string{"tool": "git"})

	entries, err := te.db.ListOperations(10)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audited operations, got %d", len(entries))
	}

	kinds := map[string]bool{}
	for _, e := range entries {
		kinds[e.Kind] = true
		if e.State != string(ops.StateSucceeded) {
			t.Errorf("expected succeeded entries, got %s for %s", e.State, e.Kind)
		}
	}
	if !kinds[string(ops.KindBackupCreate)] || !kinds[string(ops.KindServiceConfigure)] {
		t.Errorf("expected both kinds audited, got %v", kinds)
	}
}
