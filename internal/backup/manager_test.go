package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, string) {
	t.Helper()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	dataDir := t.TempDir()
	return NewManager(db, dataDir), db, dataDir
}

func noProgress(float64) {}

func testTools() []ToolState {
	return []ToolState{
		{Name: "git", Installed: true, Version: "2.44.0"},
		{Name: "node", Installed: true, Version: "21.6.1"},
		{Name: "legacy", Installed: false},
	}
}

func TestCreateCatalogsBackup(t *testing.T) {
	mgr, db, dataDir := newTestManager(t)

	var progress []float64
	info, err := mgr.Create(context.Background(), func(p float64) { progress = append(progress, p) }, CreateOptions{
		Name:     "nightly",
		Provider: config.ProviderLocal,
		Tools:    testTools(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if info.Name != "nightly" {
		t.Errorf("expected name nightly, got %s", info.Name)
	}
	if info.ToolCount != 3 {
		t.Errorf("expected 3 tools, got %d", info.ToolCount)
	}
	if !strings.HasPrefix(info.Path, filepath.Join(dataDir, "backups")) {
		t.Errorf("manifest path %s not under data dir", info.Path)
	}

	data, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatalf("manifest file not written: %v", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != info.Checksum {
		t.Errorf("checksum mismatch: file %s, info %s", got, info.Checksum)
	}
	if info.SizeBytes != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), info.SizeBytes)
	}

	row, err := db.GetBackup(info.ID)
	if err != nil {
		t.Fatalf("backup not cataloged: %v", err)
	}
	if row.Checksum != info.Checksum || row.ManifestPath != info.Path {
		t.Errorf("catalog row does not match info: %+v vs %+v", row, info)
	}

	if len(progress) == 0 {
		t.Fatal("expected progress reports")
	}
	for i, p := range progress {
		if p < 0 || p > 1 {
			t.Errorf("progress[%d] = %f out of range", i, p)
		}
		if i > 0 && p < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
		}
	}
}

func TestCreateCancelledContext(t *testing.T) {
	mgr, db, _ := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mgr.Create(ctx, noProgress, CreateOptions{Name: "never", Provider: config.ProviderLocal}); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	rows, err := db.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no cataloged backups after cancelled create, got %d", len(rows))
	}
}

func TestRestoreReinstallsMissingTools(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	info, err := mgr.Create(context.Background(), noProgress, CreateOptions{
		Name:     "pre-wipe",
		Provider: config.ProviderLocal,
		Tools:    testTools(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var installed []string
	have := func(tool string) bool { return tool == "git" }
	install := func(ctx context.Context, tool, version string) error {
		installed = append(installed, tool+"@"+version)
		return nil
	}

	report, err := mgr.Restore(context.Background(), noProgress, info.ID, have, install)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if len(installed) != 1 || installed[0] != "node@21.6.1" {
		t.Errorf("expected only node reinstalled at its recorded version, got %v", installed)
	}
	if len(report.Restored) != 1 || report.Restored[0] != "node" {
		t.Errorf("expected restored [node], got %v", report.Restored)
	}
	// git is present already, legacy was never installed.
	if len(report.Skipped) != 2 {
		t.Errorf("expected 2 skipped, got %v", report.Skipped)
	}
	if len(report.Failed) != 0 {
		t.Errorf("expected no failures, got %v", report.Failed)
	}
}

func TestRestoreCollectsFailures(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	info, err := mgr.Create(context.Background(), noProgress, CreateOptions{
		Name:     "flaky",
		Provider: config.ProviderLocal,
		Tools: []ToolState{
			{Name: "git", Installed: true},
			{Name: "node", Installed: true},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	install := func(ctx context.Context, tool, version string) error {
		if tool == "node" {
			return fmt.Errorf("formula not found")
		}
		return nil
	}

	report, err := mgr.Restore(context.Background(), noProgress, info.ID, nil, install)
	if err == nil {
		t.Fatal("expected summary error when installs fail")
	}
	if !strings.Contains(err.Error(), "restored 1/2 tools, 1 failures") {
		t.Errorf("unexpected summary error: %v", err)
	}
	if report == nil {
		t.Fatal("expected report alongside error")
	}
	if len(report.Failed) != 1 || report.Failed[0] != "node" {
		t.Errorf("expected failed [node], got %v", report.Failed)
	}
	if len(report.Restored) != 1 || report.Restored[0] != "git" {
		t.Errorf("expected restored [git], got %v", report.Restored)
	}
}

func TestRestoreChecksumMismatch(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	info, err := mgr.Create(context.Background(), noProgress, CreateOptions{
		Name:     "tampered",
		Provider: config.ProviderLocal,
		Tools:    testTools(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := os.WriteFile(info.Path, []byte(`{"schemaVersion":"1","tools":[]}`), 0644); err != nil {
		t.Fatalf("failed to tamper with manifest: %v", err)
	}

	_, err = mgr.Restore(context.Background(), noProgress, info.ID, nil, nil)
	if err == nil {
		t.Fatal("expected checksum verification error")
	}
	if !strings.Contains(err.Error(), "checksum") {
		t.Errorf("expected checksum error, got: %v", err)
	}
}

func TestDeleteRemovesFileAndRow(t *testing.T) {
	mgr, db, _ := newTestManager(t)

	info, err := mgr.Create(context.Background(), noProgress, CreateOptions{
		Name:     "doomed",
		Provider: config.ProviderLocal,
		Tools:    testTools(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deleted, err := mgr.Delete(context.Background(), noProgress, info.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted.ID != info.ID {
		t.Errorf("expected deleted id %s, got %s", info.ID, deleted.ID)
	}

	if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
		t.Errorf("manifest file still exists after delete")
	}
	if _, err := db.GetBackup(info.ID); err == nil {
		t.Error("catalog row still present after delete")
	}
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	mgr, db, _ := newTestManager(t)

	info, err := mgr.Create(context.Background(), noProgress, CreateOptions{
		Name:     "half-gone",
		Provider: config.ProviderLocal,
		Tools:    testTools(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.Remove(info.Path); err != nil {
		t.Fatalf("failed to remove manifest: %v", err)
	}

	if _, err := mgr.Delete(context.Background(), noProgress, info.ID); err != nil {
		t.Fatalf("Delete should tolerate missing manifest file: %v", err)
	}
	if _, err := db.GetBackup(info.ID); err == nil {
		t.Error("catalog row still present after delete")
	}
}

func TestPruneRespectsRetention(t *testing.T) {
	mgr, db, dataDir := newTestManager(t)

	backupDir := filepath.Join(dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		t.Fatalf("failed to create backup dir: %v", err)
	}

	writeRow := func(id, name string, age time.Duration) string {
		t.Helper()
		path := filepath.Join(backupDir, name+".json")
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("failed to write manifest: %v", err)
		}
		err := db.InsertBackup(&store.Backup{
			ID:           id,
			Name:         name,
			Provider:     "local",
			CreatedAt:    time.Now().Add(-age),
			ManifestPath: path,
		})
		if err != nil {
			t.Fatalf("failed to insert backup row: %v", err)
		}
		return path
	}

	oldPath := writeRow("11111111-1111-1111-1111-111111111111", "ancient", 45*24*time.Hour)
	newPath := writeRow("22222222-2222-2222-2222-222222222222", "recent", 2*24*time.Hour)

	pruned, err := mgr.Prune(context.Background(), 30)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0].Name != "ancient" {
		t.Fatalf("expected only ancient pruned, got %+v", pruned)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old manifest file still exists")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Error("recent manifest file was removed")
	}

	rows, err := db.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "recent" {
		t.Errorf("expected only recent row remaining, got %+v", rows)
	}
}

func TestPruneRejectsNonPositiveRetention(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	if _, err := mgr.Prune(context.Background(), 0); err == nil {
		t.Error("expected error for zero retention")
	}
	if _, err := mgr.Prune(context.Background(), -5); err == nil {
		t.Error("expected error for negative retention")
	}
}

func TestResolveByIDAndName(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	info, err := mgr.Create(context.Background(), noProgress, CreateOptions{
		Name:     "findme",
		Provider: config.ProviderLocal,
		Tools:    testTools(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	byID, err := mgr.Resolve(info.ID)
	if err != nil {
		t.Fatalf("Resolve by id failed: %v", err)
	}
	if byID.ID != info.ID {
		t.Errorf("expected id %s, got %s", info.ID, byID.ID)
	}

	byName, err := mgr.Resolve("findme")
	if err != nil {
		t.Fatalf("Resolve by name failed: %v", err)
	}
	if byName.ID != info.ID {
		t.Errorf("expected id %s, got %s", info.ID, byName.ID)
	}

	if _, err := mgr.Resolve("no-such-backup"); err == nil {
		t.Error("expected error for unknown ref")
	}
}
