// Package backup orchestrates backup manifests: creation, restore, delete,
// and retention pruning. Only metadata moves through here; payload transfer
// belongs to the provider.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/store"
)

// ManifestVersion is the current manifest schema.
const ManifestVersion = "1"

// ToolState captures one tool's probe state at backup time.
type ToolState struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
}

// Manifest is the JSON document written per backup.
type Manifest struct {
	SchemaVersion string          `json:"schemaVersion"`
	Name          string          `json:"name"`
	Provider      config.Provider `json:"provider"`
	CreatedAt     time.Time       `json:"createdAt"`
	Compressed    bool            `json:"compressed"`
	Tools         []ToolState     `json:"tools"`
}

// Info summarizes a backup for callers; operations carry it as their result
// payload.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	Checksum  string    `json:"checksum"`
	ToolCount int       `json:"toolCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateOptions parameterizes one backup creation.
type CreateOptions struct {
	Name       string
	Provider   config.Provider
	Compressed bool
	Tools      []ToolState
}

// Manager drives the backup lifecycle against the catalog database and a
// data directory.
type Manager struct {
	db      *store.Store
	dataDir string
}

// NewManager returns a manager writing under dataDir and cataloging in db.
func NewManager(db *store.Store, dataDir string) *Manager {
	return &Manager{db: db, dataDir: dataDir}
}

// Create writes a new backup manifest and catalogs it. The work is split
// into checkpoints that each honor ctx cancellation, and progress is
// reported between them.
func (m *Manager) Create(ctx context.Context, progress func(float64), opts CreateOptions) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := ProviderDir(opts.Provider, m.dataDir)
	if err != nil {
		return nil, err
	}
	progress(0.2)

	now := time.Now()
	manifest := &Manifest{
		SchemaVersion: ManifestVersion,
		Name:          opts.Name,
		Provider:      opts.Provider,
		CreatedAt:     now,
		Compressed:    opts.Compressed,
		Tools:         opts.Tools,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(0.4)

	// Manifest filename: YYYY-MM-DD-HHMMSS.json
	path := filepath.Join(dir, now.Format("2006-01-02-150405")+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest file: %w", err)
	}
	progress(0.7)

	sum := sha256.Sum256(data)
	info := &Info{
		ID:        uuid.NewString(),
		Name:      opts.Name,
		Provider:  string(opts.Provider),
		Path:      path,
		SizeBytes: int64(len(data)),
		Checksum:  hex.EncodeToString(sum[:]),
		ToolCount: len(opts.Tools),
		CreatedAt: now,
	}

	row := &store.Backup{
		ID:           info.ID,
		Name:         info.Name,
		Provider:     info.Provider,
		CreatedAt:    info.CreatedAt,
		SizeBytes:    info.SizeBytes,
		Checksum:     info.Checksum,
		ManifestPath: info.Path,
		Compressed:   opts.Compressed,
		ToolCount:    info.ToolCount,
	}
	if err := m.db.InsertBackup(row); err != nil {
		// Clean up the manifest if cataloging fails.
		os.Remove(path)
		return nil, fmt.Errorf("failed to catalog backup: %w", err)
	}
	progress(0.9)

	return info, nil
}

// InstallFunc re-installs one tool at the version the manifest recorded. It
// is the opaque package-manager collaborator; the manager only sees its
// error.
type InstallFunc func(ctx context.Context, tool, version string) error

// RestoreReport is the result payload of a restore operation.
type RestoreReport struct {
	BackupID  string   `json:"backupId"`
	Name      string   `json:"name"`
	Restored  []string `json:"restored,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	ToolCount int      `json:"toolCount"`
}

// Restore loads a backup manifest, verifies its checksum, and re-installs
// every tool the manifest marks installed that is missing now. Tools already
// present are skipped. Per-tool install failures are collected rather than
// aborting the rest; if any occurred the report is returned together with a
// summary error.
func (m *Manager) Restore(ctx context.Context, progress func(float64), ref string, have func(tool string) bool, install InstallFunc) (*RestoreReport, error) {
	row, err := m.Resolve(ref)
	if err != nil {
		return nil, err
	}
	progress(0.1)

	manifest, err := m.loadManifest(row)
	if err != nil {
		return nil, err
	}
	progress(0.2)

	report := &RestoreReport{
		BackupID:  row.ID,
		Name:      row.Name,
		ToolCount: len(manifest.Tools),
	}

	var failures []string
	for i, tool := range manifest.Tools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch {
		case !tool.Installed:
			report.Skipped = append(report.Skipped, tool.Name)
		case have != nil && have(tool.Name):
			report.Skipped = append(report.Skipped, tool.Name)
		case install == nil:
			report.Skipped = append(report.Skipped, tool.Name)
		default:
			if err := install(ctx, tool.Name, tool.Version); err != nil {
				report.Failed = append(report.Failed, tool.Name)
				failures = append(failures, fmt.Sprintf("%s: %v", tool.Name, err))
			} else {
				report.Restored = append(report.Restored, tool.Name)
			}
		}

		progress(0.2 + 0.8*float64(i+1)/float64(len(manifest.Tools)))
	}

	if len(failures) > 0 {
		return report, fmt.Errorf("restored %d/%d tools, %d failures: %v",
			len(report.Restored), len(manifest.Tools), len(failures), failures)
	}
	return report, nil
}

// Delete removes a backup's manifest file and catalog row.
func (m *Manager) Delete(ctx context.Context, progress func(float64), ref string) (*Info, error) {
	row, err := m.Resolve(ref)
	if err != nil {
		return nil, err
	}
	progress(0.3)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.Remove(row.ManifestPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to delete manifest file %s: %w", row.ManifestPath, err)
	}
	progress(0.7)

	if err := m.db.DeleteBackup(row.ID); err != nil {
		return nil, err
	}

	return infoFromRow(row), nil
}

// Prune deletes every backup older than retentionDays. It returns the
// deleted backups.
func (m *Manager) Prune(ctx context.Context, retentionDays int) ([]*Info, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	rows, err := m.db.ListBackups()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var pruned []*Info
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if !row.CreatedAt.Before(cutoff) {
			continue
		}

		if err := os.Remove(row.ManifestPath); err != nil && !os.IsNotExist(err) {
			return pruned, fmt.Errorf("failed to delete manifest file %s: %w", row.ManifestPath, err)
		}
		if err := m.db.DeleteBackup(row.ID); err != nil {
			return pruned, err
		}
		pruned = append(pruned, infoFromRow(row))
	}

	return pruned, nil
}

// List returns the catalog, newest first.
func (m *Manager) List() ([]*store.Backup, error) {
	return m.db.ListBackups()
}

// Resolve finds a backup by id, falling back to name lookup.
func (m *Manager) Resolve(ref string) (*store.Backup, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return m.db.GetBackup(ref)
	}
	return m.db.GetBackupByName(ref)
}

// loadManifest reads a cataloged manifest and verifies its checksum against
// the catalog row.
func (m *Manager) loadManifest(row *store.Backup) (*Manifest, error) {
	data, err := os.ReadFile(row.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); row.Checksum != "" && got != row.Checksum {
		return nil, fmt.Errorf("manifest %s failed checksum verification (got %s, want %s)",
			row.ManifestPath, got[:12], row.Checksum[:12])
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	return &manifest, nil
}

func infoFromRow(row *store.Backup) *Info {
	return &Info{
		ID:        row.ID,
		Name:      row.Name,
		Provider:  row.Provider,
		Path:      row.ManifestPath,
		SizeBytes: row.SizeBytes,
		Checksum:  row.Checksum,
		ToolCount: row.ToolCount,
		CreatedAt: row.CreatedAt,
	}
}
