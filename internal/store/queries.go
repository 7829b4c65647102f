package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackwell-systems/devkeep/internal/evolution"
	"github.com/blackwell-systems/devkeep/internal/ops"
)

// Backup catalog operations

// InsertBackup inserts or replaces a backup catalog row.
func (s *Store) InsertBackup(b *Backup) error {
	query := `
		INSERT OR REPLACE INTO backups
		(id, name, provider, created_at, size_bytes, checksum, manifest_path, compressed, tool_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		b.ID,
		b.Name,
		b.Provider,
		b.CreatedAt.Format(time.RFC3339),
		b.SizeBytes,
		b.Checksum,
		b.ManifestPath,
		b.Compressed,
		b.ToolCount,
	)

	if err != nil {
		return fmt.Errorf("failed to insert backup %s: %w", b.ID, err)
	}

	return nil
}

const backupColumns = `id, name, provider, created_at, size_bytes, checksum, manifest_path, compressed, tool_count`

func scanBackup(scan func(dest ...any) error) (*Backup, error) {
	var b Backup
	var createdAt string

	err := scan(
		&b.ID,
		&b.Name,
		&b.Provider,
		&createdAt,
		&b.SizeBytes,
		&b.Checksum,
		&b.ManifestPath,
		&b.Compressed,
		&b.ToolCount,
	)
	if err != nil {
		return nil, err
	}

	b.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for backup %s: %w", b.ID, err)
	}
	return &b, nil
}

// GetBackup retrieves a backup by id.
func (s *Store) GetBackup(id string) (*Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE id = ?`

	b, err := scanBackup(s.db.QueryRow(query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup %s: %w", id, err)
	}
	return b, nil
}

// GetBackupByName retrieves the newest backup with the given name.
func (s *Store) GetBackupByName(name string) (*Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE name = ? ORDER BY created_at DESC LIMIT 1`

	b, err := scanBackup(s.db.QueryRow(query, name).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup %q: %w", name, err)
	}
	return b, nil
}

// ListBackups returns all backups ordered by creation time (newest first).
func (s *Store) ListBackups() ([]*Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		backups = append(backups, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

// DeleteBackup removes a backup catalog row.
func (s *Store) DeleteBackup(id string) error {
	result, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup %s not found", id)
	}

	return nil
}

// Operation audit log

// RecordOperation persists a terminal operation record to the audit log.
func (s *Store) RecordOperation(rec ops.Record) error {
	resultJSON := ""
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal operation result: %w", err)
		}
		resultJSON = string(data)
	}

	query := `
		INSERT OR REPLACE INTO operations
		(id, kind, state, requested_at, started_at, finished_at, progress, error_kind, error_message, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		rec.ID.String(),
		string(rec.Kind),
		string(rec.State),
		rec.RequestedAt.Format(time.RFC3339),
		formatNullableTime(rec.StartedAt),
		formatNullableTime(rec.FinishedAt),
		rec.Progress,
		string(rec.Error),
		rec.ErrorMessage,
		resultJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to record operation %s: %w", rec.ID, err)
	}

	return nil
}

// ListOperations returns the most recent audited operations, newest first.
func (s *Store) ListOperations(limit int) ([]*OperationLogEntry, error) {
	query := `
		SELECT id, kind, state, requested_at, started_at, finished_at, progress, error_kind, error_message, result
		FROM operations
		ORDER BY requested_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var entries []*OperationLogEntry
	for rows.Next() {
		var e OperationLogEntry
		var requestedAt string
		var startedAt, finishedAt sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.Kind,
			&e.State,
			&requestedAt,
			&startedAt,
			&finishedAt,
			&e.Progress,
			&e.ErrorKind,
			&e.ErrorMessage,
			&e.ResultJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}

		e.RequestedAt, err = time.Parse(time.RFC3339, requestedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse requested_at for %s: %w", e.ID, err)
		}
		if e.StartedAt, err = parseNullableTime(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at for %s: %w", e.ID, err)
		}
		if e.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for %s: %w", e.ID, err)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return entries, nil
}

// Metric snapshot operations

// InsertMetricSnapshot persists one metric snapshot and returns its row id.
func (s *Store) InsertMetricSnapshot(ms evolution.MetricSnapshot) (int64, error) {
	query := `
		INSERT INTO metric_snapshots (taken_at, boot_time_seconds, memory_usage_pct, disk_usage_pct, cpu_usage_pct)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		ms.Timestamp.Format(time.RFC3339),
		ms.BootTimeSeconds,
		ms.MemoryUsagePct,
		ms.DiskUsagePct,
		ms.CPUUsagePct,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert metric snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get metric snapshot ID: %w", err)
	}

	return id, nil
}

// LatestMetricSnapshots returns up to n snapshots, newest first.
func (s *Store) LatestMetricSnapshots(n int) ([]*MetricRow, error) {
	query := `
		SELECT id, taken_at, boot_time_seconds, memory_usage_pct, disk_usage_pct, cpu_usage_pct
		FROM metric_snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric snapshots: %w", err)
	}
	defer rows.Close()

	var metrics []*MetricRow
	for rows.Next() {
		var m MetricRow
		var takenAt string

		err := rows.Scan(
			&m.ID,
			&takenAt,
			&m.BootTimeSeconds,
			&m.MemoryUsagePct,
			&m.DiskUsagePct,
			&m.CPUUsagePct,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}

		m.TakenAt, err = time.Parse(time.RFC3339, takenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse taken_at for metric %d: %w", m.ID, err)
		}

		metrics = append(metrics, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric snapshots: %w", err)
	}

	return metrics, nil
}

// Snapshot converts a metric row back to its domain form.
func (m *MetricRow) Snapshot() evolution.MetricSnapshot {
	return evolution.MetricSnapshot{
		Timestamp:       m.TakenAt,
		BootTimeSeconds: m.BootTimeSeconds,
		MemoryUsagePct:  m.MemoryUsagePct,
		DiskUsagePct:    m.DiskUsagePct,
		CPUUsagePct:     m.CPUUsagePct,
	}
}

// Impact history operations

// InsertImpact persists an impact computation between two stored snapshots.
func (s *Store) InsertImpact(beforeID, afterID int64, rec evolution.ImpactRecord) (int64, error) {
	query := `
		INSERT INTO impacts (computed_at, before_snapshot, after_snapshot, impact_score)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		rec.ComputedAt.Format(time.RFC3339),
		beforeID,
		afterID,
		rec.ImpactScore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert impact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get impact ID: %w", err)
	}

	return id, nil
}

// ListImpacts returns the most recent impact computations, newest first.
func (s *Store) ListImpacts(limit int) ([]*ImpactRow, error) {
	query := `
		SELECT id, computed_at, before_snapshot, after_snapshot, impact_score
		FROM impacts
		ORDER BY computed_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list impacts: %w", err)
	}
	defer rows.Close()

	var impacts []*ImpactRow
	for rows.Next() {
		var im ImpactRow
		var computedAt string

		err := rows.Scan(
			&im.ID,
			&computedAt,
			&im.BeforeID,
			&im.AfterID,
			&im.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan impact row: %w", err)
		}

		im.ComputedAt, err = time.Parse(time.RFC3339, computedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse computed_at for impact %d: %w", im.ID, err)
		}

		impacts = append(impacts, &im)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating impacts: %w", err)
	}

	return impacts, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
