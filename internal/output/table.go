// Package output provides terminal output utilities for devkeep.
//
// This package includes:
//   - Table rendering functions for service status, backups, operations, and metrics
//   - Progress bars for long-running operations
//   - Spinners for indeterminate operations
//
// All table rendering functions use ASCII characters and ANSI color codes for terminal output.
// Progress indicators are thread-safe and can be used from multiple goroutines.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/services"
	"github.com/blackwell-systems/devkeep/internal/store"
)

// ANSI color codes for status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderStatusTable renders the aggregated service status snapshot.
func RenderStatusTable(snap services.Snapshot) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Overall: %s (checked %s)\n\n",
		colorize(overallColor(snap.Overall), string(snap.Overall)),
		humanize.Time(snap.RefreshedAt)))

	if len(snap.PerService) == 0 {
		sb.WriteString("No services tracked.\n")
		return sb.String()
	}

	// Sort tools by name for consistent output
	names := make([]string, 0, len(snap.PerService))
	for name := range snap.PerService {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString(fmt.Sprintf("%-12s %-12s %s\n", "Tool", "State", "Version"))
	sb.WriteString(strings.Repeat("─", 50))
	sb.WriteString("\n")

	for _, name := range names {
		res := snap.PerService[name]
		state := colorize(colorRed, "✗ missing")
		if res.Installed {
			state = colorize(colorGreen, "✓ installed")
		}
		version := res.Version
		if version == "" {
			version = "—"
		}
		sb.WriteString(fmt.Sprintf("%-12s %-12s %s\n",
			truncate(name, 12), state, truncate(version, 40)))
	}

	return sb.String()
}

// overallColor returns the ANSI color for an overall status.
func overallColor(o services.Overall) string {
	switch o {
	case services.OverallAvailable:
		return colorGreen
	case services.OverallDegraded:
		return colorYellow
	case services.OverallUnavailable:
		return colorRed
	default:
		return colorGray
	}
}

// RenderBackupTable renders the backup catalog, newest first.
func RenderBackupTable(backups []*store.Backup) string {
	if len(backups) == 0 {
		return "No backups found.\n"
	}

	sorted := make([]*store.Backup, len(backups))
	copy(sorted, backups)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-20s %-8s %-15s %-9s %-6s %s\n",
		"Name", "Provider", "Created", "Size", "Tools", "ID"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, b := range sorted {
		sb.WriteString(fmt.Sprintf("%-20s %-8s %-15s %-9s %-6d %s\n",
			truncate(b.Name, 20),
			b.Provider,
			humanize.Time(b.CreatedAt),
			humanize.Bytes(uint64(b.SizeBytes)),
			b.ToolCount,
			shortID(b.ID)))
	}

	return sb.String()
}

// RenderOperationTable renders current operation records, one row per kind.
func RenderOperationTable(records []ops.Record) string {
	if len(records) == 0 {
		return "No operations.\n"
	}

	sorted := make([]ops.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Kind < sorted[j].Kind
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-18s %-12s %-9s %-15s %s\n",
		"Kind", "State", "Progress", "Requested", "Detail"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, rec := range sorted {
		state := colorize(stateColor(rec.State), string(rec.State))

		detail := ""
		if rec.ErrorMessage != "" {
			detail = truncate(rec.ErrorMessage, 30)
		} else if rec.State == ops.StateSucceeded && rec.FinishedAt != nil && rec.StartedAt != nil {
			detail = "took " + rec.FinishedAt.Sub(*rec.StartedAt).Round(10*time.Millisecond).String()
		}

		sb.WriteString(fmt.Sprintf("%-18s %-12s %8.0f%% %-15s %s\n",
			rec.Kind,
			state,
			rec.Progress*100,
			humanize.Time(rec.RequestedAt),
			detail))
	}

	return sb.String()
}

// RenderOperationLogTable renders audited terminal operation records from
// the database, newest first.
func RenderOperationLogTable(entries []*store.OperationLogEntry) string {
	if len(entries) == 0 {
		return "No operations recorded yet.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-18s %-12s %-15s %-10s %s\n",
		"Kind", "State", "Requested", "Duration", "Detail"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, e := range entries {
		state := colorize(stateColor(ops.State(e.State)), e.State)

		duration := "—"
		if e.StartedAt != nil && e.FinishedAt != nil {
			duration = e.FinishedAt.Sub(*e.StartedAt).Round(10 * time.Millisecond).String()
		}

		detail := ""
		if e.ErrorMessage != "" {
			detail = truncate(e.ErrorMessage, 30)
		}

		sb.WriteString(fmt.Sprintf("%-18s %-12s %-15s %-10s %s\n",
			e.Kind,
			state,
			humanize.Time(e.RequestedAt),
			duration,
			detail))
	}

	return sb.String()
}

// stateColor returns the ANSI color code for an operation state.
func stateColor(state ops.State) string {
	switch state {
	case ops.StateSucceeded:
		return colorGreen
	case ops.StateRunning, ops.StateRequested:
		return colorYellow
	case ops.StateFailed:
		return colorRed
	default:
		return colorGray
	}
}

// RenderMetricTable renders persisted metric snapshots, newest first.
func RenderMetricTable(rows []*store.MetricRow) string {
	if len(rows) == 0 {
		return "No metric snapshots recorded. Run 'devkeep snapshot' first.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-15s %-10s %-8s %-8s %s\n",
		"Taken", "Boot (s)", "Mem %", "Disk %", "CPU %"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%-15s %-10.1f %-8.1f %-8.1f %.1f\n",
			humanize.Time(r.TakenAt),
			r.BootTimeSeconds,
			r.MemoryUsagePct,
			r.DiskUsagePct,
			r.CPUUsagePct))
	}

	return sb.String()
}

// RenderImpactTable renders the history of impact computations.
func RenderImpactTable(rows []*store.ImpactRow) string {
	if len(rows) == 0 {
		return "No impact history. Take two snapshots, then run 'devkeep impact'.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-15s %-10s %s\n", "Computed", "Score", "Snapshots"))
	sb.WriteString(strings.Repeat("─", 45))
	sb.WriteString("\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%-15s %-10.2f #%d → #%d\n",
			humanize.Time(r.ComputedAt),
			r.Score,
			r.BeforeID,
			r.AfterID))
	}

	return sb.String()
}

// shortID returns the first uuid segment, enough to disambiguate in a table.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return truncate(id, 8)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
