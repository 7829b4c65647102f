package app

import (
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/backup"
	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/output"
)

var (
	backupName string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Create, inspect, and restore environment backups",
		Long: `Manage environment backups.

A backup is a checksummed manifest recording which tracked tools were
installed and at what version. Restoring a backup re-installs the tools
that are missing now at the versions the manifest recorded.

Backups run through the operation state machine: at most one backup
operation of each kind at a time, with progress and cancellation (Ctrl+C).`,
		Example: `  # Snapshot the current environment
  devkeep backup create --name pre-upgrade

  # See what you have
  devkeep backup list

  # Bring tools back after a wipe
  devkeep backup restore pre-upgrade

  # Clean up
  devkeep backup delete pre-upgrade
  devkeep backup prune --days 30`,
	}

	backupCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a backup of the current environment",
		RunE:  runBackupCreate,
	}

	backupListCmd = &cobra.Command{
		Use:   "list",
		Short: "List cataloged backups, newest first",
		RunE:  runBackupList,
	}

	backupRestoreCmd = &cobra.Command{
		Use:   "restore <id-or-name>",
		Short: "Re-install missing tools from a backup",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupRestore,
	}

	backupDeleteCmd = &cobra.Command{
		Use:   "delete <id-or-name>",
		Short: "Delete a backup and its manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupDelete,
	}

	backupPruneDays int

	backupPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete backups older than the retention window",
		RunE:  runBackupPrune,
	}
)

func init() {
	backupCreateCmd.Flags().StringVar(&backupName, "name", "", "backup name (defaults to a timestamp)")
	backupPruneCmd.Flags().IntVar(&backupPruneDays, "days", 0, "retention window in days (defaults to backup.retentionDays)")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupPruneCmd)
	RootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	rec, err := runOperation(ctx, eng, ops.KindBackupCreate,
		map[string]string{"name": backupName}, "Creating backup")
	if err != nil {
		return err
	}

	info, ok := rec.Result.(*backup.Info)
	if !ok {
		fmt.Println("✓ Backup created")
		return nil
	}
	fmt.Printf("✓ Backup %q created\n", info.Name)
	fmt.Printf("  ID:       %s\n", info.ID)
	fmt.Printf("  Tools:    %d\n", info.ToolCount)
	fmt.Printf("  Size:     %s\n", humanize.Bytes(uint64(info.SizeBytes)))
	fmt.Printf("  Manifest: %s\n", info.Path)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	rows, err := eng.backups.List()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No backups yet.")
		fmt.Println("\n  Action: create one with 'devkeep backup create'")
		return nil
	}
	fmt.Print(output.RenderBackupTable(rows))
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	rec, err := runOperation(ctx, eng, ops.KindBackupRestore,
		map[string]string{"ref": args[0]}, "Restoring backup")
	if err != nil {
		return err
	}

	report, ok := rec.Result.(*backup.RestoreReport)
	if !ok {
		fmt.Println("✓ Backup restored")
		return nil
	}
	fmt.Printf("✓ Restored backup %q\n", report.Name)
	if len(report.Restored) > 0 {
		fmt.Printf("  Re-installed: %d (%v)\n", len(report.Restored), report.Restored)
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("  Skipped:      %d (already present or not installed at backup time)\n", len(report.Skipped))
	}
	if len(report.Restored) == 0 {
		fmt.Println("  Nothing to re-install; every recorded tool is already present.")
	}
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	rec, err := runOperation(ctx, eng, ops.KindBackupDelete,
		map[string]string{"ref": args[0]}, "Deleting backup")
	if err != nil {
		return err
	}

	if info, ok := rec.Result.(*backup.Info); ok {
		fmt.Printf("✓ Deleted backup %q (%s)\n", info.Name, shortRef(info.ID))
	} else {
		fmt.Println("✓ Backup deleted")
	}
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	days := backupPruneDays
	if days <= 0 {
		days = eng.loadConfig().Backup.RetentionDays
	}

	ctx, stop := signalContext()
	defer stop()

	spinner := output.NewSpinner(fmt.Sprintf("Pruning backups older than %d days...", days))
	spinner.Start()
	pruned, err := eng.backups.Prune(ctx, days)
	spinner.Stop()
	if err != nil {
		return err
	}

	if len(pruned) == 0 {
		fmt.Printf("Nothing to prune; no backups older than %d days.\n", days)
		return nil
	}
	fmt.Printf("✓ Pruned %d backup(s):\n", len(pruned))
	for i := 0; i < len(pruned); i++ {
		fmt.Printf("  %s (%s, created %s)\n",
			pruned[i].Name, shortRef(pruned[i].ID), humanize.Time(pruned[i].CreatedAt))
	}
	return nil
}

// shortRef abbreviates a UUID for display.
func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
