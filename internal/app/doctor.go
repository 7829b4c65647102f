package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/probe"
	"github.com/blackwell-systems/devkeep/internal/services"
	"github.com/blackwell-systems/devkeep/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on your devkeep installation.

Checks:
  • Configuration document is valid
  • Database exists and is accessible
  • Tracked tools are installed
  • Serve daemon is running
  • Recommends next steps`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Running devkeep diagnostics...")
	fmt.Println()

	// Critical and warning issues are tracked separately so the warning-only
	// path can exit with code 2 without reaching main's error handler.
	criticalIssues := 0
	warningIssues := 0

	// Check 1: Configuration document
	cfgPath, err := configPath()
	if err != nil {
		fmt.Println("✗ Config path error:", err)
		criticalIssues++
	} else if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		fmt.Println("✓ No config file yet (built-in defaults active)")
	} else {
		cfgStore := config.NewStore(cfgPath)
		if _, warn := cfgStore.Load(); warn != nil {
			fmt.Println("⚠ Config document rejected, defaults active:", warn)
			fmt.Println("  Action: Run 'devkeep config reset'")
			warningIssues++
		} else {
			fmt.Println("✓ Config valid:", cfgPath)
		}
	}

	// Check 2: Database accessible
	dbPath, err := dbFilePath()
	if err != nil {
		fmt.Println("✗ Database path error:", err)
		criticalIssues++
	} else {
		db, err := store.New(dbPath)
		if err != nil {
			fmt.Println("✗ Cannot open database:", err)
			criticalIssues++
		} else {
			defer db.Close()
			if err := db.CreateSchema(); err != nil {
				fmt.Println("✗ Cannot create database schema:", err)
				criticalIssues++
			} else {
				fmt.Println("✓ Database is accessible:", dbPath)

				// Check 3: Catalog contents
				backups, err := db.ListBackups()
				if err != nil {
					fmt.Println("✗ Cannot read backup catalog:", err)
					criticalIssues++
				} else if len(backups) == 0 {
					fmt.Println("⚠ No backups cataloged yet")
					fmt.Println("  Action: Run 'devkeep backup create'")
					warningIssues++
				} else {
					fmt.Printf("✓ %d backup(s) cataloged\n", len(backups))
				}

				var opCount int
				row := db.DB().QueryRow("SELECT COUNT(*) FROM operations")
				if err := row.Scan(&opCount); err != nil {
					fmt.Println("⚠ Cannot read operation log:", err)
					warningIssues++
				} else {
					fmt.Printf("✓ %d operation(s) audited\n", opCount)
				}
			}
		}
	}

	// Check 4: Tracked tools installed
	ctx, cancelProbes := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelProbes()
	prober := &probe.ExecProber{}
	svcs := services.DefaultServices()
	for i := 0; i < len(svcs); i++ {
		res := prober.Probe(ctx, svcs[i].Name, svcs[i].VersionArg)
		switch {
		case res.Installed && res.Version != "":
			fmt.Printf("✓ %s installed (%s)\n", svcs[i].Name, probe.FirstVersionLine(res.Version))
		case res.Installed:
			fmt.Printf("✓ %s installed\n", svcs[i].Name)
		case svcs[i].Name == "brew":
			// Without the package manager, install and restore cannot work.
			fmt.Println("✗ brew not found")
			fmt.Println("  Action: Install Homebrew from https://brew.sh")
			criticalIssues++
		default:
			fmt.Printf("⚠ %s not found\n", svcs[i].Name)
			fmt.Printf("  Action: Run 'devkeep install %s'\n", svcs[i].Name)
			warningIssues++
		}
	}

	// Check 5: Serve daemon running
	if running, pid := daemonState(); running {
		fmt.Printf("✓ Serve daemon running (PID %d)\n", pid)
	} else {
		fmt.Println("⚠ Serve daemon not running")
		fmt.Println("  Action: Run 'devkeep serve --daemon'")
		warningIssues++
	}

	fmt.Println()
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Println("✓ All checks passed!")
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  • Check status: devkeep status")
		fmt.Println("  • Snapshot before changes: devkeep snapshot")
		fmt.Println("  • Back up your environment: devkeep backup create")
		return nil
	}

	if criticalIssues > 0 {
		fmt.Printf("Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}

	fmt.Printf("Found %d warning(s). System is functional but not fully configured.\n", warningIssues)
	os.Exit(2)
	return nil // unreachable; satisfies compiler
}
