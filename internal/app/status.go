package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/output"
	"github.com/blackwell-systems/devkeep/internal/probe"
	"github.com/blackwell-systems/devkeep/internal/services"
)

var (
	statusFresh bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show tracked tool availability",
		Long: `Probe the tracked development tools and render their availability.

Shows:
  • Per-tool installed state and version
  • Overall health (available, degraded, unavailable)
  • Whether the serve daemon is running

Results are cached for up to 60 seconds inside a single process; in the CLI
every invocation probes fresh. A tool that hangs is cut off at the probe
deadline and reported as missing rather than blocking the command.`,
		Example: `  # Check status
  devkeep status

  # Bypass any cached snapshot
  devkeep status --fresh`,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusFresh, "fresh", false, "force fresh probes even if a cached snapshot exists")
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfgPath, err := configPath()
	if err != nil {
		return err
	}
	cfgStore := config.NewStore(cfgPath)
	if _, warn := cfgStore.Load(); warn != nil {
		fmt.Fprintf(os.Stderr, "⚠ %v\n", warn)
	}

	ctx, stop := signalContext()
	defer stop()

	cache := services.NewCache(&probe.ExecProber{}, services.DefaultServices(), services.DefaultStaleness)

	spinner := output.NewSpinner("Probing services...")
	spinner.Start()
	snap := cache.Status(ctx, statusFresh)
	spinner.Stop()

	fmt.Print(output.RenderStatusTable(snap))

	if running, pid := daemonState(); running {
		fmt.Printf("\nServe daemon: running (PID %d)\n", pid)
	} else {
		fmt.Println("\nServe daemon: not running")
	}
	return nil
}
