package app

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/evolution"
	"github.com/blackwell-systems/devkeep/internal/output"
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Score the change between the two latest snapshots",
	Long: `Compute and record the impact of an environment change.

The score is the sum of the absolute deltas of boot time (seconds) and
memory usage (percentage points) between the two most recent metric
snapshots. Disk and CPU readings are shown for context but do not enter
the score.

Rough reading of the score:
  < 1    negligible
  1 - 5  moderate
  > 5    significant`,
	Example: `  devkeep snapshot
  # ...install or remove things...
  devkeep snapshot
  devkeep impact`,
	RunE: runImpact,
}

func init() {
	RootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	rows, err := eng.db.LatestMetricSnapshots(2)
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		fmt.Printf("Need two snapshots to compute impact; have %d.\n", len(rows))
		fmt.Println("\n  Action: run 'devkeep snapshot' before and after a change")
		return nil
	}

	// Rows come back newest first.
	before, after := rows[1], rows[0]
	rec := evolution.Impact(before.Snapshot(), after.Snapshot())

	if _, err := eng.db.InsertImpact(before.ID, after.ID, rec); err != nil {
		return err
	}

	fmt.Printf("Impact of #%d → #%d: %.2f (%s)\n\n", before.ID, after.ID, rec.ImpactScore, classifyImpact(rec.ImpactScore))
	fmt.Printf("  Boot time: %+.1fs\n", rec.After.BootTimeSeconds-rec.Before.BootTimeSeconds)
	fmt.Printf("  Memory:    %+.1f%%\n", rec.After.MemoryUsagePct-rec.Before.MemoryUsagePct)
	fmt.Printf("  Disk:      %+.1f%% (not scored)\n", rec.After.DiskUsagePct-rec.Before.DiskUsagePct)
	fmt.Printf("  CPU:       %+.1f%% (not scored)\n\n", rec.After.CPUUsagePct-rec.Before.CPUUsagePct)

	history, err := eng.db.ListImpacts(5)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderImpactTable(history))
	return nil
}

// classifyImpact buckets a score for display.
func classifyImpact(score float64) string {
	switch {
	case score < 1:
		return "negligible"
	case score < 5:
		return "moderate"
	default:
		return "significant"
	}
}
