package app

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/output"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record a system metric snapshot",
	Long: `Collect host metrics and record them as a snapshot.

A snapshot captures boot time, memory pressure, disk capacity, and CPU
load at a single point in time. Take one before an environment change
and one after, then run 'devkeep impact' to score the difference.

Metrics that cannot be read on this host are recorded as zero rather
than failing the snapshot.`,
	Example: `  devkeep snapshot
  # ...install or remove things...
  devkeep snapshot
  devkeep impact`,
	RunE: runSnapshot,
}

func init() {
	RootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	spinner := output.NewSpinner("Collecting system metrics...")
	spinner.Start()
	snap := eng.collector.Collect(ctx)
	spinner.Stop()

	id, err := eng.db.InsertMetricSnapshot(snap)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Snapshot #%d recorded\n\n", id)

	rows, err := eng.db.LatestMetricSnapshots(5)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderMetricTable(rows))
	return nil
}
