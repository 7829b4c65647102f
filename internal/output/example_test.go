package output_test

import (
	"fmt"
	"time"

	"github.com/blackwell-systems/devkeep/internal/output"
	"github.com/blackwell-systems/devkeep/internal/probe"
	"github.com/blackwell-systems/devkeep/internal/services"
	"github.com/blackwell-systems/devkeep/internal/store"
)

// Example showing how to render the service status table
func ExampleRenderStatusTable() {
	snap := services.Snapshot{
		Overall:     services.OverallDegraded,
		RefreshedAt: time.Now().Add(-30 * time.Second),
		PerService: map[string]probe.Result{
			"git":    {Tool: "git", Installed: true, Version: "git version 2.44.0"},
			"docker": {Tool: "docker", Installed: false},
		},
	}

	table := output.RenderStatusTable(snap)
	fmt.Println(table)
}

// Example showing how to use a progress bar with operation progress
func ExampleProgressBar() {
	progress := output.NewProgress("Creating backup")

	// Operations report fractions in [0,1]
	for _, f := range []float64{0.2, 0.4, 0.7, 0.9} {
		progress.SetFraction(f)
	}

	progress.Finish()
}

// Example showing how to use a spinner
func ExampleSpinner() {
	spinner := output.NewSpinner("Probing services")
	spinner.Start()

	// Do some work...

	spinner.StopWithMessage("All services probed.")
}

// Example showing how to render the backup catalog
func ExampleRenderBackupTable() {
	backups := []*store.Backup{
		{
			ID:        "7d444840-9dc0-11d1-b245-5ffdce74fad2",
			Name:      "pre-upgrade",
			Provider:  "local",
			CreatedAt: time.Now().Add(-5 * time.Minute),
			SizeBytes: 4096,
			ToolCount: 5,
		},
	}

	table := output.RenderBackupTable(backups)
	fmt.Println(table)
}
