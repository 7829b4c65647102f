package app

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/installer"
	"github.com/blackwell-systems/devkeep/internal/ops"
)

var (
	installVersion string

	installCmd = &cobra.Command{
		Use:   "install <tool>",
		Short: "Install a development tool via Homebrew",
		Long: `Install a tool through the operation state machine.

The install runs as a serviceInstall operation: one at a time, with
progress, cancellation, and an audit record. After the package manager
finishes, the tool is re-probed so the reported version reflects what
actually landed.`,
		Example: `  # Latest version
  devkeep install node

  # Pin a version
  devkeep install node --version 21.6.1`,
		Args: cobra.ExactArgs(1),
		RunE: runInstall,
	}

	configureCmd = &cobra.Command{
		Use:   "configure <tool>",
		Short: "Apply devkeep's recommended configuration to a tool",
		Long: `Run the configure steps defined for a tool.

Steps honor your preferences: with analytics disabled, telemetry is
turned off where the tool supports it.

Configurable tools: ` + strings.Join(installer.ConfigurableTools(), ", ") + `.`,
		Example: `  devkeep configure git`,
		Args:    cobra.ExactArgs(1),
		RunE:    runConfigure,
	}
)

func init() {
	installCmd.Flags().StringVar(&installVersion, "version", "", "version to install (defaults to latest)")
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(configureCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	rec, err := runOperation(ctx, eng, ops.KindServiceInstall,
		map[string]string{"tool": args[0], "version": installVersion},
		fmt.Sprintf("Installing %s", args[0]))
	if err != nil {
		return err
	}

	if msg, ok := rec.Result.(string); ok {
		fmt.Printf("✓ %s\n", msg)
	} else {
		fmt.Printf("✓ Installed %s\n", args[0])
	}
	return nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	rec, err := runOperation(ctx, eng, ops.KindServiceConfigure,
		map[string]string{"tool": args[0]},
		fmt.Sprintf("Configuring %s", args[0]))
	if err != nil {
		return err
	}

	if msg, ok := rec.Result.(string); ok {
		fmt.Printf("✓ %s\n", msg)
	} else {
		fmt.Printf("✓ Configured %s\n", args[0])
	}
	return nil
}
