package app

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/daemon"
	"github.com/blackwell-systems/devkeep/internal/output"
	"github.com/blackwell-systems/devkeep/internal/server"
	"github.com/blackwell-systems/devkeep/internal/watcher"
)

var (
	serveAddr        string
	serveDaemon      bool
	serveDaemonChild bool
	serveStop        bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the devkeep API server",
		Long: `Serve devkeep's status and operation surface over HTTP.

The server exposes the same engine the CLI uses: service status, the
operation state machine, backups, config, and metric history. Operations
started over HTTP live inside the server process, so 'devkeep ops cancel'
and 'ops clear' talk to it.

While serving, the config document is watched for edits; saving a change
takes effect without a restart.

Serve modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon

Key endpoints:
  GET  /api/status                    aggregated service status (?fresh=true)
  GET  /api/operations                current operation records
  POST /api/operations/{kind}         start an operation
  GET  /api/backups                   backup catalog
  GET  /api/metrics                   recent metric snapshots`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  devkeep serve

  # Run as background daemon
  devkeep serve --daemon

  # Custom listen address
  devkeep serve --addr 127.0.0.1:9000

  # Stop running daemon
  devkeep serve --stop`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", defaultServeAddr, "listen address")
	serveCmd.Flags().BoolVar(&serveDaemon, "daemon", false, "run as background daemon")
	serveCmd.Flags().BoolVar(&serveDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	serveCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveStop {
		return stopServeDaemon()
	}
	if serveDaemon {
		return startServeDaemon()
	}
	return runServeForeground(serveDaemonChild)
}

func stopServeDaemon() error {
	pidFile, err := pidFilePath()
	if err != nil {
		return err
	}

	running, err := daemon.Running(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Println("Serve daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping serve daemon...")
	spinner.Start()
	if err := daemon.Stop(pidFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Serve daemon stopped")
	return nil
}

func startServeDaemon() error {
	pidFile, err := pidFilePath()
	if err != nil {
		return err
	}
	logFile, err := logFilePath()
	if err != nil {
		return err
	}

	// The child re-runs this command with the same path flags so both
	// processes resolve the same data directory.
	childArgs := []string{"serve", "--daemon-child", "--addr", serveAddr}
	if flagDataDir != "" {
		childArgs = append(childArgs, "--data-dir", flagDataDir)
	}
	if flagDBPath != "" {
		childArgs = append(childArgs, "--db", flagDBPath)
	}
	if flagConfig != "" {
		childArgs = append(childArgs, "--config", flagConfig)
	}

	spinner := output.NewSpinner("Starting serve daemon...")
	spinner.Start()
	if err := daemon.Start(pidFile, logFile, childArgs...); err != nil {
		spinner.Stop()
		return err
	}
	spinner.StopWithMessage("✓ Serve daemon started")

	fmt.Printf("\nAPI address: http://%s\n", serveAddr)
	fmt.Printf("  PID file: %s\n", pidFile)
	fmt.Printf("  Log file: %s\n", logFile)
	fmt.Printf("\nTo stop: devkeep serve --stop\n")
	return nil
}

func runServeForeground(child bool) error {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	eng, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	applyVerbosity(logger, eng.loadConfig())

	if child {
		// The parent wrote the PID file; graceful shutdown cleans it up.
		pidFile, err := pidFilePath()
		if err != nil {
			return err
		}
		defer daemon.RemovePID(pidFile)
	}

	ctx, stop := signalContext()
	defer stop()

	w, err := watcher.New(eng.cfg, logger, func(cfg *config.Config) {
		applyVerbosity(logger, cfg)
		logger.Printf("serve: config reloaded (provider=%s retention=%dd compression=%t)",
			cfg.Backup.Provider, cfg.Backup.RetentionDays, cfg.Backup.CompressionEnabled)
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		// Serving still works without live reload; edits apply per operation.
		logger.Printf("serve: config watcher disabled: %v", err)
	} else {
		defer w.Stop()
	}

	srv := server.New(server.Options{
		Cache:   eng.cache,
		Machine: eng.machine,
		Config:  eng.cfg,
		Backups: eng.backups,
		DB:      eng.db,
		Prober:  eng.prober,
		Start:   eng.Start,
		Logger:  logger,
	})

	if !child {
		fmt.Printf("Serving devkeep API on http://%s (press Ctrl+C to stop)\n", serveAddr)
	}
	return srv.ListenAndServe(ctx, serveAddr)
}

// applyVerbosity adjusts daemon log detail to the verboseLogging preference.
func applyVerbosity(logger *log.Logger, cfg *config.Config) {
	if cfg.Preferences.VerboseLogging {
		logger.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	} else {
		logger.SetFlags(log.LstdFlags)
	}
}
