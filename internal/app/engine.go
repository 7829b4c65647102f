package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/devkeep/internal/backup"
	"github.com/blackwell-systems/devkeep/internal/command"
	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/evolution"
	"github.com/blackwell-systems/devkeep/internal/installer"
	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/probe"
	"github.com/blackwell-systems/devkeep/internal/services"
	"github.com/blackwell-systems/devkeep/internal/store"
)

// engine wires the stores, probes and collaborators behind every devkeep
// command, and composes the action each operation kind runs. It is the single
// composition point shared by the CLI and the serve daemon's HTTP surface.
type engine struct {
	dataDir   string
	cfg       *config.Store
	db        *store.Store
	prober    probe.Prober
	runner    command.Runner
	cache     *services.Cache
	machine   *ops.Machine
	backups   *backup.Manager
	installer *installer.Installer
	collector *evolution.Collector
	logger    *log.Logger
}

// newEngine resolves paths from the global flags and opens every collaborator
// against the real host.
func newEngine(logger *log.Logger) (*engine, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	cfgPath, err := configPath()
	if err != nil {
		return nil, err
	}
	dbPath, err := dbFilePath()
	if err != nil {
		return nil, err
	}

	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.CreateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	runner := &command.ExecRunner{}
	return buildEngine(dir, config.NewStore(cfgPath), db, &probe.ExecProber{}, runner, logger), nil
}

// buildEngine assembles an engine from explicit collaborators. Tests inject
// mocks here.
func buildEngine(dataDir string, cfg *config.Store, db *store.Store, prober probe.Prober, runner command.Runner, logger *log.Logger) *engine {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	e := &engine{
		dataDir:   dataDir,
		cfg:       cfg,
		db:        db,
		prober:    prober,
		runner:    runner,
		cache:     services.NewCache(prober, services.DefaultServices(), services.DefaultStaleness),
		machine:   ops.NewMachine(logger),
		backups:   backup.NewManager(db, dataDir),
		installer: installer.New(runner),
		collector: evolution.NewCollector(runner),
		logger:    logger,
	}
	e.machine.OnTerminal = e.auditTerminal
	return e
}

func (e *engine) Close() error {
	return e.db.Close()
}

// auditTerminal persists every terminal operation record to the history
// database.
func (e *engine) auditTerminal(rec ops.Record) {
	if err := e.db.RecordOperation(rec); err != nil {
		e.logger.Printf("engine: failed to record %s operation: %v", rec.Kind, err)
	}
}

// loadConfig reads the config document, logging rather than surfacing the
// substitution warning. The returned config is always valid.
func (e *engine) loadConfig() *config.Config {
	cfg, warn := e.cfg.Load()
	if warn != nil {
		e.logger.Printf("engine: %v", warn)
	}
	return cfg
}

// Start validates params, composes the action for kind, and admits the
// operation. Parameter problems fail synchronously without creating a
// record; a busy slot fails with *ops.ConflictError.
func (e *engine) Start(kind ops.Kind, params map[string]string) (ops.Record, error) {
	action, err := e.action(kind, params)
	if err != nil {
		return ops.Record{}, err
	}
	return e.machine.Request(kind, action)
}

func (e *engine) action(kind ops.Kind, params map[string]string) (ops.Action, error) {
	switch kind {
	case ops.KindBackupCreate:
		return e.backupCreateAction(params["name"]), nil
	case ops.KindBackupRestore:
		ref := params["ref"]
		if ref == "" {
			return nil, fmt.Errorf("%s requires a ref parameter (backup id or name)", kind)
		}
		return e.backupRestoreAction(ref), nil
	case ops.KindBackupDelete:
		ref := params["ref"]
		if ref == "" {
			return nil, fmt.Errorf("%s requires a ref parameter (backup id or name)", kind)
		}
		return e.backupDeleteAction(ref), nil
	case ops.KindServiceInstall:
		tool := params["tool"]
		if tool == "" {
			return nil, fmt.Errorf("%s requires a tool parameter", kind)
		}
		return e.serviceInstallAction(tool, params["version"]), nil
	case ops.KindServiceConfigure:
		tool := params["tool"]
		if tool == "" {
			return nil, fmt.Errorf("%s requires a tool parameter", kind)
		}
		if !configurable(tool) {
			return nil, fmt.Errorf("no configure steps defined for %s (configurable: %s)",
				tool, strings.Join(installer.ConfigurableTools(), ", "))
		}
		return e.serviceConfigureAction(tool), nil
	}
	return nil, fmt.Errorf("unknown operation kind %q", kind)
}

func configurable(tool string) bool {
	for _, t := range installer.ConfigurableTools() {
		if t == tool {
			return true
		}
	}
	return false
}

// backupCreateAction probes the tracked services fresh, then writes and
// catalogs a manifest of their states under the configured provider.
func (e *engine) backupCreateAction(name string) ops.Action {
	return func(ctx context.Context, progress func(float64)) (any, error) {
		cfg := e.loadConfig()
		if name == "" {
			name = time.Now().Format("2006-01-02-150405")
		}

		progress(0.05)
		snap := e.cache.Status(ctx, true)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tools := make([]backup.ToolState, 0, len(snap.PerService))
		for _, res := range snap.PerService {
			tools = append(tools, backup.ToolState{
				Name:      res.Tool,
				Installed: res.Installed,
				Version:   probe.FirstVersionLine(res.Version),
			})
		}
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		progress(0.15)

		return e.backups.Create(ctx, progress, backup.CreateOptions{
			Name:       name,
			Provider:   cfg.Backup.Provider,
			Compressed: cfg.Backup.CompressionEnabled,
			Tools:      tools,
		})
	}
}

// backupRestoreAction re-installs the tools a manifest records that are
// missing from the host now.
func (e *engine) backupRestoreAction(ref string) ops.Action {
	return func(ctx context.Context, progress func(float64)) (any, error) {
		have := func(tool string) bool {
			return e.prober.Probe(ctx, tool, "").Installed
		}
		install := func(ctx context.Context, tool, version string) error {
			return e.installer.Install(ctx, tool, version)
		}
		report, err := e.backups.Restore(ctx, progress, ref, have, install)
		if err != nil {
			return nil, err
		}
		return report, nil
	}
}

func (e *engine) backupDeleteAction(ref string) ops.Action {
	return func(ctx context.Context, progress func(float64)) (any, error) {
		return e.backups.Delete(ctx, progress, ref)
	}
}

func (e *engine) serviceInstallAction(tool, version string) ops.Action {
	return func(ctx context.Context, progress func(float64)) (any, error) {
		progress(0.1)
		if err := e.installer.Install(ctx, tool, version); err != nil {
			return nil, &ops.ExternalError{Kind: ops.KindServiceInstall, Err: err}
		}
		progress(0.9)

		// Re-probe so the result reflects what actually landed.
		res := e.prober.Probe(ctx, tool, "")
		if res.Installed && res.Version != "" {
			return fmt.Sprintf("installed %s (%s)", tool, probe.FirstVersionLine(res.Version)), nil
		}
		return fmt.Sprintf("installed %s", tool), nil
	}
}

func (e *engine) serviceConfigureAction(tool string) ops.Action {
	return func(ctx context.Context, progress func(float64)) (any, error) {
		cfg := e.loadConfig()
		progress(0.1)
		applied, err := e.installer.Configure(ctx, tool, cfg.Preferences)
		if err != nil {
			return nil, &ops.ExternalError{Kind: ops.KindServiceConfigure, Err: err}
		}
		return fmt.Sprintf("configured %s: %s", tool, strings.Join(applied, "; ")), nil
	}
}
