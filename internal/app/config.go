package app

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/devkeep/internal/config"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show or change devkeep settings",
		Long: `Read and write the devkeep configuration document.

The document lives at ~/.devkeep/config.json and is replaced atomically on
every write. A missing or corrupt document falls back to built-in defaults,
so 'config show' always has something to print.

Fields:
  preferences.analyticsEnabled   collect anonymous usage metrics (true/false)
  preferences.autoBackup         back up before risky operations (true/false)
  preferences.verboseLogging     chatty daemon logs (true/false)
  backup.provider                backup destination (local or icloud)
  backup.retentionDays           days to keep backups when pruning (positive)
  backup.compressionEnabled      gzip backup manifests (true/false)`,
		Example: `  # Print the active configuration
  devkeep config show

  # Change a field
  devkeep config set backup.retentionDays 14

  # Back to defaults
  devkeep config reset`,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		RunE:  runConfigShow,
	}

	configSetCmd = &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Set a configuration field",
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	}

	configResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Restore the built-in defaults",
		RunE:  runConfigReset,
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	RootCmd.AddCommand(configCmd)
}

func configStore() (*config.Store, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return config.NewStore(path), nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	store, err := configStore()
	if err != nil {
		return err
	}
	cfg, warn := store.Load()
	if warn != nil {
		fmt.Fprintf(os.Stderr, "⚠ %v\n", warn)
	}

	fmt.Printf("Configuration (%s)\n\n", store.Path())
	fmt.Printf("  preferences.analyticsEnabled   %t\n", cfg.Preferences.AnalyticsEnabled)
	fmt.Printf("  preferences.autoBackup         %t\n", cfg.Preferences.AutoBackup)
	fmt.Printf("  preferences.verboseLogging     %t\n", cfg.Preferences.VerboseLogging)
	fmt.Printf("  backup.provider                %s\n", cfg.Backup.Provider)
	fmt.Printf("  backup.retentionDays           %d\n", cfg.Backup.RetentionDays)
	fmt.Printf("  backup.compressionEnabled      %t\n", cfg.Backup.CompressionEnabled)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := configStore()
	if err != nil {
		return err
	}
	cfg, warn := store.Load()
	if warn != nil {
		fmt.Fprintf(os.Stderr, "⚠ %v\n", warn)
	}

	field, value := args[0], args[1]
	if err := applyConfigField(cfg, field, value); err != nil {
		return err
	}
	if err := store.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("✓ Set %s = %s\n", field, value)
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	store, err := configStore()
	if err != nil {
		return err
	}
	if err := store.Save(config.Default()); err != nil {
		return err
	}
	fmt.Println("✓ Configuration reset to defaults")
	return nil
}

// applyConfigField mutates one field of cfg addressed by its JSON path.
// Validation of the resulting document happens in Store.Save, so this only
// rejects unknown fields and unparseable values.
func applyConfigField(cfg *config.Config, field, value string) error {
	switch field {
	case "preferences.analyticsEnabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s wants true or false, got %q", field, value)
		}
		cfg.Preferences.AnalyticsEnabled = b
	case "preferences.autoBackup":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s wants true or false, got %q", field, value)
		}
		cfg.Preferences.AutoBackup = b
	case "preferences.verboseLogging":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s wants true or false, got %q", field, value)
		}
		cfg.Preferences.VerboseLogging = b
	case "backup.provider":
		cfg.Backup.Provider = config.Provider(value)
	case "backup.retentionDays":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s wants a number of days, got %q", field, value)
		}
		cfg.Backup.RetentionDays = n
	case "backup.compressionEnabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s wants true or false, got %q", field, value)
		}
		cfg.Backup.CompressionEnabled = b
	default:
		return fmt.Errorf("unknown config field %q (see 'devkeep config --help')", field)
	}
	return nil
}
