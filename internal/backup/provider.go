package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/devkeep/internal/config"
)

// ProviderDir resolves the directory a provider keeps backup manifests in,
// creating it if needed. The local provider lives under the devkeep data
// dir; icloud targets the iCloud Drive folder and fails when the drive is
// not set up on this machine. Payload transfer beyond the manifest is the
// provider's own concern and stays outside this package.
func ProviderDir(provider config.Provider, dataDir string) (string, error) {
	switch provider {
	case config.ProviderLocal:
		dir := filepath.Join(dataDir, "backups")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		return dir, nil

	case config.ProviderICloud:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cloudDocs := filepath.Join(home, "Library", "Mobile Documents", "com~apple~CloudDocs")
		if _, err := os.Stat(cloudDocs); err != nil {
			return "", fmt.Errorf("iCloud Drive is not available on this machine: %w", err)
		}
		dir := filepath.Join(cloudDocs, "devkeep")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create iCloud backup directory: %w", err)
		}
		return dir, nil

	default:
		return "", fmt.Errorf("unknown backup provider %q", provider)
	}
}
