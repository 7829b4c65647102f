// Package installer shells out to Homebrew to install tools and apply
// per-tool configuration steps. Everything goes through command.Runner so
// tests never touch a real brew.
package installer

import (
	"context"
	"fmt"
	"strings"

	"github.com/blackwell-systems/devkeep/internal/command"
	"github.com/blackwell-systems/devkeep/internal/config"
)

// Installer drives the package manager.
type Installer struct {
	runner command.Runner
}

// New returns an installer backed by runner.
func New(runner command.Runner) *Installer {
	return &Installer{runner: runner}
}

// Install installs a tool via brew install. If version is empty, installs
// the latest version.
func (i *Installer) Install(ctx context.Context, tool, version string) error {
	fullName := tool
	if version != "" {
		// Homebrew uses @ syntax for versioned packages (e.g., node@20).
		// If the version is already in the tool name, use it as-is.
		if !strings.Contains(tool, "@") {
			fullName = fmt.Sprintf("%s@%s", tool, version)
		}
	}

	if _, err := i.runner.Run(ctx, "brew", "install", fullName); err != nil {
		return fmt.Errorf("brew install %s failed: %w", fullName, err)
	}
	return nil
}

// step is one configure action for a tool.
type step struct {
	desc string
	args []string
}

// configureSteps returns the configure steps for a tool. Preferences steer
// steps that have an on/off nature.
func configureSteps(tool string, prefs config.Preferences) []step {
	switch tool {
	case "brew":
		mode := "off"
		if prefs.AnalyticsEnabled {
			mode = "on"
		}
		return []step{
			{desc: "analytics " + mode, args: []string{"brew", "analytics", mode}},
		}
	case "git":
		return []step{
			{desc: "default branch main", args: []string{"git", "config", "--global", "init.defaultBranch", "main"}},
		}
	case "node":
		return []step{
			{desc: "disable npm funding notices", args: []string{"npm", "config", "set", "fund", "false"}},
		}
	default:
		return nil
	}
}

// ConfigurableTools lists the tools Configure knows steps for.
func ConfigurableTools() []string {
	return []string{"brew", "git", "node"}
}

// Configure applies the configure steps for a tool and returns descriptions
// of the steps it ran. It stops at the first failing step.
func (i *Installer) Configure(ctx context.Context, tool string, prefs config.Preferences) ([]string, error) {
	steps := configureSteps(tool, prefs)
	if len(steps) == 0 {
		return nil, fmt.Errorf("no configure steps defined for %s (configurable: %s)",
			tool, strings.Join(ConfigurableTools(), ", "))
	}

	var applied []string
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if _, err := i.runner.Run(ctx, s.args[0], s.args[1:]...); err != nil {
			return applied, fmt.Errorf("configure step %q failed: %w", s.desc, err)
		}
		applied = append(applied, s.desc)
	}
	return applied, nil
}
