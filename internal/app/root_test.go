package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "devkeep" {
		t.Errorf("expected Use to be 'devkeep', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}
	if !strings.Contains(RootCmd.Long, "Quick Start") {
		t.Error("expected Long description to contain 'Quick Start' section")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expected := []string{
		"status", "config", "backup", "install", "configure",
		"ops", "snapshot", "impact", "doctor", "serve", "version",
	}

	found := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		found[cmd.Name()] = true
	}

	for _, name := range expected {
		if !found[name] {
			t.Errorf("expected command '%s' to be registered", name)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"data-dir", "db", "config"} {
		flag := RootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected --%s flag to be registered", name)
			continue
		}
		if flag.Usage == "" {
			t.Errorf("expected --%s flag to have usage text", name)
		}
	}
}

func TestDataDir(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		custom := filepath.Join(t.TempDir(), "keep")

		oldDataDir := flagDataDir
		flagDataDir = custom
		defer func() { flagDataDir = oldDataDir }()

		dir, err := dataDir()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir != custom {
			t.Errorf("expected dir '%s', got '%s'", custom, dir)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected directory to be created: %v", err)
		}
	})

	t.Run("default path", func(t *testing.T) {
		oldDataDir := flagDataDir
		flagDataDir = ""
		defer func() { flagDataDir = oldDataDir }()

		dir, err := dataDir()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		home, _ := os.UserHomeDir()
		if dir != filepath.Join(home, ".devkeep") {
			t.Errorf("expected default '%s', got '%s'", filepath.Join(home, ".devkeep"), dir)
		}
	})
}

func TestPathHelpers(t *testing.T) {
	base := t.TempDir()

	oldDataDir, oldDB, oldConfig := flagDataDir, flagDBPath, flagConfig
	flagDataDir, flagDBPath, flagConfig = base, "", ""
	defer func() { flagDataDir, flagDBPath, flagConfig = oldDataDir, oldDB, oldConfig }()

	cfgPath, err := configPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfgPath != filepath.Join(base, "config.json") {
		t.Errorf("unexpected config path: %s", cfgPath)
	}

	dbPath, err := dbFilePath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dbPath != filepath.Join(base, "devkeep.db") {
		t.Errorf("unexpected db path: %s", dbPath)
	}

	pidPath, err := pidFilePath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(pidPath, "serve.pid") {
		t.Errorf("expected path to end with 'serve.pid', got '%s'", pidPath)
	}

	logPath, err := logFilePath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(logPath, "serve.log") {
		t.Errorf("expected path to end with 'serve.log', got '%s'", logPath)
	}
}

func TestPathHelperOverrides(t *testing.T) {
	oldDB, oldConfig := flagDBPath, flagConfig
	flagDBPath, flagConfig = "/tmp/custom.db", "/tmp/custom.json"
	defer func() { flagDBPath, flagConfig = oldDB, oldConfig }()

	dbPath, err := dbFilePath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dbPath != "/tmp/custom.db" {
		t.Errorf("expected flag value to win, got '%s'", dbPath)
	}

	cfgPath, err := configPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfgPath != "/tmp/custom.json" {
		t.Errorf("expected flag value to win, got '%s'", cfgPath)
	}
}

func TestRootCmdBareInvocation(t *testing.T) {
	// RunE prints orientation text straight to stdout.
	if RootCmd.RunE == nil {
		t.Fatal("expected RootCmd.RunE to be set for bare invocation")
	}
	if RootCmd.SuggestionsMinimumDistance != 2 {
		t.Errorf("SuggestionsMinimumDistance = %d, want 2", RootCmd.SuggestionsMinimumDistance)
	}
	if !RootCmd.SilenceUsage {
		t.Error("expected SilenceUsage to be true")
	}
	if !RootCmd.SilenceErrors {
		t.Error("expected SilenceErrors to be true")
	}

	oldConfig := flagConfig
	flagConfig = filepath.Join(t.TempDir(), "config.json")
	defer func() { flagConfig = oldConfig }()

	origStdout := os.Stdout
	r, w, pipeErr := os.Pipe()
	if pipeErr != nil {
		t.Fatalf("failed to create pipe: %v", pipeErr)
	}
	os.Stdout = w

	err := RootCmd.RunE(RootCmd, []string{})

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()
	os.Stdout = origStdout

	if err != nil {
		t.Errorf("expected bare invocation to succeed, got: %v", err)
	}
	if !strings.Contains(output, "devkeep status") {
		t.Errorf("expected orientation to mention 'devkeep status', got output:\n%s", output)
	}
}

func TestHelpExitsZero(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	defer RootCmd.SetOut(nil)

	RootCmd.SetErr(bytes.NewBuffer(nil))
	defer RootCmd.SetErr(nil)

	RootCmd.SetArgs([]string{"--help"})
	defer RootCmd.SetArgs(nil)

	if err := Execute(); err != nil {
		t.Errorf("expected Execute() with --help to succeed, got error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Usage:") {
		t.Errorf("expected help output to contain 'Usage:', got: %s", out)
	}
	if !strings.Contains(out, "backup") {
		t.Errorf("expected help output to list subcommands, got: %s", out)
	}
}
