package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/constants"
)

func TestCommandStructure(t *testing.T) {
	// Test that all commands are properly registered
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}

	expectedCommands := []string{"version", "config", "serve", "sweep", "stats"}
	foundCommands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected command '%s' not found in rootCmd", expected)
		}
	}
}

func TestConfigSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range configCmd.Commands() {
		found[cmd.Name()] = true
	}

	for _, name := range []string{"validate", "show"} {
		if !found[name] {
			t.Errorf("Expected '%s' subcommand not found in configCmd", name)
		}
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want func(t *testing.T)
	}{
		{
			name: "config and env",
			args: []string{"--config", "test.toml", "--env", "test.env"},
			want: func(t *testing.T) {
				if configPath != "test.toml" {
					t.Errorf("configPath = %v, want test.toml", configPath)
				}
				if envPath != "test.env" {
					t.Errorf("envPath = %v, want test.env", envPath)
				}
			},
		},
		{
			name: "short flags",
			args: []string{"-c", "short.toml", "-e", "short.env"},
			want: func(t *testing.T) {
				if configPath != "short.toml" || envPath != "short.env" {
					t.Errorf("got config=%v env=%v", configPath, envPath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath, envPath = "", constants.DefaultEnvPath
			if err := rootCmd.PersistentFlags().Parse(tt.args); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			tt.want(t)
		})
	}

	serveLogLevel = ""
	if err := serveCmd.Flags().Parse([]string{"-l", "debug"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if serveLogLevel != "debug" {
		t.Errorf("serveLogLevel = %v, want debug", serveLogLevel)
	}

	sweepForce = false
	if err := sweepCmd.Flags().Parse([]string{"--force"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !sweepForce {
		t.Error("sweepForce should be true")
	}
}

// execute runs the root command with args and returns everything written to
// the command's output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, envPath = "", filepath.Join(t.TempDir(), "missing.env")
	sweepForce, statsJSON, serveLogLevel = false, false, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, root string, extra string) string {
	t.Helper()

	content := fmt.Sprintf(`
[storage]
root = %q

[retention]
retention_minutes = 5

[logging]
level = "error"
output = "stderr"
%s`, root, extra)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func writeAgedFile(t *testing.T, path string, age time.Duration) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestSweepCommand(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root, "")

	oldFile := filepath.Join(root, constants.DirUploads, "a.pdf")
	freshFile := filepath.Join(root, constants.DirCropped, "b.png")
	writeAgedFile(t, oldFile, 10*time.Minute)
	writeAgedFile(t, freshFile, 2*time.Minute)

	out, err := execute(t, "--config", cfgPath, "sweep")
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	if !strings.Contains(out, "Deleted 1 file(s), 0 error(s)") {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("expired file should be deleted")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Error("fresh file should survive a sweep")
	}

	out, err = execute(t, "--config", cfgPath, "sweep", "--force")
	if err != nil {
		t.Fatalf("sweep --force error = %v", err)
	}
	if !strings.Contains(out, "Deleted 1 file(s)") {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := os.Stat(freshFile); !os.IsNotExist(err) {
		t.Error("force sweep should delete the fresh file")
	}
}

func TestSweepCommand_InvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")
	data, _ := os.ReadFile(cfgPath)
	data = bytes.Replace(data, []byte("retention_minutes = 5"), []byte("retention_minutes = 0"), 1)
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "--config", cfgPath, "sweep")
	if err == nil || !strings.Contains(err.Error(), "retention_minutes") {
		t.Errorf("expected retention_minutes validation error, got %v", err)
	}
}

func TestStatsCommand(t *testing.T) {
	root := t.TempDir()
	cfgPath := writeConfig(t, root, "")
	writeAgedFile(t, filepath.Join(root, constants.DirCropped, "old.png"), 30*time.Minute)
	writeAgedFile(t, filepath.Join(root, constants.DirCropped, "new.png"), time.Minute)

	out, err := execute(t, "--config", cfgPath, "stats")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	if !strings.Contains(out, "DIRECTORY") {
		t.Errorf("missing header: %q", out)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case constants.DirCropped:
			if fields[1] != "2" || fields[5] != "1" {
				t.Errorf("cropped row = %q", line)
			}
		case constants.DirUploads:
			if fields[1] != "-" {
				t.Errorf("missing directory should show dashes, got %q", line)
			}
		}
	}

	out, err = execute(t, "--config", cfgPath, "stats", "--json")
	if err != nil {
		t.Fatalf("stats --json error = %v", err)
	}
	var stats map[string]cleanup.DirStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got := stats[constants.DirCropped]; got.FileCount != 2 || got.EligibleCount != 1 {
		t.Errorf("cropped stats = %+v", got)
	}
	if stats[constants.DirUploads].Exists {
		t.Error("uploads should not exist yet")
	}
}

func TestConfigShowMasksToken(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "\n[server]\nadmin_token = \"abcd-secret-token-wxyz\"\n")

	out, err := execute(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if strings.Contains(out, "secret-token") {
		t.Errorf("admin token leaked: %s", out)
	}
	if !strings.Contains(out, "retention_minutes = 5") {
		t.Errorf("expected retention in output: %s", out)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")

	out, err := execute(t, "config", "validate", cfgPath)
	if err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "Version: "+Version) {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath, envPath = "", constants.DefaultEnvPath

	cfg, path, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty for built-in defaults", path)
	}
	if cfg.Retention.RetentionMinutes != 5 {
		t.Errorf("RetentionMinutes = %d, want 5", cfg.Retention.RetentionMinutes)
	}
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "nope.toml")
	envPath = constants.DefaultEnvPath
	defer func() { configPath = "" }()

	if _, _, err := loadConfig(); err == nil {
		t.Error("expected error for an explicit missing config file")
	}
}

func TestStartSweeperUsesSchedule(t *testing.T) {
	configPath, envPath = "", filepath.Join(t.TempDir(), "missing.env")
	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Storage.Root = t.TempDir()
	cfg.Retention.Schedule = "@every 1h"

	store, err := newStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	log, _ := newLogger(cfg.Logging)
	sw, err := newSweeper(cfg, store, log, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := startSweeper(sw, cfg.Retention); err != nil {
		t.Fatalf("startSweeper() error = %v", err)
	}
	defer sw.Stop()
	if !sw.Running() {
		t.Error("sweeper should be running")
	}

	cfg.Retention.Schedule = "bogus"
	if err := startSweeper(sw, cfg.Retention); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
		{10 << 10, "10 KiB"},
		{-1, "0 B"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
