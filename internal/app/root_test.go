package app

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/blackwell-systems/snapledger/internal/watcher"
)

// resetFlags restores every package-level flag variable so one execution
// does not leak into the next.
func resetFlags() {
	rootDir, configPath, verbose = "", "", false
	createInclude, createCompression, createAlgorithm, createPreset = nil, "", "", ""
	verifyJSON, reportJSON, logLimit = false, false, 50
	restoreOverwrite, restoreYes = false, false
	deployEnv, deployCommit, deployChangelog, deployBy = "", "", "", ""
	rollbackEnv, latestEnv, versionsEnv = "", "", ""
	watchDebounce = watcher.DefaultDebounce
}

// setupTestEnv isolates the config lookup and returns a fresh storage root.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SNAPLEDGER_CONFIG", "")
	t.Cleanup(resetFlags)
	return filepath.Join(t.TempDir(), "store")
}

// execute runs the root command with args and returns everything written to
// stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

var snapshotIDPattern = regexp.MustCompile(`snap-[0-9a-f]{12}`)

// createSnapshot runs create and returns the new snapshot id.
func createSnapshot(t *testing.T, root string, args ...string) string {
	t.Helper()
	out, err := execute(t, "", append([]string{"--root", root, "create"}, args...)...)
	if err != nil {
		t.Fatalf("create failed: %v\n%s", err, out)
	}
	id := snapshotIDPattern.FindString(out)
	if id == "" {
		t.Fatalf("no snapshot id in create output:\n%s", out)
	}
	return id
}

func TestRootCommand(t *testing.T) {
	// Test that root command is properly configured
	if RootCmd.Use != "snapledger" {
		t.Errorf("expected Use to be 'snapledger', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	checkSubcommands(t)
}

func TestRootCommandAfterExecute(t *testing.T) {
	setupTestEnv(t)
	if _, err := execute(t, "", "--help"); err != nil {
		t.Fatalf("--help failed: %v", err)
	}
	checkSubcommands(t)
}

func checkSubcommands(t *testing.T) {
	t.Helper()
	expectedCommands := []string{
		"create", "verify", "verify-archive", "list", "restore", "report", "log",
		"deploy", "rollback", "latest", "versions", "watch", "contents",
	}
	foundCommands := make(map[string]bool)

	// cobra adds help and completion on first Execute; they are not ours.
	builtin := map[string]bool{"help": true, "completion": true}

	for _, cmd := range RootCmd.Commands() {
		foundCommands[cmd.Name()] = true
		if builtin[cmd.Name()] {
			continue
		}
		if cmd.Short == "" {
			t.Errorf("command %q has no Short description", cmd.Name())
		}
		if cmd.RunE == nil {
			t.Errorf("command %q has no RunE", cmd.Name())
		}
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"root", "config", "verbose"} {
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

func TestRootCmd_BareInvocation(t *testing.T) {
	setupTestEnv(t)

	// Verify SilenceUsage and SilenceErrors are set
	if !RootCmd.SilenceUsage {
		t.Error("expected SilenceUsage to be true")
	}
	if !RootCmd.SilenceErrors {
		t.Error("expected SilenceErrors to be true")
	}
	if RootCmd.SuggestionsMinimumDistance != 2 {
		t.Errorf("SuggestionsMinimumDistance = %d, want 2", RootCmd.SuggestionsMinimumDistance)
	}

	out, err := execute(t, "")
	if err != nil {
		t.Fatalf("bare invocation failed: %v", err)
	}
	if !strings.Contains(out, "snapledger create") {
		t.Errorf("bare invocation output missing hint:\n%s", out)
	}
}

func TestLoadConfig_RootOverride(t *testing.T) {
	setupTestEnv(t)
	resetFlags()

	rootDir = "/tmp/elsewhere"
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Root != "/tmp/elsewhere" {
		t.Errorf("Root = %q, want /tmp/elsewhere", cfg.Root)
	}
	if got := cfg.Paths().Database; got != "/tmp/elsewhere/snapledger.db" {
		t.Errorf("Database = %q", got)
	}
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	setupTestEnv(t)
	resetFlags()

	path := filepath.Join(t.TempDir(), "snapledger.yaml")
	writeTree(t, filepath.Dir(path), map[string]string{
		filepath.Base(path): "root: /data/snaps\ncompression: zstd\n",
	})

	configPath = path
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Root != "/data/snaps" || cfg.Compression != "zstd" {
		t.Errorf("config = %+v", cfg)
	}

	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() with a missing explicit file should fail")
	}
}

func TestOpenStore_CreatesRootAndSchema(t *testing.T) {
	root := setupTestEnv(t)
	resetFlags()
	rootDir = root

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore() error: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(filepath.Join(root, "snapledger.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if _, _, err := st.CountSnapshots(); err != nil {
		t.Errorf("schema missing: %v", err)
	}
}
