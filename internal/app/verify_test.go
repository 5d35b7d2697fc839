package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/blackwell-systems/snapledger/internal/manifest"
	"github.com/blackwell-systems/snapledger/internal/store"
)

func TestVerify_MatchThenDrift(t *testing.T) {
	root := setupTestEnv(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"app.yaml":  "port: 80\n",
		"db/schema": "create table t",
	})
	id := createSnapshot(t, root, src)

	out, err := execute(t, "", "--root", root, "verify", id)
	if err != nil {
		t.Fatalf("verify of unchanged tree failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 files match") {
		t.Errorf("unexpected output:\n%s", out)
	}

	writeTree(t, src, map[string]string{"app.yaml": "port: 81\n", "extra.txt": "x"})
	if err := os.Remove(filepath.Join(src, "db", "schema")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	out, err = execute(t, "", "--root", root, "verify", id)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("verify error = %v, want ErrVerificationFailed", err)
	}
	for _, want := range []string{"MISSING: db/schema", "CHANGED: app.yaml", "ADDED: extra.txt", "3 difference(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "", "--root", root, "log", id, "--limit", "2")
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("log with --limit 2 printed %d lines, want header + rule + 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "fail") || !strings.Contains(lines[3], "pass") {
		t.Errorf("log should show fail then pass, newest first:\n%s", out)
	}
}

func TestVerify_ManifestFileAgainstOtherTarget(t *testing.T) {
	root := setupTestEnv(t)
	src := t.TempDir()
	files := map[string]string{"a.txt": "alpha", "b/c.txt": "charlie"}
	writeTree(t, src, files)
	id := createSnapshot(t, root, src)

	replica := t.TempDir()
	writeTree(t, replica, files)

	manifestPath := filepath.Join(root, "archives", id+manifest.Suffix)
	out, err := execute(t, "", "--root", root, "verify", manifestPath, replica)
	if err != nil {
		t.Fatalf("verify of identical replica failed: %v\n%s", err, out)
	}
}

func TestVerify_UnregisteredManifestIsNotRecorded(t *testing.T) {
	root := setupTestEnv(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "alpha"})

	res, err := manifest.Build(src, manifest.Options{Label: "loose"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "loose"+manifest.Suffix)
	if err := manifest.Save(path, res.Manifest); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if out, err := execute(t, "", "--root", root, "verify", path); err != nil {
		t.Fatalf("verify failed: %v\n%s", err, out)
	}

	out, err := execute(t, "", "--root", root, "log")
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(out, "No audit entries found.") {
		t.Errorf("unregistered manifest should not be recorded:\n%s", out)
	}
}

func TestVerify_JSON(t *testing.T) {
	root := setupTestEnv(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "alpha"})
	id := createSnapshot(t, root, src)
	writeTree(t, src, map[string]string{"a.txt": "ALPHA"})

	out, err := execute(t, "", "--root", root, "verify", id, "--json")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("verify error = %v, want ErrVerificationFailed", err)
	}

	var report struct {
		Match       bool `json:"match"`
		Differences []struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"differences"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Match || len(report.Differences) != 1 || report.Differences[0].Kind != "CHANGED" {
		t.Errorf("report = %+v", report)
	}
}

func TestVerify_UnknownSnapshot(t *testing.T) {
	root := setupTestEnv(t)

	_, err := execute(t, "", "--root", root, "verify", "snap-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("verify error = %v, want store.ErrNotFound", err)
	}
}

func TestVerifyArchive(t *testing.T) {
	root := setupTestEnv(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "alpha"})
	id := createSnapshot(t, root, src)

	out, err := execute(t, "", "--root", root, "verify-archive", id)
	if err != nil {
		t.Fatalf("verify-archive failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "archive verified") {
		t.Errorf("unexpected output:\n%s", out)
	}

	archivePath := filepath.Join(root, "archives", id+".tar.gz")
	if err := os.WriteFile(archivePath, []byte("corrupted"), 0644); err != nil {
		t.Fatalf("corrupt failed: %v", err)
	}
	out, err = execute(t, "", "--root", root, "verify-archive", id)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("verify-archive error = %v, want ErrVerificationFailed\n%s", err, out)
	}

	out, err = execute(t, "", "--root", root, "report")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(out, "Unverified: 1") {
		t.Errorf("corrupted snapshot should be unverified:\n%s", out)
	}
}
