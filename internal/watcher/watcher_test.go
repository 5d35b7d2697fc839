package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackwell-systems/snapledger/internal/ledger"
	"github.com/blackwell-systems/snapledger/internal/manifest"
	"github.com/blackwell-systems/snapledger/internal/store"
	"github.com/blackwell-systems/snapledger/internal/verify"
)

const testDebounce = 100 * time.Millisecond

// counter returns a check func that counts calls and signals each one.
func counter() (CheckFunc, *atomic.Int32, chan struct{}) {
	var n atomic.Int32
	calls := make(chan struct{}, 100)
	return func() error {
		n.Add(1)
		calls <- struct{}{}
		return nil
	}, &n, calls
}

func waitForCall(t *testing.T, calls <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func expectNoCall(t *testing.T, calls <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-calls:
		t.Errorf("unexpected check after %s", what)
	case <-time.After(4 * testDebounce):
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	check, _, _ := counter()

	if _, err := New(t.TempDir(), nil); err == nil {
		t.Error("New() with nil check should fail")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing"), check); !errors.Is(err, manifest.ErrNotFound) {
		t.Errorf("New() on missing dir error = %v, want ErrNotFound", err)
	}

	file := filepath.Join(t.TempDir(), "f")
	writeFile(t, file, "x")
	if _, err := New(file, check); err == nil {
		t.Error("New() on a file should fail")
	}
}

func TestWatcher_ChecksOnStartAndChange(t *testing.T) {
	root := t.TempDir()
	check, n, calls := counter()

	w, err := New(root, check, WithDebounce(testDebounce))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()

	waitForCall(t, calls, "initial check")

	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	waitForCall(t, calls, "check after write")

	if got := n.Load(); got != 2 {
		t.Errorf("checks = %d, want 2", got)
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	check, n, calls := counter()

	w, err := New(root, check, WithDebounce(300*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()
	waitForCall(t, calls, "initial check")

	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, "burst.txt"), string(rune('a'+i)))
	}
	waitForCall(t, calls, "check after burst")
	time.Sleep(600 * time.Millisecond)

	if got := n.Load(); got != 2 {
		t.Errorf("checks = %d, want 2 (initial + one for the burst)", got)
	}
}

func TestWatcher_IgnoresExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref")
	check, _, calls := counter()

	w, err := New(root, check, WithDebounce(testDebounce))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()
	waitForCall(t, calls, "initial check")

	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: other")
	expectNoCall(t, calls, "a change inside .git")
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	check, _, calls := counter()

	w, err := New(root, check, WithDebounce(testDebounce))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()
	waitForCall(t, calls, "initial check")

	if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	waitForCall(t, calls, "check after mkdir")

	writeFile(t, filepath.Join(root, "sub", "deep.txt"), "x")
	waitForCall(t, calls, "check after write in new directory")
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	check, _, _ := counter()
	w, err := New(t.TempDir(), check)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	check, _, calls := counter()
	w, err := New(t.TempDir(), check)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitForCall(t, calls, "initial check")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// TestWatcher_RecordsDriftInLedger wires the watcher to a directory
// verification that records its outcome, as the watch command does.
func TestWatcher_RecordsDriftInLedger(t *testing.T) {
	st := setupTestStore(t)
	l := ledger.New(st)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.yaml"), "port: 80\n")

	built, err := manifest.Build(root, manifest.Options{})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	snap := &store.Snapshot{
		ID: "snap-000000000001", Label: "app", Source: root, ManifestPath: "/m.json", ArchivePath: "/a.tar.gz",
		Algorithm: "sha256", Digest: "", CreatedAt: time.Now(),
	}
	if err := l.Register(snap); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	results := make(chan bool, 10)
	check := func() error {
		report, err := verify.Directory(built.Manifest, root, verify.Options{})
		if err != nil {
			return err
		}
		results <- report.Match
		return l.RecordVerification(snap.ID, report.Match, report.Summary())
	}

	w, err := New(root, check, WithDebounce(testDebounce))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer w.Stop()

	if match := <-results; !match {
		t.Fatal("initial check should match")
	}

	writeFile(t, filepath.Join(root, "app.yaml"), "port: 8080\n")
	select {
	case match := <-results:
		if match {
			t.Error("check after modification should report drift")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for drift check")
	}

	w.Stop()
	entries, err := l.Log(snap.ID, 1)
	if err != nil {
		t.Fatalf("Log() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Result != store.ResultFail {
		t.Errorf("latest audit entry = %+v, want verify/fail", entries)
	}
}
