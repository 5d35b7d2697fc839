package output

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/ledger"
	"github.com/blackwell-systems/snapledger/internal/manifest"
	"github.com/blackwell-systems/snapledger/internal/store"
	"github.com/blackwell-systems/snapledger/internal/verify"
)

func TestRenderSnapshotTable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		snapshots []*store.Snapshot
		contains  []string
	}{
		{
			name:      "empty snapshots",
			snapshots: []*store.Snapshot{},
			contains:  []string{"No snapshots found"},
		},
		{
			name: "single snapshot",
			snapshots: []*store.Snapshot{
				{
					ID:        "snap-0123456789ab",
					Label:     "app-config",
					FileCount: 3,
					SizeBytes: 2048,
					CreatedAt: now.Add(-5 * time.Minute),
					Verified:  true,
				},
			},
			contains: []string{"snap-0123456789ab", "app-config", "2.0 KiB", "5 minutes ago", "yes"},
		},
		{
			name: "unverified snapshot with long label",
			snapshots: []*store.Snapshot{
				{
					ID:        "snap-ba9876543210",
					Label:     "a-very-long-label-that-does-not-fit",
					FileCount: 12,
					SizeBytes: 512,
					CreatedAt: now.Add(-24 * time.Hour),
				},
			},
			contains: []string{"a-very-long-label...", "512 B", "1 day ago", "no"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderSnapshotTable(tt.snapshots)

			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("RenderSnapshotTable() missing expected string %q\nGot:\n%s", expected, result)
				}
			}
		})
	}
}

func TestRenderReport(t *testing.T) {
	r := &ledger.Report{
		Total:      2,
		Verified:   1,
		Unverified: 1,
		Snapshots: []*store.Snapshot{
			{ID: "snap-aaaaaaaaaaaa", Label: "one", CreatedAt: time.Now()},
			{ID: "snap-bbbbbbbbbbbb", Label: "two", CreatedAt: time.Now(), Verified: true},
		},
	}

	result := RenderReport(r)
	for _, expected := range []string{"Snapshots:  2", "Verified:   1", "Unverified: 1", "snap-aaaaaaaaaaaa", "snap-bbbbbbbbbbbb"} {
		if !strings.Contains(result, expected) {
			t.Errorf("RenderReport() missing %q\nGot:\n%s", expected, result)
		}
	}
}

func TestRenderDifferences(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	r := &verify.Report{
		Differences: []verify.Difference{
			{Kind: verify.Missing, Path: "a.txt"},
			{Kind: verify.Changed, Path: "b/c.txt"},
			{Kind: verify.Added, Path: "new.txt"},
		},
		Unreadable: []manifest.Skipped{{Path: "locked", Reason: "permission denied"}},
	}

	got := RenderDifferences(r)
	want := []string{
		"MISSING: a.txt",
		"CHANGED: b/c.txt",
		"ADDED: new.txt",
		"UNREADABLE: locked (permission denied)",
		"✗ 3 difference(s): 1 missing, 1 changed, 1 added, 1 unreadable",
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != len(want) {
		t.Fatalf("RenderDifferences() = %d lines, want %d\nGot:\n%s", len(lines), len(want), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	clean := RenderDifferences(&verify.Report{Match: true, Checked: 7})
	if !strings.Contains(clean, "✓ 7 files match") {
		t.Errorf("clean report = %q", clean)
	}
}

func TestRenderAuditLog(t *testing.T) {
	if got := RenderAuditLog(nil); !strings.Contains(got, "No audit entries") {
		t.Errorf("empty log = %q", got)
	}

	entries := []*store.AuditEntry{
		{ID: 2, SnapshotID: "snap-aaaaaaaaaaaa", Action: store.ActionVerify, Result: store.ResultFail, Detail: "digest mismatch", At: time.Now()},
		{ID: 1, SnapshotID: "snap-aaaaaaaaaaaa", Action: store.ActionRegister, Result: store.ResultOK, At: time.Now()},
	}
	got := RenderAuditLog(entries)
	for _, expected := range []string{"verify", "fail", "digest mismatch", "register", "ok"} {
		if !strings.Contains(got, expected) {
			t.Errorf("RenderAuditLog() missing %q\nGot:\n%s", expected, got)
		}
	}
	if strings.Index(got, "verify") > strings.Index(got, "register") {
		t.Error("entries should be rendered in the order given")
	}
}

func TestRenderEntries(t *testing.T) {
	if got := RenderEntries(nil); !strings.Contains(got, "Archive is empty") {
		t.Errorf("empty archive = %q", got)
	}

	mod := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	got := RenderEntries([]archive.Entry{
		{Path: "conf/app.yaml", Size: 11, ModTime: mod},
		{Path: "app.db", Size: 2048, ModTime: mod},
	})
	for _, expected := range []string{"conf/app.yaml", "app.db", "2.0 KiB", mod.Local().Format("2006-01-02"), "2 file(s)"} {
		if !strings.Contains(got, expected) {
			t.Errorf("RenderEntries() missing %q\nGot:\n%s", expected, got)
		}
	}
	if strings.Index(got, "conf/app.yaml") > strings.Index(got, "app.db") {
		t.Error("entries should be rendered in stored order")
	}
}

func TestRenderVersionTable(t *testing.T) {
	if got := RenderVersionTable(nil); !strings.Contains(got, "No versions found") {
		t.Errorf("empty table = %q", got)
	}

	records := []*store.VersionRecord{
		{Service: "api", Version: "1.1", Environment: "production", Status: store.StatusRolledBack, DeployedBy: "ci", CommitSHA: "0123456789abcdef", DeployedAt: time.Now().Add(-time.Hour)},
		{Service: "api", Version: "1.0", Environment: "production", Status: store.StatusActive, DeployedBy: "ci", DeployedAt: time.Now().Add(-2 * time.Hour)},
	}
	got := RenderVersionTable(records)
	for _, expected := range []string{"api", "1.1", "rolled-back", "1.0", "active", "1 hour ago", "0123456789ab"} {
		if !strings.Contains(got, expected) {
			t.Errorf("RenderVersionTable() missing %q\nGot:\n%s", expected, got)
		}
	}
	if strings.Contains(got, "0123456789abcdef") {
		t.Error("commit should be truncated")
	}
}

func TestRenderVersion(t *testing.T) {
	v := &store.VersionRecord{
		Service: "api", Version: "1.0", Environment: "staging", Status: store.StatusActive,
		CommitSHA: "abc", Changelog: "fix", RollbackOf: "1.1", DeployedAt: time.Now(),
	}
	got := RenderVersion(v)
	for _, expected := range []string{"api", "1.0", "staging", "active", "abc", "fix", "rollback of 1.1"} {
		if !strings.Contains(got, expected) {
			t.Errorf("RenderVersion() missing %q\nGot:\n%s", expected, got)
		}
	}
}

func TestRenderOrphans(t *testing.T) {
	if RenderOrphans(nil) != "" {
		t.Error("no orphans should render nothing")
	}
	got := RenderOrphans([]string{"/root/archives/snap-x.manifest.json"})
	if !strings.Contains(got, "1 unregistered manifest") || !strings.Contains(got, "snap-x.manifest.json") {
		t.Errorf("RenderOrphans() = %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{-5, "0 B"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"seconds", now.Add(-10 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5 minutes ago"},
		{"hours", now.Add(-3 * time.Hour), "3 hours ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRelativeTime(tt.t); got != tt.want {
				t.Errorf("formatRelativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"déploiement-prod", 10, "déploie..."},
		{"日本語のラベル名です", 6, "日本語..."},
		{"ünï", 3, "ünï"},
	}

	for _, tt := range tests {
		got := truncate(tt.s, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.s, tt.maxLen)
		}
	}
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"0123456789abcdef", 12, "0123456789ab"},
		{"abc", 12, "abc"},
		{"", 4, ""},
		{"ééé", 2, "éé"},
	}
	for _, tt := range tests {
		if got := prefix(tt.s, tt.n); got != tt.want {
			t.Errorf("prefix(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestIsColorEnabled_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if IsColorEnabled() {
		t.Error("IsColorEnabled() should be false when NO_COLOR is set")
	}
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize() = %q, want plain text", got)
	}
}
