// Package output provides terminal output utilities for snapledger.
//
// This package includes:
//   - Table rendering for snapshots, audit entries, version records and
//     verification differences
//   - Progress bars and spinners for long-running operations
//   - Human-readable formatting for sizes and dates
//
// Tables use plain characters and ANSI color codes, which are dropped when
// stdout is not a terminal or NO_COLOR is set.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/ledger"
	"github.com/blackwell-systems/snapledger/internal/store"
	"github.com/blackwell-systems/snapledger/internal/verify"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderSnapshotTable renders registered snapshots in the order given.
func RenderSnapshotTable(snapshots []*store.Snapshot) string {
	if len(snapshots) == 0 {
		return "No snapshots found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-17s %-20s %7s %10s %-15s %s\n",
		"ID", "Label", "Files", "Size", "Created", "Verified"))
	sb.WriteString(strings.Repeat("─", 82))
	sb.WriteString("\n")

	for _, snap := range snapshots {
		sb.WriteString(fmt.Sprintf("%-17s %-20s %7d %10s %-15s %s\n",
			snap.ID,
			truncate(snap.Label, 20),
			snap.FileCount,
			formatSize(snap.SizeBytes),
			formatRelativeTime(snap.CreatedAt),
			formatVerified(snap.Verified)))
	}

	return sb.String()
}

// RenderOrphans lists manifest files on disk that no registered snapshot
// refers to.
func RenderOrphans(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n%d unregistered manifest(s):\n", len(paths)))
	for _, p := range paths {
		sb.WriteString("  " + colorize(colorYellow, p) + "\n")
	}
	return sb.String()
}

// RenderReport renders the ledger summary followed by the snapshot table.
func RenderReport(r *ledger.Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Snapshots:  %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Verified:   %s\n", colorize(colorGreen, fmt.Sprint(r.Verified))))
	unverified := fmt.Sprint(r.Unverified)
	if r.Unverified > 0 {
		unverified = colorize(colorYellow, unverified)
	}
	sb.WriteString(fmt.Sprintf("Unverified: %s\n\n", unverified))
	sb.WriteString(RenderSnapshotTable(r.Snapshots))
	return sb.String()
}

// RenderDifferences renders one line per difference and a summary line.
func RenderDifferences(r *verify.Report) string {
	var sb strings.Builder
	for _, d := range r.Differences {
		sb.WriteString(colorize(kindColor(d.Kind), string(d.Kind)))
		sb.WriteString(": ")
		sb.WriteString(d.Path)
		sb.WriteString("\n")
	}
	for _, u := range r.Unreadable {
		sb.WriteString(colorize(colorGray, "UNREADABLE"))
		sb.WriteString(fmt.Sprintf(": %s (%s)\n", u.Path, u.Reason))
	}

	if r.Match {
		sb.WriteString(colorize(colorGreen, "✓ "+r.Summary()) + "\n")
	} else {
		sb.WriteString(colorize(colorRed, "✗ "+r.Summary()) + "\n")
	}
	return sb.String()
}

// RenderAuditLog renders audit entries in the order given.
func RenderAuditLog(entries []*store.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-6s %-20s %-17s %-9s %-6s %s\n",
		"#", "At", "Snapshot", "Action", "Result", "Detail"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%-6d %-20s %-17s %-9s %-6s %s\n",
			e.ID,
			e.At.Local().Format("2006-01-02 15:04:05"),
			e.SnapshotID,
			e.Action,
			padColor(resultColor(e.Result), e.Result, 6),
			truncate(e.Detail, 40)))
	}

	return sb.String()
}

// RenderEntries renders the files of an archive in the order given, with a
// total line.
func RenderEntries(entries []archive.Entry) string {
	if len(entries) == 0 {
		return "Archive is empty.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-50s %10s %s\n", "Path", "Size", "Modified"))
	sb.WriteString(strings.Repeat("─", 82))
	sb.WriteString("\n")

	var total int64
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%-50s %10s %s\n",
			e.Path,
			formatSize(e.Size),
			e.ModTime.Local().Format("2006-01-02 15:04:05")))
		total += e.Size
	}
	sb.WriteString(fmt.Sprintf("\n%d file(s), %s\n", len(entries), formatSize(total)))
	return sb.String()
}

// RenderVersionTable renders version records in the order given.
func RenderVersionTable(records []*store.VersionRecord) string {
	if len(records) == 0 {
		return "No versions found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-16s %-12s %-12s %-12s %-15s %-10s %s\n",
		"Service", "Version", "Environment", "Status", "Deployed", "By", "Commit"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, v := range records {
		sb.WriteString(fmt.Sprintf("%-16s %-12s %-12s %s %-15s %-10s %s\n",
			truncate(v.Service, 16),
			truncate(v.Version, 12),
			truncate(v.Environment, 12),
			padColor(statusColor(v.Status), v.Status, 12),
			formatRelativeTime(v.DeployedAt),
			truncate(v.DeployedBy, 10),
			prefix(v.CommitSHA, 12)))
	}

	return sb.String()
}

// RenderVersion renders a single record as labelled lines.
func RenderVersion(v *store.VersionRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Service:     %s\n", v.Service))
	sb.WriteString(fmt.Sprintf("Version:     %s\n", v.Version))
	sb.WriteString(fmt.Sprintf("Environment: %s\n", v.Environment))
	sb.WriteString(fmt.Sprintf("Status:      %s\n", colorize(statusColor(v.Status), v.Status)))
	sb.WriteString(fmt.Sprintf("Deployed:    %s (%s)\n", v.DeployedAt.Local().Format(time.RFC3339), formatRelativeTime(v.DeployedAt)))
	if v.DeployedBy != "" {
		sb.WriteString(fmt.Sprintf("By:          %s\n", v.DeployedBy))
	}
	if v.CommitSHA != "" {
		sb.WriteString(fmt.Sprintf("Commit:      %s\n", v.CommitSHA))
	}
	if v.Changelog != "" {
		sb.WriteString(fmt.Sprintf("Changelog:   %s\n", v.Changelog))
	}
	if v.RollbackOf != "" {
		sb.WriteString(fmt.Sprintf("Restored by rollback of %s\n", v.RollbackOf))
	}
	return sb.String()
}

// FormatSize renders a byte count for humans.
func FormatSize(bytes int64) string {
	return formatSize(bytes)
}

func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute && time.Since(t) > -time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

func formatVerified(ok bool) string {
	if ok {
		return colorize(colorGreen, "yes")
	}
	return colorize(colorYellow, "no")
}

func kindColor(k verify.Kind) string {
	switch k {
	case verify.Missing:
		return colorRed
	case verify.Changed:
		return colorYellow
	case verify.Added:
		return colorGreen
	default:
		return colorGray
	}
}

func resultColor(result string) string {
	switch result {
	case store.ResultPass, store.ResultOK:
		return colorGreen
	case store.ResultFail:
		return colorRed
	default:
		return colorGray
	}
}

func statusColor(status string) string {
	switch status {
	case store.StatusActive:
		return colorGreen
	case store.StatusRolledBack:
		return colorRed
	default:
		return colorGray
	}
}

// padColor pads text to width before coloring so escape codes do not break
// column alignment.
func padColor(color, text string, width int) string {
	return colorize(color, fmt.Sprintf("%-*s", width, text))
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return prefix(s, maxLen)
	}
	return prefix(s, maxLen-3) + "..."
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
