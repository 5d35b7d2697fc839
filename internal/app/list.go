package app

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/output"
)

var (
	reportJSON bool
	logLimit   int

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered snapshots",
		Long: `List registered snapshots, newest first.

Manifest files in the archive directory that no registered snapshot refers
to are listed after the table. They are left behind when a create is
interrupted between writing the archive and registering it.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Summarize verified and unverified snapshots",
		Args:  cobra.NoArgs,
		RunE:  runReport,
	}

	logCmd = &cobra.Command{
		Use:   "log [snapshot-id]",
		Short: "Show the audit log",
		Long: `Show audit log entries, newest first. With a snapshot id only that
snapshot's entries are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLog,
	}
)

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 50, "maximum number of entries (0 for all)")
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	snapshots, err := s.ledger.List()
	if err != nil {
		return err
	}
	orphans, err := orphanManifests(s.cfg.Paths().Archives, snapshots)
	if err != nil {
		return fmt.Errorf("failed to scan archive directory: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderSnapshotTable(snapshots))
	fmt.Fprint(out, output.RenderOrphans(orphans))
	return nil
}

// reportJSONView is the --json shape of the report command.
type reportJSONView struct {
	Total      int            `json:"total"`
	Verified   int            `json:"verified"`
	Unverified int            `json:"unverified"`
	Snapshots  []snapshotView `json:"snapshots"`
}

type snapshotView struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Archive   string `json:"archive"`
	Manifest  string `json:"manifest"`
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	Files     int    `json:"files"`
	CreatedAt string `json:"created_at"`
	Verified  bool   `json:"verified"`
}

func runReport(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.ledger.Report()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !reportJSON {
		fmt.Fprint(out, output.RenderReport(r))
		return nil
	}

	view := reportJSONView{
		Total:      r.Total,
		Verified:   r.Verified,
		Unverified: r.Unverified,
		Snapshots:  make([]snapshotView, 0, len(r.Snapshots)),
	}
	for _, snap := range r.Snapshots {
		view.Snapshots = append(view.Snapshots, snapshotView{
			ID:        snap.ID,
			Label:     snap.Label,
			Archive:   snap.ArchivePath,
			Manifest:  snap.ManifestPath,
			Algorithm: snap.Algorithm,
			Digest:    snap.Digest,
			Size:      snap.SizeBytes,
			Files:     snap.FileCount,
			CreatedAt: snap.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Verified:  snap.Verified,
		})
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	entries, err := s.ledger.Log(id, logLimit)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderAuditLog(entries))
	return nil
}
