package app

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/manifest"
	"github.com/blackwell-systems/snapledger/internal/output"
	"github.com/blackwell-systems/snapledger/internal/store"
	"github.com/blackwell-systems/snapledger/internal/verify"
	"github.com/blackwell-systems/snapledger/internal/watcher"
)

var (
	watchDebounce time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch <manifest|snapshot-id> [target]",
		Short: "Re-verify a directory whenever it changes",
		Long: `Watch a directory and verify it against a snapshot manifest every time its
contents change.

A verification runs once at start and again after each burst of filesystem
events has settled for the debounce period. Each result is printed, and for a
registered snapshot recorded in the audit ledger.

The target defaults to the directory the snapshot was taken from. Press
Ctrl+C to stop.`,
		Example: `  # Watch the original source directory
  snapledger watch snap-3f2a9c1b7e44

  # Watch a deployed copy with a longer quiet period
  snapledger watch snap-3f2a9c1b7e44 /srv/app/config --debounce 2s`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before re-verifying")
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	m, snap, err := s.resolveManifest(args[0])
	if err != nil {
		return err
	}
	target := m.Source
	if len(args) > 1 {
		target = args[1]
	}

	out := cmd.OutOrStdout()
	check := verifyAndRecord(s, m, snap, target, func(report *verify.Report) {
		fmt.Fprintf(out, "[%s]\n", time.Now().Format("15:04:05"))
		fmt.Fprint(out, output.RenderDifferences(report))
	})

	w, err := watcher.New(target, check,
		watcher.WithDebounce(watchDebounce),
		watcher.WithExclude(m.Excludes()),
		watcher.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s (press Ctrl+C to stop)...\n\n", target)

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	<-ctx.Done()
	fmt.Fprintln(out)

	spinner := output.NewSpinner("Stopping watcher...")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	if err := w.Stop(); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	spinner.StopWithMessage("✓ Watcher stopped")
	return nil
}

// verifyAndRecord returns a check that verifies target against m, records
// the outcome when snap is registered, and hands the report to show.
func verifyAndRecord(s *session, m *manifest.Manifest, snap *store.Snapshot, target string, show func(*verify.Report)) watcher.CheckFunc {
	return func() error {
		report, err := verify.Directory(m, target, verify.Options{Logger: s.logger})
		if err != nil {
			return err
		}
		show(report)
		if snap == nil {
			return nil
		}
		detail := fmt.Sprintf("watch %s: %s", target, report.Summary())
		return s.ledger.RecordVerification(snap.ID, report.Match, detail)
	}
}
