package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/manifest"
	"github.com/blackwell-systems/snapledger/internal/output"
)

var (
	restoreOverwrite bool
	restoreYes       bool

	restoreCmd = &cobra.Command{
		Use:   "restore <snapshot-id> <destination>",
		Short: "Extract a verified snapshot into a directory",
		Long: `Extract the files of a registered snapshot into <destination>.

The archive file is verified against its recorded digest first, and every
entry is checked against the manifest before anything is written. A damaged
archive is refused without touching the destination.

Existing files are skipped and listed unless --overwrite is given.`,
		Example: `  # Restore into an empty directory
  snapledger restore snap-3f2a9c1b7e44 /tmp/restore

  # Replace live files without prompting
  snapledger restore snap-3f2a9c1b7e44 /etc/myapp --overwrite --yes`,
		Args: cobra.ExactArgs(2),
		RunE: runRestore,
	}
)

func init() {
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace files that already exist")
	restoreCmd.Flags().BoolVar(&restoreYes, "yes", false, "skip confirmation prompt")
}

func runRestore(cmd *cobra.Command, args []string) error {
	id, dest := args[0], args[1]

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	snap, err := s.ledger.Get(id)
	if err != nil {
		return err
	}
	m, err := manifest.Load(snap.ManifestPath)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", id, err)
	}

	out := cmd.OutOrStdout()
	ok, err := s.ledger.VerifyArchive(id)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "✗ %s: archive does not match its recorded digest, nothing restored\n", id)
		return ErrVerificationFailed
	}

	fmt.Fprintf(out, "Snapshot %s (%s): %d files, %s\n",
		snap.ID, snap.Label, m.FileCount, output.FormatSize(m.TotalSize))
	if !restoreYes {
		question := fmt.Sprintf("Restore into %s?", dest)
		if restoreOverwrite {
			question = fmt.Sprintf("Restore into %s, replacing existing files?", dest)
		}
		if !confirm(cmd.InOrStdin(), out, question) {
			fmt.Fprintln(out, "Restore cancelled.")
			return nil
		}
	}

	res, err := archive.Restore(snap.ArchivePath, m, dest, archive.RestoreOptions{Overwrite: restoreOverwrite})
	if err != nil {
		var integrity *archive.IntegrityError
		if errors.As(err, &integrity) {
			for _, p := range integrity.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p)
			}
		}
		return err
	}

	fmt.Fprintf(out, "✓ Restored %d files (%s) into %s\n", len(res.Restored), output.FormatSize(res.Bytes), dest)
	var existing, refused []manifest.Skipped
	for _, sk := range res.Skipped {
		if sk.Reason == archive.ReasonExists {
			existing = append(existing, sk)
		} else {
			refused = append(refused, sk)
		}
	}
	if len(existing) > 0 {
		fmt.Fprintf(out, "\n%d existing file(s) left untouched (use --overwrite to replace):\n", len(existing))
		for _, sk := range existing {
			fmt.Fprintf(out, "  %s\n", sk.Path)
		}
	}
	if len(refused) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n⚠ %d file(s) not restored:\n", len(refused))
		for _, sk := range refused {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", sk.Path, sk.Reason)
		}
	}
	return nil
}
