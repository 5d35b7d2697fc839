package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/output"
)

var contentsCmd = &cobra.Command{
	Use:   "contents <snapshot-id>",
	Short: "List the files stored in a snapshot archive",
	Long: `List every file stored in the archive of a registered snapshot, in stored
order, with its size and modification time. The archive is read as is; use
verify-archive to check it against its recorded digest.`,
	Example: `  snapledger contents snap-3f2a9c1b7e44`,
	Args:    cobra.ExactArgs(1),
	RunE:    runContents,
}

func runContents(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	snap, err := s.ledger.Get(args[0])
	if err != nil {
		return err
	}
	entries, err := archive.ListEntries(snap.ArchivePath)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s (%s)\n\n", snap.ID, snap.Label)
	fmt.Fprint(cmd.OutOrStdout(), output.RenderEntries(entries))
	return nil
}
