package ledger

import (
	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/store"
)

// FromArchive builds the registry row for a packaged snapshot.
func FromArchive(res *archive.Result) *store.Snapshot {
	m := res.Manifest
	return &store.Snapshot{
		ID:           res.ID,
		Label:        m.Label,
		Source:       m.Source,
		ManifestPath: res.ManifestPath,
		ArchivePath:  res.ArchivePath,
		Algorithm:    m.Algorithm.String(),
		Digest:       res.Digest.String(),
		SizeBytes:    res.Size,
		FileCount:    m.FileCount,
		TotalSize:    m.TotalSize,
		CreatedAt:    m.CreatedAt,
	}
}
