package storage

import (
	"os"
	"path/filepath"

	"github.com/ensodb/enso/internal/manifest"
	"github.com/ensodb/enso/internal/record"
	"github.com/ensodb/enso/internal/segment"
	"github.com/ensodb/enso/internal/sidx"
)

// RebuildFull is the crash-recovery tool: for every segment
// named in the manifest at dir, scan its data sequentially and rewrite
// its sidecar index from scratch, recomputing offsets from cumulative
// record lengths rather than trusting any existing (possibly
// crash-truncated) sidecar. It makes visible any record that completed
// its segment append but was orphaned because the process crashed before
// the matching sidecar append landed.
func RebuildFull(dir string) error {
	segmentsDir := filepath.Join(dir, "segments")
	indexDir := filepath.Join(dir, "index")

	mf, err := manifest.Open(filepath.Join(dir, "manifest.json"), segment.Name(1))
	if err != nil {
		return err
	}

	for _, name := range mf.Segments {
		segPath := filepath.Join(segmentsDir, name)
		idxPath := filepath.Join(indexDir, manifest.SidecarPath(name))

		tmp := idxPath + ".rebuild"
		f, err := sidx.Open(tmp)
		if err != nil {
			return err
		}

		scanErr := segment.Scan(segPath, func(offset uint64, rec *record.Record) error {
			return f.Append(rec.Key, offset)
		})
		if closeErr := f.Close(); closeErr != nil && scanErr == nil {
			scanErr = closeErr
		}
		if scanErr != nil {
			return scanErr
		}

		if err := os.Rename(tmp, idxPath); err != nil {
			return err
		}
	}
	return nil
}
