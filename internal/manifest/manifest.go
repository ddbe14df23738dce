// Package manifest persists the ordered list of segments and the active
// segment name as a single JSON document, the authoritative source of
// segment ordering for reads.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ensodb/enso/internal/ensoerr"
)

// Manifest is the JSON document at data/manifest.json.
type Manifest struct {
	ActiveSegment  string     `json:"active_segment"`
	Segments       []string   `json:"segments"`
	LastCompaction *time.Time `json:"last_compaction,omitempty"`

	path string
}

// Open loads the manifest at path, or initializes it to name the first
// segment if the file doesn't exist yet.
func Open(path string, firstSegment string) (*Manifest, error) {
	m := &Manifest{path: path}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, ensoerr.Io("read manifest", err)
		}
		m.ActiveSegment = firstSegment
		m.Segments = []string{firstSegment}
		if err := m.Save(); err != nil {
			return nil, err
		}
		return m, nil
	}

	if err := json.Unmarshal(b, m); err != nil {
		return nil, ensoerr.Corrupt("manifest json: %v", err)
	}
	m.path = path
	return m, nil
}

// Save serializes the whole document to its well-known path. Writes go
// through this single call; there is no incremental update.
func (m *Manifest) Save() error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ensoerr.Corrupt("marshal manifest: %v", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return ensoerr.Io("write manifest tmp", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return ensoerr.Io("rename manifest", err)
	}
	return nil
}

// MarkCompacted removes the named old segments, puts newSegment at the
// front of the segment order (ahead of every kept segment), and stamps
// last_compaction. The active segment is untouched: compaction never
// merges it.
func (m *Manifest) MarkCompacted(removed []string, newSegment string, at time.Time) {
	removedSet := make(map[string]bool, len(removed))
	for _, r := range removed {
		removedSet[r] = true
	}
	kept := make([]string, 0, len(m.Segments))
	for _, s := range m.Segments {
		if !removedSet[s] {
			kept = append(kept, s)
		}
	}
	// The compacted segment holds only data older than every kept
	// segment, so it goes first; the active segment stays last and
	// active_segment == segments.last() continues to hold.
	merged := make([]string, 0, len(kept)+1)
	merged = append(merged, newSegment)
	merged = append(merged, kept...)
	m.Segments = merged
	m.LastCompaction = &at
}

// PushSegment appends a newly rotated segment and makes it active.
func (m *Manifest) PushSegment(name string) {
	m.Segments = append(m.Segments, name)
	m.ActiveSegment = name
}

// Path returns the manifest's backing file path.
func (m *Manifest) Path() string { return m.path }

// SidecarPath derives a segment's sidecar index path by replacing its
// ".log" extension with ".idx".
func SidecarPath(segmentPath string) string {
	ext := filepath.Ext(segmentPath)
	return segmentPath[:len(segmentPath)-len(ext)] + ".idx"
}
