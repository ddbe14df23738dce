// Package storage owns the active-segment file handle and the manifest:
// segment rotation on a size threshold, eager sidecar creation, and
// startup index rebuild. It is mutated only by the single writer; the
// background compactor touches it only for the short manifest-swap
// window and to resolve segment paths for its own read-only handles.
package storage

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ensodb/enso/internal/ensoerr"
	"github.com/ensodb/enso/internal/manifest"
	"github.com/ensodb/enso/internal/record"
	"github.com/ensodb/enso/internal/segcache"
	"github.com/ensodb/enso/internal/segment"
	"github.com/ensodb/enso/internal/sidx"
)

// Config controls rotation thresholds and startup rebuild depth.
// Zero values are replaced by sensible defaults in Open.
type Config struct {
	// Dir is the data root; segments live under Dir/segments, sidecar
	// indices under Dir/index, the manifest at Dir/manifest.json.
	Dir string
	// SegmentSizeThreshold triggers rotation when an append would push
	// the active segment's size past it.
	SegmentSizeThreshold uint64
	// CacheCapacity bounds the SegIndex LRU.
	CacheCapacity int
	// RebuildDepth is how many of the newest segments get their SegIndex
	// preloaded into the cache at startup.
	RebuildDepth int
}

const (
	defaultSegmentSizeThreshold = 4 << 20 // 4MB
	defaultRebuildDepth         = segcache.DefaultCapacity
)

// Storage coordinates the active segment, its sidecar, and the manifest.
type Storage struct {
	mu sync.Mutex

	dir         string
	segmentsDir string
	indexDir    string
	cfg         Config

	mf     *manifest.Manifest
	active *segment.Active
	sc     *sidx.File
	cache  *segcache.Cache

	log zerolog.Logger
}

// Open sets up storage at cfg.Dir, bootstrapping a fresh manifest and
// initial segment if the directory is new, or loading the existing
// manifest and rebuilding the SegIndex cache for the newest segments
// otherwise.
func Open(cfg Config) (*Storage, error) {
	if cfg.SegmentSizeThreshold == 0 {
		cfg.SegmentSizeThreshold = defaultSegmentSizeThreshold
	}
	if cfg.RebuildDepth <= 0 {
		cfg.RebuildDepth = defaultRebuildDepth
	}

	segmentsDir := filepath.Join(cfg.Dir, "segments")
	indexDir := filepath.Join(cfg.Dir, "index")
	for _, d := range []string{cfg.Dir, segmentsDir, indexDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, ensoerr.Io("mkdir "+d, err)
		}
	}

	mf, err := manifest.Open(filepath.Join(cfg.Dir, "manifest.json"), segment.Name(1))
	if err != nil {
		return nil, err
	}

	cache, err := segcache.New(cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		dir:         cfg.Dir,
		segmentsDir: segmentsDir,
		indexDir:    indexDir,
		cfg:         cfg,
		mf:          mf,
		cache:       cache,
		log:         zerolog.New(os.Stderr).With().Str("component", "storage").Logger(),
	}

	if err := s.openActive(mf.ActiveSegment); err != nil {
		return nil, err
	}
	s.rebuildCache()

	return s, nil
}

// openActive opens (creating if needed) the segment and sidecar files
// for name and installs them as the active pair.
func (s *Storage) openActive(name string) error {
	active, err := segment.OpenActive(s.SegmentPath(name))
	if err != nil {
		return err
	}
	sc, err := sidx.Open(s.SidecarPath(name))
	if err != nil {
		active.Close()
		return err
	}
	s.active = active
	s.sc = sc
	return nil
}

// rebuildCache preloads the newest RebuildDepth segments' SegIndexes. A
// segment with a missing sidecar yields an empty SegIndex, not an error.
func (s *Storage) rebuildCache() {
	segs := s.mf.Segments
	start := 0
	if len(segs) > s.cfg.RebuildDepth {
		start = len(segs) - s.cfg.RebuildDepth
	}
	for _, name := range segs[start:] {
		if err := s.cache.Load(name, s.SidecarPath(name)); err != nil {
			s.log.Warn().Err(err).Str("segment", name).Msg("failed to preload segindex at startup")
		}
	}
}

// SegmentPath returns the on-disk path of a segment's ".log" file.
func (s *Storage) SegmentPath(name string) string {
	return filepath.Join(s.segmentsDir, name)
}

// SidecarPath returns the on-disk path of a segment's ".idx" file.
func (s *Storage) SidecarPath(name string) string {
	return filepath.Join(s.indexDir, manifest.SidecarPath(name))
}

// Cache exposes the shared SegIndex cache for readers (engine get/scan).
func (s *Storage) Cache() *segcache.Cache { return s.cache }

// Segments returns a snapshot of the manifest's segment names, oldest
// first, with the active segment last.
func (s *Storage) Segments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.mf.Segments))
	copy(out, s.mf.Segments)
	return out
}

// ActiveSegmentName returns the name of the currently active segment.
func (s *Storage) ActiveSegmentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mf.ActiveSegment
}

// Append writes rec to the active segment, rotating first if the write
// would push the segment past its size threshold, then appends the
// corresponding sidecar entry and updates the SegIndex cache. It returns
// the segment the record landed in and the offset within it.
func (s *Storage) Append(rec *record.Record) (segName string, offset uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wouldBe := s.active.Size() + uint64(rec.Size())
	if wouldBe > s.cfg.SegmentSizeThreshold {
		if err := s.rotateLocked(); err != nil {
			return "", 0, err
		}
	}

	off, err := s.active.Append(rec)
	if err != nil {
		return "", 0, err
	}
	if err := s.sc.Append(rec.Key, off); err != nil {
		return "", 0, err
	}

	name := s.mf.ActiveSegment
	if err := s.cache.InsertKey(name, s.SidecarPath(name), string(rec.Key), off); err != nil {
		return "", 0, err
	}
	return name, off, nil
}

// rotateLocked seals the active segment and starts a new one. Callers
// must hold s.mu. The new segment and its (empty) sidecar are created
// eagerly, before any record is appended to them, so load_idx never has
// to treat a brand-new segment's missing sidecar as anything other than
// "nothing written yet".
func (s *Storage) rotateLocked() error {
	curNum, err := segment.ParseNumber(s.mf.ActiveSegment)
	if err != nil {
		return err
	}
	nextName := segment.Name(curNum + 1)

	if err := s.active.Close(); err != nil {
		return err
	}
	if err := s.sc.Close(); err != nil {
		return err
	}
	if err := s.openActive(nextName); err != nil {
		return err
	}

	s.mf.PushSegment(nextName)
	if err := s.mf.Save(); err != nil {
		return err
	}
	s.log.Info().Str("segment", nextName).Msg("rotated active segment")
	return nil
}

// SegmentCount returns the number of segments currently named in the
// manifest, including the active one.
func (s *Storage) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mf.Segments)
}

// ApplyCompaction is the linearization point for a successful merge: it
// swaps the manifest under the exclusive lock (removing the merged
// segments, installing the new one) and persists it. It does not touch
// the SegIndex cache; the caller (the compactor) evicts/installs cache
// entries itself, after this call returns, so that manifest and cache
// updates happen in the required order: manifest first, cache second.
func (s *Storage) ApplyCompaction(removed []string, newSegment string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mf.MarkCompacted(removed, newSegment, at)
	return s.mf.Save()
}

// ReadAt reads the record at offset within the named segment. If name is
// the current active segment, the read goes through the already-open
// active handle; otherwise a short-lived read-only mmap is opened over
// the sealed segment file and closed again before returning.
func (s *Storage) ReadAt(name string, offset uint64) (*record.Record, error) {
	s.mu.Lock()
	isActive := name == s.mf.ActiveSegment
	active := s.active
	s.mu.Unlock()

	if isActive {
		return active.ReadAt(offset)
	}

	sealed, err := segment.OpenSealed(s.SegmentPath(name))
	if err != nil {
		return nil, err
	}
	defer sealed.Close()
	return sealed.ReadAt(offset)
}

// Close flushes and closes the active segment and sidecar.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.active.Close(); err != nil {
		return err
	}
	return s.sc.Close()
}

// Logger exposes storage's logger for collaborators that want to share
// its component tagging.
func (s *Storage) Logger() zerolog.Logger { return s.log }
