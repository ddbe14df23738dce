// Package compactor implements background merge compaction: collapsing
// every non-active segment into one, keeping only the newest version of
// each key and dropping tombstones.
package compactor

import (
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ensodb/enso/internal/record"
	"github.com/ensodb/enso/internal/segcache"
	"github.com/ensodb/enso/internal/segment"
	"github.com/ensodb/enso/internal/sidx"
)

// storageHandle is the slice of *storage.Storage the compactor depends
// on. It's expressed as an interface so the compactor package doesn't
// import storage directly, avoiding an import cycle with any future
// storage-side compaction hook.
type storageHandle interface {
	Segments() []string
	SegmentCount() int
	SegmentPath(name string) string
	SidecarPath(name string) string
	Cache() *segcache.Cache
	ApplyCompaction(removed []string, newSegment string, at time.Time) error
}

const compactKey = "compact"

// Compactor triggers and runs merge compaction on its own goroutine,
// guarded by a singleflight group so at most one merge runs at a time;
// a trigger that arrives while one is in flight joins it instead of
// starting a second, redundant merge.
type Compactor struct {
	storage     storageHandle
	maxSegments int
	sf          singleflight.Group
	log         zerolog.Logger
}

// New builds a Compactor that fires when the segment count exceeds
// maxSegments.
func New(storage storageHandle, maxSegments int, log zerolog.Logger) *Compactor {
	return &Compactor{
		storage:     storage,
		maxSegments: maxSegments,
		log:         log.With().Str("component", "compactor").Logger(),
	}
}

// MaybeCompact checks the trigger condition (segment count, checked
// after the append that prompted this call) and, if exceeded, launches a
// compaction attempt on its own goroutine. It never blocks the caller:
// singleflight.DoChan starts the work (or joins an in-flight run) and
// returns immediately; the result channel is intentionally discarded,
// since background-compaction failures are logged, not propagated.
func (c *Compactor) MaybeCompact() {
	if c.storage.SegmentCount() <= c.maxSegments {
		return
	}
	c.sf.DoChan(compactKey, func() (any, error) {
		err := c.compactOnce()
		if err != nil {
			c.log.Error().Err(err).Msg("compaction failed, will retry on next trigger")
		}
		return nil, err
	})
}

// Wait blocks until no compaction is in flight for this compactor. Tests
// use it to make the effects of MaybeCompact observable deterministically.
func (c *Compactor) Wait() {
	c.sf.Do(compactKey, func() (any, error) { return nil, nil })
}

// compactOnce runs one merge pass. It is safe to call directly (as tests
// do) without going through the singleflight trigger.
func (c *Compactor) compactOnce() error {
	segs := c.storage.Segments()
	if len(segs) == 0 {
		return nil
	}
	candidates := segs[:len(segs)-1] // every segment but the active one
	if len(candidates) < 2 {
		return nil // nothing to do
	}

	merged, err := c.mergeNewestFirst(candidates)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(merged))
	for k, rec := range merged {
		if rec.Tombstone {
			continue // tombstones are unobservable once every older segment merges away
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	newName, err := c.nextSegmentName(segs)
	if err != nil {
		return err
	}

	newIdx, err := c.writeCompactedSegment(newName, keys, merged)
	if err != nil {
		return err
	}

	if err := c.storage.ApplyCompaction(candidates, newName, time.Now()); err != nil {
		return err
	}

	// Evict every merged segment's SegIndex and install the new
	// segment's in the same breath, so the two are never paired wrong.
	cache := c.storage.Cache()
	for _, name := range candidates {
		cache.Evict(name)
	}
	cache.Put(newName, newIdx)

	for _, name := range candidates {
		_ = os.Remove(c.storage.SegmentPath(name))
		_ = os.Remove(c.storage.SidecarPath(name))
	}

	c.log.Info().
		Str("new_segment", newName).
		Int("merged", len(candidates)).
		Int("live_keys", len(keys)).
		Msg("compaction complete")
	return nil
}

// mergeNewestFirst reads candidates from newest to oldest, keeping only
// the first (i.e. most recent) occurrence of each key. Tombstones are
// inserted too, so they correctly shadow older writes during the merge;
// they're dropped from the output only afterwards, in compactOnce.
func (c *Compactor) mergeNewestFirst(candidates []string) (map[string]*record.Record, error) {
	merged := make(map[string]*record.Record)

	for i := len(candidates) - 1; i >= 0; i-- {
		name := candidates[i]
		segIdx, err := sidx.Load(c.storage.SidecarPath(name))
		if err != nil {
			return nil, err
		}
		if len(segIdx) == 0 {
			continue
		}
		sealed, err := segment.OpenSealed(c.storage.SegmentPath(name))
		if err != nil {
			return nil, err
		}
		for key, off := range segIdx {
			if _, ok := merged[key]; ok {
				continue
			}
			rec, err := sealed.ReadAt(off)
			if err != nil {
				sealed.Close()
				return nil, err
			}
			merged[key] = rec
		}
		sealed.Close()
	}
	return merged, nil
}

// writeCompactedSegment writes the retained records in sorted key order
// into segments/<newName>.tmp and index/<newName minus ".log">.idx.tmp, fsyncs both,
// then renames each into place. It returns the new segment's SegIndex.
func (c *Compactor) writeCompactedSegment(newName string, keys []string, merged map[string]*record.Record) (segcache.SegIndex, error) {
	segPath := c.storage.SegmentPath(newName)
	idxPath := c.storage.SidecarPath(newName)
	segTmp := segPath + ".tmp"
	idxTmp := idxPath + ".tmp"

	segw, err := segment.OpenActive(segTmp)
	if err != nil {
		return nil, err
	}
	idxw, err := sidx.Open(idxTmp)
	if err != nil {
		segw.Close()
		return nil, err
	}

	newIdx := make(segcache.SegIndex, len(keys))
	for _, k := range keys {
		rec := merged[k]
		off, err := segw.Append(rec)
		if err != nil {
			segw.Close()
			idxw.Close()
			return nil, err
		}
		if err := idxw.Append(rec.Key, off); err != nil {
			segw.Close()
			idxw.Close()
			return nil, err
		}
		newIdx[k] = off
	}

	if err := segw.Sync(); err != nil {
		segw.Close()
		idxw.Close()
		return nil, err
	}
	if err := idxw.Sync(); err != nil {
		segw.Close()
		idxw.Close()
		return nil, err
	}
	if err := segw.Close(); err != nil {
		idxw.Close()
		return nil, err
	}
	if err := idxw.Close(); err != nil {
		return nil, err
	}

	if err := os.Rename(segTmp, segPath); err != nil {
		return nil, err
	}
	if err := os.Rename(idxTmp, idxPath); err != nil {
		return nil, err
	}
	return newIdx, nil
}

// nextSegmentName picks the next unused monotonic segment number across
// every segment currently named by the manifest (not just the
// candidates), so a compacted segment never collides with the active one.
func (c *Compactor) nextSegmentName(allSegments []string) (string, error) {
	var max uint32
	for _, name := range allSegments {
		n, err := segment.ParseNumber(name)
		if err != nil {
			return "", err
		}
		if n > max {
			max = n
		}
	}
	return segment.Name(max + 1), nil
}
