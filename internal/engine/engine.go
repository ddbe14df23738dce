// Package engine is the public surface of the storage layer: put, get,
// delete, and scan_prefix, backed by a cache of per-segment in-memory
// indices, a multi-segment lookup path, and a background compaction
// trigger.
package engine

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ensodb/enso/internal/compactor"
	"github.com/ensodb/enso/internal/record"
	"github.com/ensodb/enso/internal/storage"
)

// Config controls the underlying storage and compaction policy.
type Config struct {
	Dir                  string
	SegmentSizeThreshold uint64
	CacheCapacity        int
	RebuildDepth         int
	MaxSegments          int
}

const defaultMaxSegments = 3

// KV is one live key-value pair returned by ScanPrefix.
type KV struct {
	Key   []byte
	Value []byte
}

// Engine is the embeddable key-value store: put/get/delete/scan_prefix
// over segmented, append-only log files.
type Engine struct {
	storage *storage.Storage
	comp    *compactor.Compactor
	log     zerolog.Logger
}

// Open opens (or creates) the engine's data root at cfg.Dir.
func Open(cfg Config) (*Engine, error) {
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = defaultMaxSegments
	}
	st, err := storage.Open(storage.Config{
		Dir:                  cfg.Dir,
		SegmentSizeThreshold: cfg.SegmentSizeThreshold,
		CacheCapacity:        cfg.CacheCapacity,
		RebuildDepth:         cfg.RebuildDepth,
	})
	if err != nil {
		return nil, err
	}

	log := zerolog.New(os.Stderr).With().Str("component", "engine").Logger()
	return &Engine{
		storage: st,
		comp:    compactor.New(st, cfg.MaxSegments, log),
		log:     log,
	}, nil
}

// Put durably writes key -> value, and triggers compaction if the
// segment count now exceeds the configured maximum.
func (e *Engine) Put(key, value []byte) error {
	_, _, err := e.storage.Append(&record.Record{
		Key:       key,
		Value:     value,
		Timestamp: uint64(time.Now().Unix()),
		Tombstone: false,
	})
	if err != nil {
		return err
	}
	e.comp.MaybeCompact()
	return nil
}

// Delete writes a tombstone for key, shadowing all earlier versions. The
// tombstone is itself eventually discarded by compaction.
func (e *Engine) Delete(key []byte) error {
	_, _, err := e.storage.Append(&record.Record{
		Key:       key,
		Value:     nil,
		Timestamp: uint64(time.Now().Unix()),
		Tombstone: true,
	})
	if err != nil {
		return err
	}
	e.comp.MaybeCompact()
	return nil
}

// Get looks up key across segments, newest first, returning (value,
// true, nil) on a live hit, (nil, false, nil) if the key is absent or
// tombstoned, or a non-nil error only on a storage failure.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	segs := e.storage.Segments()
	k := string(key)

	for i := len(segs) - 1; i >= 0; i-- {
		name := segs[i]
		off, hit, err := e.storage.Cache().Lookup(name, e.storage.SidecarPath(name), k)
		if err != nil {
			return nil, false, err
		}
		if !hit {
			continue
		}
		rec, err := e.storage.ReadAt(name, off)
		if err != nil {
			return nil, false, err
		}
		if rec.Tombstone {
			return nil, false, nil
		}
		return rec.Value, true, nil
	}
	return nil, false, nil
}

// locator pins a key's most recent sighting to a specific segment+offset
// while merging SegIndexes newest-first for ScanPrefix.
type locator struct {
	segment string
	offset  uint64
}

// ScanPrefix returns every currently-live key whose bytes start with
// prefix. It merges the SegIndex cache newest-first into a per-key
// latest-sighting map before reading any records, so the set of keys
// considered reflects a single snapshot taken at scan start rather than
// a live, mutating view. Emission order is unspecified.
func (e *Engine) ScanPrefix(prefix []byte) ([]KV, error) {
	segs := e.storage.Segments()
	p := string(prefix)

	latest := make(map[string]locator)
	for i := len(segs) - 1; i >= 0; i-- {
		name := segs[i]
		err := e.storage.Cache().Range(name, e.storage.SidecarPath(name), func(k string, off uint64) {
			if !strings.HasPrefix(k, p) {
				return
			}
			if _, seen := latest[k]; seen {
				return
			}
			latest[k] = locator{segment: name, offset: off}
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]KV, 0, len(latest))
	for k, loc := range latest {
		rec, err := e.storage.ReadAt(loc.segment, loc.offset)
		if err != nil {
			return nil, err
		}
		if rec.Tombstone {
			continue
		}
		out = append(out, KV{Key: []byte(k), Value: rec.Value})
	}
	return out, nil
}

// Close flushes and closes the underlying storage.
func (e *Engine) Close() error {
	return e.storage.Close()
}
