package storage

import (
	"os"
	"testing"

	"github.com/ensodb/enso/internal/record"
	"github.com/ensodb/enso/internal/segment"
)

func TestRotationForcedByTinyThreshold(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Dir: dir, SegmentSizeThreshold: 1, CacheCapacity: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for _, kv := range [][2]string{{"k1", "v1"}, {"k2", "v2"}, {"k3", "v3"}} {
		if _, _, err := s.Append(&record.Record{Key: []byte(kv[0]), Value: []byte(kv[1])}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	segs := s.Segments()
	if len(segs) < 3 {
		t.Fatalf("expected at least 3 segments with a per-record rotation threshold, got %v", segs)
	}

	// Monotonic numbering: each segment's parsed suffix strictly increases.
	var prev uint32
	for i, name := range segs {
		n, err := segment.ParseNumber(name)
		if err != nil {
			t.Fatalf("ParseNumber(%q): %v", name, err)
		}
		if i > 0 && n <= prev {
			t.Fatalf("segment numbering not monotonic: %v", segs)
		}
		prev = n
	}
}

func TestActiveSegmentSidecarCreatedEagerlyAtRotation(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Dir: dir, SegmentSizeThreshold: 1, CacheCapacity: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, _, err := s.Append(&record.Record{Key: []byte("a"), Value: []byte("1")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	active := s.ActiveSegmentName()
	if _, err := os.Stat(s.SidecarPath(active)); err != nil {
		t.Fatalf("expected sidecar for rotated-to active segment to exist eagerly: %v", err)
	}
}

func TestReopenRebuildsManifestAndCache(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Dir: dir, SegmentSizeThreshold: 1, CacheCapacity: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Append(&record.Record{Key: []byte("a"), Value: []byte("1")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{Dir: dir, SegmentSizeThreshold: 1, CacheCapacity: 4})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if len(s2.Segments()) == 0 {
		t.Fatal("expected segments to survive reopen")
	}
}
