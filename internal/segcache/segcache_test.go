package segcache

import (
	"path/filepath"
	"testing"

	"github.com/ensodb/enso/internal/sidx"
)

func TestLookupReadsSidecarOnMiss(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enso-0001.idx")
	f, err := sidx.Open(path)
	if err != nil {
		t.Fatalf("sidx.Open: %v", err)
	}
	if err := f.Append([]byte("k"), 7); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	off, hit, err := c.Lookup("enso-0001.log", path, "k")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !hit || off != 7 {
		t.Fatalf("Lookup(k) = %d, %v, want 7, true", off, hit)
	}
	if !c.Contains("enso-0001.log") {
		t.Fatal("expected segment to be cached after load")
	}
}

func TestEvictionDropsEntryButReloadable(t *testing.T) {
	dir := t.TempDir()
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mk := func(n string) string {
		p := filepath.Join(dir, n)
		f, err := sidx.Open(p)
		if err != nil {
			t.Fatalf("sidx.Open: %v", err)
		}
		if err := f.Append([]byte(n), 1); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		return p
	}

	p1 := mk("enso-0001.idx")
	p2 := mk("enso-0002.idx")

	if err := c.Load("enso-0001.log", p1); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Capacity 1: loading a second segment evicts the first.
	if err := c.Load("enso-0002.log", p2); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Contains("enso-0001.log") {
		t.Fatal("expected enso-0001.log to have been evicted")
	}

	// Reload succeeds from the sidecar file, transparently to the caller.
	off, hit, err := c.Lookup("enso-0001.log", p1, "enso-0001.idx")
	if err != nil {
		t.Fatalf("Lookup after eviction: %v", err)
	}
	if !hit || off != 1 {
		t.Fatalf("reloaded lookup = %d, %v", off, hit)
	}
}

func TestInsertKeyUpdatesCachedIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enso-0001.idx")
	f, err := sidx.Open(path)
	if err != nil {
		t.Fatalf("sidx.Open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.InsertKey("enso-0001.log", path, "a", 42); err != nil {
		t.Fatalf("InsertKey: %v", err)
	}
	off, hit, err := c.Lookup("enso-0001.log", path, "a")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !hit || off != 42 {
		t.Fatalf("Lookup(a) = %d, %v, want 42, true", off, hit)
	}
}

func TestRangeVisitsEveryCachedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enso-0001.idx")
	f, err := sidx.Open(path)
	if err != nil {
		t.Fatalf("sidx.Open: %v", err)
	}
	if err := f.Append([]byte("a"), 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f.Append([]byte("b"), 2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seen := map[string]uint64{}
	if err := c.Range("enso-0001.log", path, func(key string, offset uint64) {
		seen[key] = offset
	}); err != nil {
		t.Fatalf("Range: %v", err)
	}
	if seen["a"] != 1 || seen["b"] != 2 {
		t.Fatalf("Range visited = %v", seen)
	}
}
