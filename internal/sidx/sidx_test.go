package sidx

import (
	"path/filepath"
	"testing"
)

func TestAppendThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enso-0001.idx")

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Append([]byte("a"), 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f.Append([]byte("b"), 17); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Overwrite "a" with a later offset; Load must keep the last one.
	if err := f.Append([]byte("a"), 40); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx["a"] != 40 {
		t.Fatalf("idx[a] = %d, want 40 (last write wins)", idx["a"])
	}
	if idx["b"] != 17 {
		t.Fatalf("idx[b] = %d, want 17", idx["b"])
	}
}

func TestLoadMissingFileIsEmptyNotError(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "does-not-exist.idx"))
	if err != nil {
		t.Fatalf("Load of missing sidecar should not error, got %v", err)
	}
	if len(idx) != 0 {
		t.Fatalf("expected empty map, got %v", idx)
	}
}
