package segment

import (
	"os"
	"testing"
)

// truncate shrinks the file at path by -delta bytes (delta must be <= 0).
func truncate(t *testing.T, path string, delta int64) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := os.Truncate(path, fi.Size()+delta); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
