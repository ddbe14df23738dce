// Package sidx implements the sidecar index file for a segment: an
// append-only log of (key, offset) triples written after each successful
// record append into the corresponding segment.
package sidx

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/ensodb/enso/internal/ensoerr"
)

var enc = binary.BigEndian

// File is the append-only sidecar index for one segment.
type File struct {
	file *os.File
	buf  *bufio.Writer
	path string
}

// Open creates (if necessary) and opens the sidecar index at path for
// appending.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ensoerr.Io("open sidecar index", err)
	}
	return &File{file: f, buf: bufio.NewWriter(f), path: path}, nil
}

// Append writes one (key, offset) triple and flushes it.
//
// Format: key_len(u32 BE), key bytes, offset(u64 BE).
func (f *File) Append(key []byte, offset uint64) error {
	header := make([]byte, 4)
	enc.PutUint32(header, uint32(len(key)))
	if _, err := f.buf.Write(header); err != nil {
		return ensoerr.Io("write sidecar key_len", err)
	}
	if _, err := f.buf.Write(key); err != nil {
		return ensoerr.Io("write sidecar key", err)
	}
	off := make([]byte, 8)
	enc.PutUint64(off, offset)
	if _, err := f.buf.Write(off); err != nil {
		return ensoerr.Io("write sidecar offset", err)
	}
	return ensoerr.Io("flush sidecar", f.buf.Flush())
}

// Sync flushes the writer buffer and fsyncs the underlying file, without
// closing it. The compactor uses this to durably land a freshly built
// sidecar before renaming it into place.
func (f *File) Sync() error {
	if err := f.buf.Flush(); err != nil {
		return ensoerr.Io("flush sidecar", err)
	}
	return ensoerr.Io("fsync sidecar", f.file.Sync())
}

func (f *File) Close() error {
	if err := f.buf.Flush(); err != nil {
		f.file.Close()
		return ensoerr.Io("flush sidecar on close", err)
	}
	return ensoerr.Io("close sidecar", f.file.Close())
}

func (f *File) Path() string { return f.path }

// Load scans the sidecar index at path sequentially into a SegIndex map,
// where later entries for a key overwrite earlier ones. The absence of
// the file at path is not an error: it yields an empty map, matching a
// freshly created segment that hasn't had any writes indexed yet.
func Load(path string) (map[string]uint64, error) {
	idx := make(map[string]uint64)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, ensoerr.Io("open sidecar for load", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break // EOF: end of valid entries
		}
		keyLen := enc.Uint32(header)
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			break // truncated entry: crash between key and offset
		}
		offBuf := make([]byte, 8)
		if _, err := io.ReadFull(r, offBuf); err != nil {
			break
		}
		idx[string(key)] = enc.Uint64(offBuf)
	}
	return idx, nil
}
