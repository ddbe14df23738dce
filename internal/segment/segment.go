// Package segment implements append-only segment files: the active
// segment that the single writer appends to, and sealed (immutable)
// segments that are read through a memory-mapped, read-only view.
//
// A segment is named "enso-NNNN.log", numbered monotonically from 0001.
// Records within a segment are strictly in write order; the active
// segment is the only one that grows.
package segment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tysonmote/gommap"

	"github.com/ensodb/enso/internal/ensoerr"
	"github.com/ensodb/enso/internal/record"
)

// Name renders the canonical segment file name for a base-1 sequence number.
func Name(n uint32) string {
	return fmt.Sprintf("enso-%04d.log", n)
}

// Reader is the read path shared by active and sealed segments:
// read the header at an offset, then the declared key/value payload.
type Reader interface {
	ReadAt(offset uint64) (*record.Record, error)
	Close() error
}

// Active wraps the segment file the single writer is currently appending
// to. Every successful Append is followed by a flush.
type Active struct {
	mu   sync.RWMutex
	file *os.File
	buf  *bufio.Writer
	size uint64
	path string
}

// OpenActive opens (creating if necessary) the segment file at path for
// writing and reading.
func OpenActive(path string) (*Active, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ensoerr.Io("open active segment", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ensoerr.Io("stat active segment", err)
	}
	return &Active{
		file: f,
		buf:  bufio.NewWriter(f),
		size: uint64(fi.Size()),
		path: path,
	}, nil
}

// Append writes the encoded record to the end of the segment, flushes,
// and returns the offset at which the record began.
func (a *Active) Append(rec *record.Record) (offset uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := record.Encode(rec)
	pos := a.size
	if _, err := a.buf.Write(buf); err != nil {
		return 0, ensoerr.Io("append record", err)
	}
	if err := a.buf.Flush(); err != nil {
		return 0, ensoerr.Io("flush record", err)
	}
	a.size += uint64(len(buf))
	return pos, nil
}

// Size returns the current, fully-flushed size of the segment in bytes.
func (a *Active) Size() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// ReadAt reads and decodes the record beginning at offset.
func (a *Active) ReadAt(offset uint64) (*record.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	header := make([]byte, record.HeaderLen)
	if _, err := a.file.ReadAt(header, int64(offset)); err != nil {
		return nil, ensoerr.Io("read header", err)
	}
	keyLen, valLen, err := record.HeaderFields(header)
	if err != nil {
		return nil, err
	}
	total := record.HeaderLen + int(keyLen) + int(valLen)
	buf := make([]byte, total)
	copy(buf, header)
	if _, err := a.file.ReadAt(buf[record.HeaderLen:], int64(offset)+record.HeaderLen); err != nil {
		return nil, ensoerr.Io("read payload", err)
	}
	return record.Decode(buf)
}

// Sync flushes the writer buffer and fsyncs the underlying file.
func (a *Active) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.buf.Flush(); err != nil {
		return ensoerr.Io("flush", err)
	}
	return ensoerr.Io("fsync", a.file.Sync())
}

// Close flushes and closes the segment file.
func (a *Active) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.buf.Flush(); err != nil {
		a.file.Close()
		return ensoerr.Io("flush on close", err)
	}
	return ensoerr.Io("close", a.file.Close())
}

// Path returns the segment's file path.
func (a *Active) Path() string { return a.path }

// Sealed is a read-only, memory-mapped view of an immutable segment.
// Segments are never appended to once sealed by rotation or produced by
// compaction, so a whole-file read-only mmap is safe for their lifetime.
type Sealed struct {
	file *os.File
	mm   gommap.MMap
	path string
}

// OpenSealed memory-maps the segment file at path for read-only access.
// An empty file (size 0) maps to a Sealed with a nil mapping; reads
// against it always fail with Corrupt, since there is nothing in it.
func OpenSealed(path string) (*Sealed, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, ensoerr.Io("open sealed segment", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ensoerr.Io("stat sealed segment", err)
	}
	if fi.Size() == 0 {
		return &Sealed{file: f, path: path}, nil
	}
	mm, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, ensoerr.Io("mmap sealed segment", err)
	}
	return &Sealed{file: f, mm: mm, path: path}, nil
}

// ReadAt reads and decodes the record beginning at offset directly out of
// the memory-mapped region, with no extra syscall.
func (s *Sealed) ReadAt(offset uint64) (*record.Record, error) {
	if s.mm == nil || offset+record.HeaderLen > uint64(len(s.mm)) {
		return nil, ensoerr.Corrupt("offset %d out of range for sealed segment %s", offset, s.path)
	}
	header := s.mm[offset : offset+record.HeaderLen]
	keyLen, valLen, err := record.HeaderFields(header)
	if err != nil {
		return nil, err
	}
	end := offset + record.HeaderLen + uint64(keyLen) + uint64(valLen)
	if end > uint64(len(s.mm)) {
		return nil, ensoerr.Corrupt("declared record length runs past end of segment %s", s.path)
	}
	return record.Decode(s.mm[offset:end])
}

func (s *Sealed) Close() error {
	if s.mm != nil {
		if err := s.mm.UnsafeUnmap(); err != nil {
			s.file.Close()
			return ensoerr.Io("unmap sealed segment", err)
		}
	}
	return ensoerr.Io("close sealed segment", s.file.Close())
}

func (s *Sealed) Path() string { return s.path }

// Scan sequentially walks every record in the segment file at path,
// computing each record's offset from cumulative lengths rather than
// trusting any index. It stops at the first byte range that can't hold a
// full record (a crash-truncated tail), which is not itself an error: the
// caller (storage's rebuild scan) simply treats that record as absent.
// fn is called with each fully decoded record and the offset it began at.
func Scan(path string, fn func(offset uint64, rec *record.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return ensoerr.Io("open for scan", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset uint64
	header := make([]byte, record.HeaderLen)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break // EOF or truncated header: end of valid data
		}
		keyLen, valLen, ferr := record.HeaderFields(header)
		if ferr != nil {
			return ferr
		}
		rest := make([]byte, int(keyLen)+int(valLen))
		if _, err := io.ReadFull(r, rest); err != nil {
			break // truncated payload: orphaned, crash-interrupted record
		}

		buf := make([]byte, record.HeaderLen+len(rest))
		copy(buf, header)
		copy(buf[record.HeaderLen:], rest)
		rec, derr := record.Decode(buf)
		if derr != nil {
			return derr
		}
		if err := fn(offset, rec); err != nil {
			return err
		}
		offset += uint64(len(buf))
	}
	return nil
}

// IsSegmentFile reports whether name looks like "enso-NNNN.log".
func IsSegmentFile(name string) bool {
	if filepath.Ext(name) != ".log" {
		return false
	}
	_, err := ParseNumber(name)
	return err == nil
}

// ParseNumber extracts the monotonic numeric suffix from a segment name
// of the form "enso-NNNN.log".
func ParseNumber(name string) (uint32, error) {
	var n uint32
	base := name
	if ext := filepath.Ext(base); ext == ".log" {
		base = base[:len(base)-len(ext)]
	}
	const prefix = "enso-"
	if len(base) <= len(prefix) || base[:len(prefix)] != prefix {
		return 0, ensoerr.Corrupt("segment name %q does not match enso-NNNN.log", name)
	}
	for _, c := range base[len(prefix):] {
		if c < '0' || c > '9' {
			return 0, ensoerr.Corrupt("segment name %q has non-numeric suffix", name)
		}
		n = n*10 + uint32(c-'0')
	}
	return n, nil
}
