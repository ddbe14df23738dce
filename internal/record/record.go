// Package record implements the fixed-header binary format for a single
// log entry. Encoding and decoding are purely in-memory; this package
// performs no I/O.
package record

import (
	"encoding/binary"

	"github.com/ensodb/enso/internal/ensoerr"
)

// HeaderLen is the fixed size, in bytes, of a record's header:
// key_len(4) + value_len(4) + timestamp(8) + tombstone(1).
const HeaderLen = 17

var enc = binary.BigEndian

// Record is a single log entry.
type Record struct {
	Key       []byte
	Value     []byte
	Timestamp uint64
	Tombstone bool
}

// Size returns the total encoded size of r.
func (r *Record) Size() int {
	return HeaderLen + len(r.Key) + len(r.Value)
}

// Encode serializes r into its on-disk representation.
func Encode(r *Record) []byte {
	buf := make([]byte, r.Size())
	enc.PutUint32(buf[0:4], uint32(len(r.Key)))
	enc.PutUint32(buf[4:8], uint32(len(r.Value)))
	enc.PutUint64(buf[8:16], r.Timestamp)
	if r.Tombstone {
		buf[16] = 1
	}
	copy(buf[HeaderLen:], r.Key)
	copy(buf[HeaderLen+len(r.Key):], r.Value)
	return buf
}

// Decode parses a record out of buf. It fails with a Corrupt error if buf
// is shorter than the declared header+payload, if the tombstone byte is
// not 0/1, or if key_len/value_len would run past the end of buf.
func Decode(buf []byte) (*Record, error) {
	if len(buf) < HeaderLen {
		return nil, ensoerr.Corrupt("buffer shorter than header: got %d bytes, need %d", len(buf), HeaderLen)
	}

	keyLen := enc.Uint32(buf[0:4])
	valLen := enc.Uint32(buf[4:8])
	ts := enc.Uint64(buf[8:16])
	tb := buf[16]
	if tb != 0 && tb != 1 {
		return nil, ensoerr.Corrupt("tombstone byte is %d, want 0 or 1", tb)
	}

	want := HeaderLen + uint64(keyLen) + uint64(valLen)
	if uint64(len(buf)) < want {
		return nil, ensoerr.Corrupt("declared length %d exceeds buffer of %d bytes", want, len(buf))
	}

	key := make([]byte, keyLen)
	copy(key, buf[HeaderLen:HeaderLen+keyLen])
	val := make([]byte, valLen)
	copy(val, buf[HeaderLen+keyLen:HeaderLen+uint64(keyLen)+uint64(valLen)])

	return &Record{
		Key:       key,
		Value:     val,
		Timestamp: ts,
		Tombstone: tb == 1,
	}, nil
}

// HeaderFields reads just key_len and value_len out of a 17-byte header,
// without decoding key/value payloads. Segment I/O uses this to know how
// many trailing bytes to read before calling Decode.
func HeaderFields(header []byte) (keyLen, valLen uint32, err error) {
	if len(header) < HeaderLen {
		return 0, 0, ensoerr.Corrupt("header shorter than %d bytes", HeaderLen)
	}
	return enc.Uint32(header[0:4]), enc.Uint32(header[4:8]), nil
}
