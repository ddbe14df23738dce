// Package rowcodec encodes and decodes the tagged-variant column values
// the SQL layer stores inside the engine's opaque value bytes. It has no
// I/O of its own: it is a pure in-memory collaborator, deliberately blind
// to segments, sidecars, or the manifest.
package rowcodec

import (
	"encoding/binary"
	"math"

	"github.com/ensodb/enso/internal/ensoerr"
)

// Tag identifies the type of an encoded value. It is always the first
// byte of a column's encoding.
type Tag byte

const (
	TagNull Tag = iota
	TagInt
	TagFloat
	TagBool
	TagString
)

// Value is one column value: exactly one of its typed fields is
// meaningful, selected by Tag.
type Value struct {
	Tag Tag
	I   int64
	F   float64
	B   bool
	S   string
}

func NullValue() Value          { return Value{Tag: TagNull} }
func IntValue(v int64) Value    { return Value{Tag: TagInt, I: v} }
func FloatValue(v float64) Value { return Value{Tag: TagFloat, F: v} }
func BoolValue(v bool) Value    { return Value{Tag: TagBool, B: v} }
func StringValue(v string) Value { return Value{Tag: TagString, S: v} }

// IsNull reports whether v holds SQL NULL.
func (v Value) IsNull() bool { return v.Tag == TagNull }

// Encode serializes v as a one-byte tag followed by its payload:
// Int/Float are 8 bytes big-endian, Bool is one byte, String is a
// 4-byte big-endian length prefix followed by its UTF-8 bytes, Null has
// no payload.
func Encode(v Value) []byte {
	switch v.Tag {
	case TagNull:
		return []byte{byte(TagNull)}
	case TagInt:
		buf := make([]byte, 9)
		buf[0] = byte(TagInt)
		binary.BigEndian.PutUint64(buf[1:], uint64(v.I))
		return buf
	case TagFloat:
		buf := make([]byte, 9)
		buf[0] = byte(TagFloat)
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.F))
		return buf
	case TagBool:
		b := byte(0)
		if v.B {
			b = 1
		}
		return []byte{byte(TagBool), b}
	case TagString:
		payload := []byte(v.S)
		buf := make([]byte, 5+len(payload))
		buf[0] = byte(TagString)
		binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
		copy(buf[5:], payload)
		return buf
	default:
		return []byte{byte(TagNull)}
	}
}

// Decode parses a value previously produced by Encode. It returns a
// Parse error (never Corrupt — rowcodec has no notion of segment
// provenance) on a truncated or unrecognized buffer.
func Decode(buf []byte) (Value, error) {
	v, _, err := decodeValue(buf)
	return v, err
}

// decodeValue parses one tag-then-payload value from the front of buf
// and reports how many bytes it consumed, so callers walking a buffer
// of back-to-back values (DecodeRow) know where the next one starts
// without needing their own length prefix.
func decodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ensoerr.Parse("empty value buffer")
	}
	tag := Tag(buf[0])
	rest := buf[1:]

	switch tag {
	case TagNull:
		return NullValue(), 1, nil
	case TagInt:
		if len(rest) < 8 {
			return Value{}, 0, ensoerr.Parse("truncated int value: %d bytes", len(rest))
		}
		return IntValue(int64(binary.BigEndian.Uint64(rest[:8]))), 9, nil
	case TagFloat:
		if len(rest) < 8 {
			return Value{}, 0, ensoerr.Parse("truncated float value: %d bytes", len(rest))
		}
		return FloatValue(math.Float64frombits(binary.BigEndian.Uint64(rest[:8]))), 9, nil
	case TagBool:
		if len(rest) < 1 {
			return Value{}, 0, ensoerr.Parse("truncated bool value")
		}
		return BoolValue(rest[0] != 0), 2, nil
	case TagString:
		if len(rest) < 4 {
			return Value{}, 0, ensoerr.Parse("truncated string length prefix")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		if uint64(len(rest)-4) < uint64(n) {
			return Value{}, 0, ensoerr.Parse("truncated string payload: want %d have %d", n, len(rest)-4)
		}
		return StringValue(string(rest[4 : 4+n])), 5 + int(n), nil
	default:
		return Value{}, 0, ensoerr.Parse("unknown value tag %d", tag)
	}
}

// Row is an ordered tuple of column values, in schema column order.
type Row []Value

// EncodeRow serializes a row as a 2-byte big-endian column count
// followed by each column's Encode output, back to back with no
// further framing: every value is already self-describing via its own
// tag, which fixes the payload size for Int/Float/Bool/Null, plus (for
// String) its declared length.
func EncodeRow(row Row) []byte {
	var total int
	encoded := make([][]byte, len(row))
	for i, v := range row {
		encoded[i] = Encode(v)
		total += len(encoded[i])
	}

	buf := make([]byte, 2+total)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(row)))
	off := 2
	for _, e := range encoded {
		copy(buf[off:], e)
		off += len(e)
	}
	return buf
}

// DecodeRow is the inverse of EncodeRow: it walks the buffer using each
// value's own declared length rather than any row-level length prefix.
func DecodeRow(buf []byte) (Row, error) {
	if len(buf) < 2 {
		return nil, ensoerr.Parse("truncated row column count")
	}
	n := binary.BigEndian.Uint16(buf[0:2])
	off := 2

	row := make(Row, 0, n)
	for i := uint16(0); i < n; i++ {
		v, consumed, err := decodeValue(buf[off:])
		if err != nil {
			return nil, err
		}
		row = append(row, v)
		off += consumed
	}
	return row, nil
}
