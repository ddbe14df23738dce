package record

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Record{
		{Key: []byte("a"), Value: []byte("1"), Timestamp: 1700000000, Tombstone: false},
		{Key: []byte("empty-value"), Value: []byte(""), Timestamp: 1, Tombstone: false},
		{Key: []byte("deleted"), Value: []byte(""), Timestamp: 42, Tombstone: true},
		{Key: []byte{}, Value: []byte("no-key"), Timestamp: 0, Tombstone: false},
	}

	for _, want := range cases {
		buf := Encode(want)
		if len(buf) != want.Size() {
			t.Fatalf("Encode size = %d, want %d", len(buf), want.Size())
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if string(got.Key) != string(want.Key) || string(got.Value) != string(want.Value) ||
			got.Timestamp != want.Timestamp || got.Tombstone != want.Tombstone {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding short buffer")
	}
}

func TestDecodeBadTombstone(t *testing.T) {
	buf := Encode(&Record{Key: []byte("k"), Value: []byte("v")})
	buf[16] = 7
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for invalid tombstone byte")
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	buf := Encode(&Record{Key: []byte("key"), Value: []byte("value")})
	if _, err := Decode(buf[:len(buf)-2]); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
