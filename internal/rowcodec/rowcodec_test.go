package rowcodec

import "testing"

func TestValueRoundTrip(t *testing.T) {
	cases := []Value{
		NullValue(),
		IntValue(42),
		IntValue(-7),
		FloatValue(3.14159),
		BoolValue(true),
		BoolValue(false),
		StringValue(""),
		StringValue("hello, world"),
	}
	for _, want := range cases {
		got, err := Decode(Encode(want))
		if err != nil {
			t.Fatalf("Decode(Encode(%+v)): %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeEmptyBufferIsParseError(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected a parse error decoding an empty buffer")
	}
}

func TestDecodeTruncatedIntIsParseError(t *testing.T) {
	buf := Encode(IntValue(1))
	if _, err := Decode(buf[:3]); err == nil {
		t.Fatal("expected a parse error decoding a truncated int")
	}
}

func TestDecodeTruncatedStringIsParseError(t *testing.T) {
	buf := Encode(StringValue("abcdef"))
	if _, err := Decode(buf[:len(buf)-2]); err == nil {
		t.Fatal("expected a parse error decoding a truncated string payload")
	}
}

func TestDecodeUnknownTagIsParseError(t *testing.T) {
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected a parse error decoding an unknown tag")
	}
}

func TestRowRoundTrip(t *testing.T) {
	row := Row{IntValue(1), StringValue("alice"), BoolValue(true), NullValue(), FloatValue(2.5)}
	got, err := DecodeRow(EncodeRow(row))
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if len(got) != len(row) {
		t.Fatalf("column count mismatch: got %d want %d", len(got), len(row))
	}
	for i := range row {
		if got[i] != row[i] {
			t.Fatalf("column %d mismatch: got %+v want %+v", i, got[i], row[i])
		}
	}
}

func TestEmptyRowRoundTrip(t *testing.T) {
	got, err := DecodeRow(EncodeRow(Row{}))
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty row, got %+v", got)
	}
}
