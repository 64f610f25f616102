package protocol

import (
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0x3f, 0x40, 0x3fff, 0x4000, 0x3fffffff, 0x40000000, MaxVarInt}

	for _, val := range cases {
		var buf bytes.Buffer
		if err := EncodeVarInt(&buf, val); err != nil {
			t.Fatalf("encode %d: %v", val, err)
		}

		decoded, n, err := DecodeVarInt(buf.Bytes())
		if err != nil {
			t.Fatalf("decode %d: %v", val, err)
		}
		if decoded != val {
			t.Errorf("round trip mismatch: got %d, want %d", decoded, val)
		}
		if n != buf.Len() {
			t.Errorf("consumed %d bytes, expected %d", n, buf.Len())
		}
	}
}

func TestVarIntEncodingLength(t *testing.T) {
	lengths := map[uint64]int{
		0x3f:       1,
		0x40:       2,
		0x3fff:     2,
		0x4000:     4,
		0x3fffffff: 4,
		0x40000000: 8,
	}

	for val, want := range lengths {
		var buf bytes.Buffer
		if err := EncodeVarInt(&buf, val); err != nil {
			t.Fatalf("encode %d: %v", val, err)
		}
		if buf.Len() != want {
			t.Errorf("value %d: encoded length %d, want %d", val, buf.Len(), want)
		}
	}
}

func TestVarIntOverflow(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeVarInt(&buf, MaxVarInt+1); err == nil {
		t.Error("expected error encoding value beyond MaxVarInt")
	}
}

func TestDecodeVarIntTruncated(t *testing.T) {
	cases := [][]byte{
		{},
		{0x40},       // needs 2 bytes
		{0x80, 0, 0}, // needs 4 bytes
		{0xc0, 0, 0, 0, 0, 0, 0}, // needs 8 bytes
	}
	for _, data := range cases {
		if _, _, err := DecodeVarInt(data); err == nil {
			t.Errorf("expected error decoding truncated data %v", data)
		}
	}
}
