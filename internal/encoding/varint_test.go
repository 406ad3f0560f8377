package encoding

import (
	"math/rand"
	"testing"

	"github.com/chronos-db/chronos/internal/bits"
)

func TestUvarintKnownValues(t *testing.T) {
	tests := []struct {
		value uint64
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{300, []byte{0xac, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		bw := bits.NewWriter()
		WriteUvarint(bw, tt.value)
		got := bw.Padded()
		if len(got) != len(tt.bytes) {
			t.Fatalf("uvarint(%d): got %d bytes, want %d", tt.value, len(got), len(tt.bytes))
		}
		for i := range got {
			if got[i] != tt.bytes[i] {
				t.Errorf("uvarint(%d) byte %d: got %#x, want %#x", tt.value, i, got[i], tt.bytes[i])
			}
		}

		v, err := ReadUvarint(bits.NewReader(tt.bytes))
		if err != nil {
			t.Fatalf("ReadUvarint(%d): %v", tt.value, err)
		}
		if v != tt.value {
			t.Errorf("ReadUvarint: got %d, want %d", v, tt.value)
		}
	}
}

func TestUvarintOverflow(t *testing.T) {
	inputs := [][]byte{
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01},
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x02},
	}
	for _, input := range inputs {
		if _, err := ReadUvarint(bits.NewReader(input)); err != ErrVarintOverflow {
			t.Errorf("ReadUvarint(% x): expected overflow, got %v", input, err)
		}
	}
}

func TestVarintKnownValues(t *testing.T) {
	tests := []struct {
		bytes []byte
		value int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, -1},
		{[]byte{0x02}, 1},
		{[]byte{0x7f}, -64},
		{[]byte{0x80, 0x01}, 64},
		{[]byte{0xff, 0x01}, -128},
		{[]byte{0xac, 0x02}, 150},
		{[]byte{0x80, 0x80, 0x01}, 8192},
		{[]byte{0x81, 0x80, 0x02}, -16385},
	}

	for _, tt := range tests {
		v, err := ReadVarint(bits.NewReader(tt.bytes))
		if err != nil {
			t.Fatalf("ReadVarint(% x): %v", tt.bytes, err)
		}
		if v != tt.value {
			t.Errorf("ReadVarint(% x): got %d, want %d", tt.bytes, v, tt.value)
		}

		bw := bits.NewWriter()
		WriteVarint(bw, tt.value)
		got := bw.Padded()
		for i := range got {
			if got[i] != tt.bytes[i] {
				t.Errorf("WriteVarint(%d): got % x, want % x", tt.value, got, tt.bytes)
				break
			}
		}
	}
}

func TestVarintRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := []int64{0, 1, -1, 63, 64, -64, -65, 1<<62 - 1, -(1 << 62), 1<<63 - 1, -1 << 63}
	for i := 0; i < 200; i++ {
		values = append(values, int64(rng.Uint64()))
	}

	bw := bits.NewWriter()
	for _, v := range values {
		WriteVarint(bw, v)
	}

	br := bits.NewReader(bw.Padded())
	for i, want := range values {
		got, err := ReadVarint(br)
		if err != nil {
			t.Fatalf("value %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("value %d: got %d, want %d", i, got, want)
		}
	}
}
