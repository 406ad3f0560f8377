package encoding

import (
	"errors"

	"github.com/chronos-db/chronos/internal/bits"
)

// ErrVarintOverflow is returned when a varint does not fit in 64 bits.
var ErrVarintOverflow = errors.New("encoding: varint overflows 64 bits")

// WriteUvarint writes v as a Go-style unsigned varint. The bytes go
// through the bit writer so varints can be embedded in bit streams.
func WriteUvarint(bw *bits.Writer, v uint64) {
	for v >= 0x80 {
		bw.WriteBits(v&0x7f|0x80, 8)
		v >>= 7
	}
	bw.WriteBits(v, 8)
}

// ReadUvarint reads a Go-style unsigned varint.
func ReadUvarint(br *bits.Reader) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < 10; i++ {
		b, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == 9 && b > 1 {
				return 0, ErrVarintOverflow
			}
			return x | b<<s, nil
		}
		x |= (b & 0x7f) << s
		s += 7
	}
	return 0, ErrVarintOverflow
}

// WriteVarint writes v as a Go-style zigzag-encoded signed varint.
func WriteVarint(bw *bits.Writer, v int64) {
	ux := uint64(v) << 1
	if v < 0 {
		ux = ^ux
	}
	WriteUvarint(bw, ux)
}

// ReadVarint reads a Go-style zigzag-encoded signed varint.
func ReadVarint(br *bits.Reader) (int64, error) {
	ux, err := ReadUvarint(br)
	if err != nil {
		return 0, err
	}
	v := int64(ux >> 1)
	if ux&1 != 0 {
		v = ^v
	}
	return v, nil
}
