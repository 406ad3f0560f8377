package encoding

import (
	"errors"

	"github.com/chronos-db/chronos/internal/bits"
)

// ErrInvalidBucket is returned for a malformed varbit bucket selector.
var ErrInvalidBucket = errors.New("encoding: invalid varbit bucket")

// WriteVarbitTS writes a timestamp delta-of-delta using the Prometheus
// varbit buckets. A zero costs a single bit; larger magnitudes fall
// into 14, 17, 20 or 64 bit buckets behind a unary selector.
func WriteVarbitTS(bw *bits.Writer, v int64) {
	switch {
	case v == 0:
		bw.WriteBit(0)
	case v >= -8191 && v <= 8192:
		bw.WriteBits(0b10, 2)
		bw.WriteBits(uint64(v)&0x3FFF, 14)
	case v >= -65535 && v <= 65536:
		bw.WriteBits(0b110, 3)
		bw.WriteBits(uint64(v)&0x1FFFF, 17)
	case v >= -524287 && v <= 524288:
		bw.WriteBits(0b1110, 4)
		bw.WriteBits(uint64(v)&0xFFFFF, 20)
	default:
		bw.WriteBits(0b1111, 4)
		bw.WriteBits(uint64(v), 64)
	}
}

// ReadVarbitTS reads a varbit-encoded timestamp delta-of-delta.
func ReadVarbitTS(br *bits.Reader) (int64, error) {
	// Unary bucket selector: up to four 1 bits terminated by a 0.
	// After four 1 bits the terminator is omitted.
	var bucket int
	for i := 0; i < 4; i++ {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		bucket++
	}

	var nbits int
	switch bucket {
	case 0:
		return 0, nil
	case 1:
		nbits = 14
	case 2:
		nbits = 17
	case 3:
		nbits = 20
	case 4:
		nbits = 64
	default:
		return 0, ErrInvalidBucket
	}

	u, err := br.ReadBits(nbits)
	if err != nil {
		return 0, err
	}
	v := int64(u)
	if nbits != 64 && v > 1<<(nbits-1) {
		v -= 1 << nbits
	}
	return v, nil
}
