package encoding

import (
	"math"
	stdbits "math/bits"

	"github.com/chronos-db/chronos/internal/bits"
)

// InitialLeading marks an encoder that has not written a leading and
// trailing window yet. Pass it to WriteVarbitXOR for the first value
// of a stream.
const InitialLeading uint8 = 0xff

// WriteVarbitXOR writes value XORed against prev, reusing the previous
// leading/trailing window when the new XOR fits inside it. Returns the
// window to carry to the next call.
func WriteVarbitXOR(bw *bits.Writer, value, prev float64, leading, trailing uint8) (uint8, uint8) {
	delta := math.Float64bits(value) ^ math.Float64bits(prev)
	if delta == 0 {
		bw.WriteBit(0)
		return leading, trailing
	}
	bw.WriteBit(1)

	newLeading := uint8(stdbits.LeadingZeros64(delta))
	newTrailing := uint8(stdbits.TrailingZeros64(delta))
	// Only 5 bits are available to store the leading count.
	if newLeading >= 32 {
		newLeading = 31
	}

	if leading != InitialLeading && newLeading >= leading && newTrailing >= trailing {
		bw.WriteBit(0)
		bw.WriteBits(delta>>trailing, 64-int(leading)-int(trailing))
		return leading, trailing
	}

	bw.WriteBit(1)
	bw.WriteBits(uint64(newLeading), 5)
	sigbits := 64 - int(newLeading) - int(newTrailing)
	// 64 significant bits overflow the 6-bit field to 0. That is
	// unambiguous: a zero-bit XOR takes the same-value branch above.
	encoded := sigbits
	if sigbits > 63 {
		encoded = 0
	}
	bw.WriteBits(uint64(encoded), 6)
	bw.WriteBits(delta>>newTrailing, sigbits)
	return newLeading, newTrailing
}

// ReadVarbitXOR reads a value written by WriteVarbitXOR. Pass zero for
// both window counts on the first call of a stream.
func ReadVarbitXOR(br *bits.Reader, prev float64, leading, trailing uint8) (float64, uint8, uint8, error) {
	bit, err := br.ReadBit()
	if err != nil {
		return 0, 0, 0, err
	}
	if bit == 0 {
		return prev, leading, trailing, nil
	}

	newWindow, err := br.ReadBit()
	if err != nil {
		return 0, 0, 0, err
	}

	var sigbits int
	if newWindow == 1 {
		l, err := br.ReadBits(5)
		if err != nil {
			return 0, 0, 0, err
		}
		m, err := br.ReadBits(6)
		if err != nil {
			return 0, 0, 0, err
		}
		leading = uint8(l)
		sigbits = int(m)
		if sigbits == 0 {
			sigbits = 64
		}
		trailing = uint8(64 - int(leading) - sigbits)
	} else {
		sigbits = 64 - int(leading) - int(trailing)
	}

	u, err := br.ReadBits(sigbits)
	if err != nil {
		return 0, 0, 0, err
	}
	value := math.Float64frombits(math.Float64bits(prev) ^ (u << trailing))
	return value, leading, trailing, nil
}
