// Package bits provides bit-level I/O for the compression codecs.
// Streams are written most significant bit first.
package bits

import "errors"

// ErrOutOfBits is returned when a read runs past the end of the stream.
var ErrOutOfBits = errors.New("bits: out of bits")

// Writer appends individual bits to a byte buffer. The partial byte
// being assembled is observable through Pending so an encoder can be
// persisted mid-byte and resumed later.
type Writer struct {
	buf   []byte
	curr  byte
	nbits uint8
}

// NewWriter creates an empty bit writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Resume reconstructs a writer from a persisted buffer and
// partial-byte cursor. curr holds nbits bits in its low positions.
func Resume(buf []byte, curr byte, nbits uint8) *Writer {
	return &Writer{buf: buf, curr: curr, nbits: nbits % 8}
}

// WriteBit writes a single bit.
func (w *Writer) WriteBit(bit uint8) {
	w.curr = (w.curr << 1) | (bit & 1)
	w.nbits++
	if w.nbits == 8 {
		w.buf = append(w.buf, w.curr)
		w.curr = 0
		w.nbits = 0
	}
}

// WriteBits writes the low n bits of value, most significant first.
func (w *Writer) WriteBits(value uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(uint8((value >> uint(i)) & 1))
	}
}

// Len returns the number of complete bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// BitLen returns the total number of bits written.
func (w *Writer) BitLen() int {
	return len(w.buf)*8 + int(w.nbits)
}

// Bytes returns the complete bytes written so far, excluding any
// partial byte. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Padded returns the stream with the partial byte flushed into a final
// zero-padded byte. The writer is not modified, so appending may
// continue afterwards.
func (w *Writer) Padded() []byte {
	if w.nbits == 0 {
		return w.buf
	}
	out := make([]byte, len(w.buf)+1)
	copy(out, w.buf)
	out[len(w.buf)] = w.curr << (8 - w.nbits)
	return out
}

// Pending returns the partial-byte cursor: the bits accumulated beyond
// the last complete byte and their count.
func (w *Writer) Pending() (curr byte, nbits uint8) {
	return w.curr, w.nbits
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.curr = 0
	w.nbits = 0
}

// Clone returns an independent copy of the writer.
func (w *Writer) Clone() *Writer {
	buf := make([]byte, len(w.buf))
	copy(buf, w.buf)
	return &Writer{buf: buf, curr: w.curr, nbits: w.nbits}
}

// Reader consumes bits from a byte buffer in Writer's bit order.
type Reader struct {
	buf   []byte
	index int
	curr  byte
	nbits uint8
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (uint8, error) {
	if r.nbits == 0 {
		if r.index >= len(r.buf) {
			return 0, ErrOutOfBits
		}
		r.curr = r.buf[r.index]
		r.index++
		r.nbits = 8
	}

	bit := (r.curr >> 7) & 1
	r.curr <<= 1
	r.nbits--
	return bit, nil
}

// ReadBits reads n bits into the low positions of the result.
func (r *Reader) ReadBits(n int) (uint64, error) {
	var out uint64
	for i := 0; i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		out = (out << 1) | uint64(bit)
	}
	return out, nil
}
