package chronos

import (
	"encoding/binary"
	"math"

	"github.com/chronos-db/chronos/internal/bits"
	"github.com/chronos-db/chronos/internal/encoding"
)

// XOREncoder compresses an ascending stream of samples using
// delta-of-delta timestamps and XOR-encoded values. Appends never
// re-read the stream: the encoder carries the full cursor state, which
// is persisted alongside the buffer so a stream can be reopened and
// extended in place.
type XOREncoder struct {
	bw         *bits.Writer
	numSamples int
	timestamp  int64
	value      float64
	leading    uint8
	trailing   uint8
	tsDelta    int64
}

// NewXOREncoder creates an empty encoder.
func NewXOREncoder() *XOREncoder {
	return &XOREncoder{bw: bits.NewWriter(), value: math.NaN()}
}

// resumeXOREncoder rebuilds an encoder from persisted cursor state.
func resumeXOREncoder(buf []byte, pending byte, pendingBits uint8, numSamples int, timestamp int64, value float64, leading, trailing uint8, tsDelta int64) *XOREncoder {
	return &XOREncoder{
		bw:         bits.Resume(buf, pending, pendingBits),
		numSamples: numSamples,
		timestamp:  timestamp,
		value:      value,
		leading:    leading,
		trailing:   trailing,
		tsDelta:    tsDelta,
	}
}

// NumSamples returns the number of samples in the stream.
func (e *XOREncoder) NumSamples() int {
	return e.numSamples
}

// LastTimestamp returns the timestamp of the most recent sample, or 0
// for an empty stream.
func (e *XOREncoder) LastTimestamp() int64 {
	return e.timestamp
}

// LastValue returns the value of the most recent sample, or NaN for an
// empty stream.
func (e *XOREncoder) LastValue() float64 {
	if e.numSamples == 0 {
		return math.NaN()
	}
	return e.value
}

// BufLen returns the number of complete bytes in the stream.
func (e *XOREncoder) BufLen() int {
	return e.bw.Len()
}

// Append adds a sample to the stream. The timestamp must not be lower
// than the last appended one.
func (e *XOREncoder) Append(s Sample) error {
	switch e.numSamples {
	case 0:
		return e.appendFirst(s)
	case 1:
		return e.appendSecond(s)
	default:
		return e.appendNth(s)
	}
}

func (e *XOREncoder) appendFirst(s Sample) error {
	encoding.WriteVarint(e.bw, s.Timestamp)
	e.bw.WriteBits(math.Float64bits(s.Value), 64)

	e.timestamp = s.Timestamp
	e.value = s.Value
	e.numSamples++
	return nil
}

func (e *XOREncoder) appendSecond(s Sample) error {
	tsDelta := s.Timestamp - e.timestamp
	if tsDelta < 0 {
		return ErrSampleOutOfOrder
	}

	encoding.WriteUvarint(e.bw, uint64(tsDelta))
	e.leading, e.trailing = encoding.WriteVarbitXOR(e.bw, s.Value, e.value, encoding.InitialLeading, 0)

	e.timestamp = s.Timestamp
	e.value = s.Value
	e.tsDelta = tsDelta
	e.numSamples++
	return nil
}

func (e *XOREncoder) appendNth(s Sample) error {
	tsDelta := s.Timestamp - e.timestamp
	if tsDelta < 0 {
		return ErrSampleOutOfOrder
	}

	encoding.WriteVarbitTS(e.bw, tsDelta-e.tsDelta)
	e.leading, e.trailing = encoding.WriteVarbitXOR(e.bw, s.Value, e.value, e.leading, e.trailing)

	e.timestamp = s.Timestamp
	e.value = s.Value
	e.tsDelta = tsDelta
	e.numSamples++
	return nil
}

// Clear resets the encoder to an empty stream, keeping the buffer.
func (e *XOREncoder) Clear() {
	e.bw.Reset()
	e.numSamples = 0
	e.timestamp = 0
	e.value = math.NaN()
	e.leading = 0
	e.trailing = 0
	e.tsDelta = 0
}

// Clone returns an independent copy of the encoder.
func (e *XOREncoder) Clone() *XOREncoder {
	clone := *e
	clone.bw = e.bw.Clone()
	return &clone
}

// Iter returns an iterator over the stream's samples.
func (e *XOREncoder) Iter() *XORIterator {
	return newXORIterator(e)
}

// Samples decodes the whole stream.
func (e *XOREncoder) Samples() ([]Sample, error) {
	out := make([]Sample, 0, e.numSamples)
	it := e.Iter()
	for it.Next() {
		out = append(out, it.Sample())
	}
	return out, it.Err()
}

// appendState persists the encoder cursor after the buffer: pending
// bits packed into one uint64 (value<<8 | count), sample count, last
// timestamp, last value, window widths, last timestamp delta.
func (e *XOREncoder) appendState(dst []byte) []byte {
	buf := e.bw.Bytes()
	dst = binary.AppendUvarint(dst, uint64(len(buf)))
	dst = append(dst, buf...)

	pending, pendingBits := e.bw.Pending()
	dst = binary.AppendUvarint(dst, uint64(pending)<<8|uint64(pendingBits))
	dst = binary.AppendUvarint(dst, uint64(e.numSamples))
	dst = binary.AppendVarint(dst, e.timestamp)
	dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(e.value))
	dst = append(dst, e.leading, e.trailing)
	dst = binary.AppendVarint(dst, e.tsDelta)
	return dst
}

// XORIterator replays a compressed stream sample by sample. The final
// sample is served from the encoder's cached cursor because its bits
// may still sit in the unflushed partial byte.
type XORIterator struct {
	br         *bits.Reader
	idx        int
	numSamples int
	timestamp  int64
	value      float64
	leading    uint8
	trailing   uint8
	tsDelta    int64
	lastTS     int64
	lastValue  float64
	err        error
}

func newXORIterator(e *XOREncoder) *XORIterator {
	// Padded, not Bytes: with short encodings (dod 0 + repeated value is
	// two bits) the partial byte can hold bits of samples before the
	// final one.
	return &XORIterator{
		br:         bits.NewReader(e.bw.Padded()),
		numSamples: e.numSamples,
		lastTS:     e.timestamp,
		lastValue:  e.value,
	}
}

// Next advances to the next sample. It returns false at the end of the
// stream or on a decoding error; check Err afterwards.
func (it *XORIterator) Next() bool {
	if it.err != nil || it.idx >= it.numSamples {
		return false
	}
	if it.idx == it.numSamples-1 {
		it.timestamp = it.lastTS
		it.value = it.lastValue
		it.idx++
		return true
	}
	switch it.idx {
	case 0:
		it.err = it.readFirst()
	case 1:
		it.err = it.readSecond()
	default:
		it.err = it.readNth()
	}
	if it.err != nil {
		it.err = newSnapshotError(SnapshotErrorTypeCorruption, "decoding compressed stream", "", it.err)
		return false
	}
	it.idx++
	return true
}

// Sample returns the sample the iterator currently points at.
func (it *XORIterator) Sample() Sample {
	return Sample{Timestamp: it.timestamp, Value: it.value}
}

// Err returns the first decoding error encountered, if any.
func (it *XORIterator) Err() error {
	return it.err
}

func (it *XORIterator) readFirst() error {
	ts, err := encoding.ReadVarint(it.br)
	if err != nil {
		return err
	}
	v, err := it.br.ReadBits(64)
	if err != nil {
		return err
	}
	it.timestamp = ts
	it.value = math.Float64frombits(v)
	return nil
}

func (it *XORIterator) readSecond() error {
	tsDelta, err := encoding.ReadUvarint(it.br)
	if err != nil {
		return err
	}
	value, leading, trailing, err := encoding.ReadVarbitXOR(it.br, it.value, it.leading, it.trailing)
	if err != nil {
		return err
	}
	it.tsDelta = int64(tsDelta)
	it.timestamp += it.tsDelta
	it.value = value
	it.leading = leading
	it.trailing = trailing
	return nil
}

func (it *XORIterator) readNth() error {
	dod, err := encoding.ReadVarbitTS(it.br)
	if err != nil {
		return err
	}
	value, leading, trailing, err := encoding.ReadVarbitXOR(it.br, it.value, it.leading, it.trailing)
	if err != nil {
		return err
	}
	it.tsDelta += dod
	it.timestamp += it.tsDelta
	it.value = value
	it.leading = leading
	it.trailing = trailing
	return nil
}
