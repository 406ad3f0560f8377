package chronos

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/prometheus/model/labels"
)

// Serialized series layout: identifier, metric name, label pairs,
// retention seconds, dedupe seconds (0 = none), duplicate policy
// ordinal, encoding ordinal, significant digits (255 = none), target
// chunk size, then each chunk prefixed with its own encoding ordinal.
// Compressed chunks persist the encoder cursor alongside the buffer so
// a restored stream can be appended to in place. Sample counts and
// first/last metadata are not stored; the loader recomputes them from
// the chunks.

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *TimeSeries) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(nil)
}

// AppendBinary serializes the series onto dst.
func (s *TimeSeries) AppendBinary(dst []byte) ([]byte, error) {
	dst = binary.AppendUvarint(dst, s.ID)
	dst = appendString(dst, s.Metric)

	dst = binary.AppendUvarint(dst, uint64(s.Labels.Len()))
	s.Labels.Range(func(l labels.Label) {
		dst = appendString(dst, l.Name)
		dst = appendString(dst, l.Value)
	})

	dst = binary.AppendUvarint(dst, uint64(s.Retention/time.Second))
	dst = binary.AppendUvarint(dst, uint64(s.DedupeInterval/time.Second))
	dst = append(dst, byte(s.DuplicatePolicy), byte(s.Encoding), s.SignificantDigits)
	dst = binary.AppendUvarint(dst, uint64(s.chunkSize))

	dst = binary.AppendUvarint(dst, uint64(len(s.chunks)))
	for _, chunk := range s.chunks {
		var err error
		dst, err = appendChunk(dst, chunk)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func appendChunk(dst []byte, chunk Chunk) ([]byte, error) {
	dst = append(dst, byte(chunk.Encoding()))
	switch c := chunk.(type) {
	case *UncompressedChunk:
		dst = binary.AppendUvarint(dst, uint64(c.maxSize))
		dst = binary.AppendUvarint(dst, uint64(len(c.timestamps)))
		for i, ts := range c.timestamps {
			dst = binary.AppendVarint(dst, ts)
			dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(c.values[i]))
		}
	case *CompressedChunk:
		dst = binary.AppendUvarint(dst, uint64(c.maxSize))
		dst = binary.AppendVarint(dst, c.firstTS)
		dst = c.enc.appendState(dst)
	default:
		return nil, fmt.Errorf("unknown chunk type %T", chunk)
	}
	return dst, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It replaces
// the series contents and recomputes the cached sample metadata from
// the restored chunks.
func (s *TimeSeries) UnmarshalBinary(data []byte) error {
	return s.decodeFrom(&snapshotReader{buf: data})
}

// decodeFrom reads one serialized series from the reader's current
// position, leaving the reader at the byte past it.
func (s *TimeSeries) decodeFrom(r *snapshotReader) error {
	id := r.uvarint()
	metric := r.str()

	labelCount := int(r.uvarint())
	b := labels.NewScratchBuilder(labelCount)
	for i := 0; i < labelCount && r.err == nil; i++ {
		name := r.str()
		value := r.str()
		b.Add(name, value)
	}

	retention := time.Duration(r.uvarint()) * time.Second
	dedupe := time.Duration(r.uvarint()) * time.Second
	policy, err := duplicatePolicyFromByte(r.byte())
	if r.err == nil && err != nil {
		return corrupt("invalid duplicate policy", err)
	}
	enc, err := encodingFromByte(r.byte())
	if r.err == nil && err != nil {
		return corrupt("invalid chunk encoding", err)
	}
	digits := r.byte()
	chunkSize := int(r.uvarint())
	if r.err == nil {
		if err := validateChunkSize(chunkSize); err != nil {
			return corrupt("invalid chunk size", err)
		}
	}

	chunkCount := int(r.uvarint())
	chunks := make([]Chunk, 0, chunkCount)
	for i := 0; i < chunkCount && r.err == nil; i++ {
		chunk, err := readChunk(r)
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)
	}
	if r.err != nil {
		return r.err
	}

	s.ID = id
	s.Metric = metric
	b.Sort()
	s.Labels = b.Labels()
	s.Retention = retention
	s.DedupeInterval = dedupe
	s.DuplicatePolicy = policy
	s.Encoding = enc
	s.SignificantDigits = digits
	s.chunkSize = chunkSize
	s.chunks = chunks
	s.recomputeMeta()
	return nil
}

// recomputeMeta rebuilds the cached totals and first/last sample state
// from the chunks.
func (s *TimeSeries) recomputeMeta() {
	s.totalSamples = 0
	s.firstTimestamp = 0
	s.lastTimestamp = 0
	s.lastValue = math.NaN()

	for _, chunk := range s.chunks {
		n := chunk.NumSamples()
		if n == 0 {
			continue
		}
		s.totalSamples += n
		if s.firstTimestamp == 0 || chunk.FirstTimestamp() < s.firstTimestamp {
			s.firstTimestamp = chunk.FirstTimestamp()
		}
		if chunk.LastTimestamp() >= s.lastTimestamp {
			s.lastTimestamp = chunk.LastTimestamp()
			s.lastValue = chunk.LastValue()
		}
	}
}

func readChunk(r *snapshotReader) (Chunk, error) {
	encByte := r.byte()
	if r.err != nil {
		return nil, r.err
	}
	enc, err := encodingFromByte(encByte)
	if err != nil {
		return nil, corrupt("invalid chunk encoding", err)
	}

	if enc == EncodingUncompressed {
		maxSize := int(r.uvarint())
		count := int(r.uvarint())
		chunk := NewUncompressedChunk(maxSize)
		for i := 0; i < count && r.err == nil; i++ {
			ts := r.varint()
			v := math.Float64frombits(r.uint64())
			chunk.timestamps = append(chunk.timestamps, ts)
			chunk.values = append(chunk.values, v)
		}
		return chunk, r.err
	}

	maxSize := int(r.uvarint())
	firstTS := r.varint()
	enc2, err := readXOREncoderState(r)
	if err != nil {
		return nil, err
	}
	return &CompressedChunk{enc: enc2, firstTS: firstTS, maxSize: maxSize}, nil
}

// readXOREncoderState is the inverse of XOREncoder.appendState.
func readXOREncoderState(r *snapshotReader) (*XOREncoder, error) {
	bufLen := int(r.uvarint())
	buf := r.bytes(bufLen)
	packed := r.uvarint()
	numSamples := int(r.uvarint())
	timestamp := r.varint()
	value := math.Float64frombits(r.uint64())
	leading := r.byte()
	trailing := r.byte()
	tsDelta := r.varint()
	if r.err != nil {
		return nil, r.err
	}

	pending := byte(packed >> 8)
	pendingBits := uint8(packed & 0xff)
	if pendingBits > 7 {
		return nil, corrupt("invalid pending bit count", nil)
	}
	// The buffer aliases the snapshot; copy so later appends do not
	// scribble over it.
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return resumeXOREncoder(owned, pending, pendingBits, numSamples, timestamp, value, leading, trailing, tsDelta), nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func corrupt(message string, cause error) error {
	return newSnapshotError(SnapshotErrorTypeCorruption, message, "", cause)
}

// snapshotReader walks a serialized byte sequence, latching the first
// decode error so call sites can read a whole record before checking.
type snapshotReader struct {
	buf []byte
	off int
	err error
}

func (r *snapshotReader) fail(message string) {
	if r.err == nil {
		r.err = corrupt(message, nil)
	}
}

func (r *snapshotReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail("truncated unsigned varint")
		return 0
	}
	r.off += n
	return v
}

func (r *snapshotReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.fail("truncated signed varint")
		return 0
	}
	r.off += n
	return v
}

func (r *snapshotReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.off >= len(r.buf) {
		r.fail("unexpected end of snapshot")
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *snapshotReader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	if r.off+8 > len(r.buf) {
		r.fail("unexpected end of snapshot")
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *snapshotReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.fail("unexpected end of snapshot")
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *snapshotReader) str() string {
	n := int(r.uvarint())
	return string(r.bytes(n))
}

func (r *snapshotReader) remaining() int {
	return len(r.buf) - r.off
}
