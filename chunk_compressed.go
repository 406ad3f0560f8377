package chronos

import "sort"

// CompressedChunk stores a Gorilla-compressed sample stream. Appends
// extend the stream in place from the encoder's cursor; updates in the
// middle decode and re-encode the whole chunk.
type CompressedChunk struct {
	enc     *XOREncoder
	firstTS int64
	maxSize int
}

// NewCompressedChunk creates an empty chunk capped at maxSize bytes.
func NewCompressedChunk(maxSize int) *CompressedChunk {
	return &CompressedChunk{
		enc:     NewXOREncoder(),
		maxSize: maxSize,
	}
}

// Encoding returns EncodingCompressed.
func (c *CompressedChunk) Encoding() Encoding {
	return EncodingCompressed
}

// FirstTimestamp returns the lowest timestamp, or 0 when empty.
func (c *CompressedChunk) FirstTimestamp() int64 {
	return c.firstTS
}

// LastTimestamp returns the highest timestamp, or 0 when empty.
func (c *CompressedChunk) LastTimestamp() int64 {
	return c.enc.LastTimestamp()
}

// NumSamples returns the number of stored samples.
func (c *CompressedChunk) NumSamples() int {
	return c.enc.NumSamples()
}

// LastValue returns the most recent value, or NaN when empty.
func (c *CompressedChunk) LastValue() float64 {
	return c.enc.LastValue()
}

// Size returns the compressed payload size in bytes.
func (c *CompressedChunk) Size() int {
	return c.enc.BufLen()
}

// MaxSize returns the configured size cap in bytes.
func (c *CompressedChunk) MaxSize() int {
	return c.maxSize
}

func (c *CompressedChunk) isFull() bool {
	return c.Size() >= c.maxSize
}

// AddSample appends a sample, or returns errChunkFull at capacity.
func (c *CompressedChunk) AddSample(s Sample) error {
	if c.isFull() {
		return errChunkFull
	}
	if err := c.enc.Append(s); err != nil {
		return err
	}
	if c.enc.NumSamples() == 1 || s.Timestamp < c.firstTS {
		c.firstTS = s.Timestamp
	}
	return nil
}

// compress replaces the stream with a re-encoding of samples.
func (c *CompressedChunk) compress(samples []Sample) error {
	enc := NewXOREncoder()
	for _, s := range samples {
		if err := enc.Append(s); err != nil {
			return err
		}
	}
	c.enc = enc
	if len(samples) == 0 {
		c.firstTS = 0
	} else {
		c.firstTS = samples[0].Timestamp
	}
	return nil
}

// UpsertSample inserts or updates a sample, re-encoding the stream
// when the timestamp is not past the current tail.
func (c *CompressedChunk) UpsertSample(s Sample, policy DuplicatePolicy) (int, error) {
	if c.enc.NumSamples() == 0 || s.Timestamp > c.LastTimestamp() {
		if err := c.AddSample(s); err != nil {
			return 0, err
		}
		return 1, nil
	}

	samples, err := c.enc.Samples()
	if err != nil {
		return 0, err
	}

	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].Timestamp >= s.Timestamp
	})
	if idx < len(samples) && samples[idx].Timestamp == s.Timestamp {
		v, err := policy.ValueOnDuplicate(s.Timestamp, samples[idx].Value, s.Value)
		if err != nil {
			return 0, err
		}
		samples[idx].Value = v
		return 0, c.compress(samples)
	}

	// Inserts may push the chunk past maxSize; the series splits it
	// once it outgrows the split threshold.
	samples = append(samples, Sample{})
	copy(samples[idx+1:], samples[idx:])
	samples[idx] = s
	return 1, c.compress(samples)
}

// GetRange returns the samples with start <= timestamp <= end.
func (c *CompressedChunk) GetRange(start, end int64) ([]Sample, error) {
	if c.enc.NumSamples() == 0 {
		return nil, nil
	}
	var out []Sample
	it := c.enc.Iter()
	for it.Next() {
		s := it.Sample()
		if s.Timestamp > end {
			break
		}
		if s.Timestamp >= start {
			out = append(out, s)
		}
	}
	return out, it.Err()
}

// RemoveRange deletes the samples with start <= timestamp <= end.
func (c *CompressedChunk) RemoveRange(start, end int64) (int, error) {
	if c.enc.NumSamples() == 0 {
		return 0, nil
	}
	if start <= c.FirstTimestamp() && end >= c.LastTimestamp() {
		removed := c.NumSamples()
		c.Clear()
		return removed, nil
	}

	samples, err := c.enc.Samples()
	if err != nil {
		return 0, err
	}
	kept := samples[:0]
	for _, s := range samples {
		if s.Timestamp < start || s.Timestamp > end {
			kept = append(kept, s)
		}
	}
	removed := len(samples) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, c.compress(kept)
}

// Split moves the upper half of the samples into a new chunk. Both
// halves are re-encoded.
func (c *CompressedChunk) Split() (Chunk, error) {
	right := NewCompressedChunk(c.maxSize)
	if c.enc.NumSamples() == 0 {
		return right, nil
	}

	samples, err := c.enc.Samples()
	if err != nil {
		return nil, err
	}
	mid := len(samples) / 2
	if err := right.compress(samples[mid:]); err != nil {
		return nil, err
	}
	if err := c.compress(samples[:mid]); err != nil {
		return nil, err
	}
	return right, nil
}

// SetData replaces the chunk contents with the given ordered samples.
func (c *CompressedChunk) SetData(samples []Sample) error {
	return c.compress(samples)
}

// Clear removes all samples.
func (c *CompressedChunk) Clear() {
	c.enc.Clear()
	c.firstTS = 0
}

// Clone returns an independent copy of the chunk.
func (c *CompressedChunk) Clone() Chunk {
	return &CompressedChunk{
		enc:     c.enc.Clone(),
		firstTS: c.firstTS,
		maxSize: c.maxSize,
	}
}
