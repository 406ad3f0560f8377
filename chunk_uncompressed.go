package chronos

import (
	"math"
	"sort"
)

// UncompressedChunk stores raw samples in parallel timestamp and value
// arrays. Appends are O(1) and upserts need no re-encoding, at 16
// bytes per sample.
type UncompressedChunk struct {
	maxSize     int
	maxElements int
	timestamps  []int64
	values      []float64
}

// NewUncompressedChunk creates an empty chunk capped at maxSize bytes.
func NewUncompressedChunk(maxSize int) *UncompressedChunk {
	return &UncompressedChunk{
		maxSize:     maxSize,
		maxElements: maxSize / sampleSize,
	}
}

// Encoding returns EncodingUncompressed.
func (c *UncompressedChunk) Encoding() Encoding {
	return EncodingUncompressed
}

// FirstTimestamp returns the lowest timestamp, or 0 when empty.
func (c *UncompressedChunk) FirstTimestamp() int64 {
	if len(c.timestamps) == 0 {
		return 0
	}
	return c.timestamps[0]
}

// LastTimestamp returns the highest timestamp, or 0 when empty.
func (c *UncompressedChunk) LastTimestamp() int64 {
	if len(c.timestamps) == 0 {
		return 0
	}
	return c.timestamps[len(c.timestamps)-1]
}

// NumSamples returns the number of stored samples.
func (c *UncompressedChunk) NumSamples() int {
	return len(c.timestamps)
}

// LastValue returns the most recent value, or NaN when empty.
func (c *UncompressedChunk) LastValue() float64 {
	if len(c.values) == 0 {
		return math.NaN()
	}
	return c.values[len(c.values)-1]
}

// Size returns the payload size in bytes.
func (c *UncompressedChunk) Size() int {
	return len(c.timestamps) * sampleSize
}

// MaxSize returns the configured size cap in bytes.
func (c *UncompressedChunk) MaxSize() int {
	return c.maxSize
}

func (c *UncompressedChunk) isFull() bool {
	return len(c.timestamps) >= c.maxElements
}

// AddSample appends a sample, or returns errChunkFull at capacity.
func (c *UncompressedChunk) AddSample(s Sample) error {
	if c.isFull() {
		return errChunkFull
	}
	c.timestamps = append(c.timestamps, s.Timestamp)
	c.values = append(c.values, s.Value)
	return nil
}

// findTimestamp locates ts, or the insertion point keeping order.
func (c *UncompressedChunk) findTimestamp(ts int64) (int, bool) {
	idx := sort.Search(len(c.timestamps), func(i int) bool {
		return c.timestamps[i] >= ts
	})
	if idx < len(c.timestamps) && c.timestamps[idx] == ts {
		return idx, true
	}
	return idx, false
}

// UpsertSample inserts or updates a sample in timestamp order.
func (c *UncompressedChunk) UpsertSample(s Sample, policy DuplicatePolicy) (int, error) {
	if len(c.timestamps) == 0 || s.Timestamp > c.LastTimestamp() {
		if err := c.AddSample(s); err != nil {
			return 0, err
		}
		return 1, nil
	}

	idx, found := c.findTimestamp(s.Timestamp)
	if found {
		v, err := policy.ValueOnDuplicate(s.Timestamp, c.values[idx], s.Value)
		if err != nil {
			return 0, err
		}
		c.values[idx] = v
		return 0, nil
	}

	c.timestamps = append(c.timestamps, 0)
	copy(c.timestamps[idx+1:], c.timestamps[idx:])
	c.timestamps[idx] = s.Timestamp
	c.values = append(c.values, 0)
	copy(c.values[idx+1:], c.values[idx:])
	c.values[idx] = s.Value
	return 1, nil
}

// rangeBounds returns the index span [i, j) holding timestamps in
// [start, end].
func (c *UncompressedChunk) rangeBounds(start, end int64) (int, int) {
	i := sort.Search(len(c.timestamps), func(k int) bool {
		return c.timestamps[k] >= start
	})
	j := sort.Search(len(c.timestamps), func(k int) bool {
		return c.timestamps[k] > end
	})
	return i, j
}

// GetRange returns the samples with start <= timestamp <= end.
func (c *UncompressedChunk) GetRange(start, end int64) ([]Sample, error) {
	i, j := c.rangeBounds(start, end)
	if i >= j {
		return nil, nil
	}
	out := make([]Sample, 0, j-i)
	for k := i; k < j; k++ {
		out = append(out, Sample{Timestamp: c.timestamps[k], Value: c.values[k]})
	}
	return out, nil
}

// RemoveRange deletes the samples with start <= timestamp <= end.
func (c *UncompressedChunk) RemoveRange(start, end int64) (int, error) {
	i, j := c.rangeBounds(start, end)
	if i >= j {
		return 0, nil
	}
	removed := j - i
	c.timestamps = append(c.timestamps[:i], c.timestamps[j:]...)
	c.values = append(c.values[:i], c.values[j:]...)
	return removed, nil
}

// Split moves the upper half of the samples into a new chunk.
func (c *UncompressedChunk) Split() (Chunk, error) {
	half := len(c.timestamps) / 2
	right := NewUncompressedChunk(c.maxSize)
	right.timestamps = append(right.timestamps, c.timestamps[half:]...)
	right.values = append(right.values, c.values[half:]...)
	c.timestamps = c.timestamps[:half]
	c.values = c.values[:half]
	return right, nil
}

// SetData replaces the chunk contents with the given ordered samples.
func (c *UncompressedChunk) SetData(samples []Sample) error {
	c.timestamps = c.timestamps[:0]
	c.values = c.values[:0]
	for _, s := range samples {
		c.timestamps = append(c.timestamps, s.Timestamp)
		c.values = append(c.values, s.Value)
	}
	return nil
}

// Clear removes all samples.
func (c *UncompressedChunk) Clear() {
	c.timestamps = c.timestamps[:0]
	c.values = c.values[:0]
}

// Clone returns an independent copy of the chunk.
func (c *UncompressedChunk) Clone() Chunk {
	clone := NewUncompressedChunk(c.maxSize)
	clone.timestamps = append(clone.timestamps, c.timestamps...)
	clone.values = append(clone.values, c.values...)
	return clone
}
