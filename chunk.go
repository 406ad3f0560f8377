package chronos

import (
	"fmt"
	"strings"
)

// Chunk size limits in bytes. Chunk sizes must be even and fall within
// [MinChunkSize, MaxChunkSize].
const (
	MinChunkSize = 48
	MaxChunkSize = 1024 * 1024

	// DefaultChunkSize is the target chunk payload size for new series.
	DefaultChunkSize = 4 * 1024

	// sampleSize is the in-memory footprint of one raw sample.
	sampleSize = 16

	// splitFactor is how far past its target size a chunk may grow on
	// upsert before it is split in two.
	splitFactor = 1.2
)

// MaxTimestamp is the highest timestamp accepted by the engine.
const MaxTimestamp int64 = 253402300799

// Encoding selects the physical representation of a chunk.
type Encoding uint8

const (
	// EncodingUncompressed stores raw timestamp and value arrays.
	EncodingUncompressed Encoding = 0
	// EncodingCompressed stores a Gorilla-compressed stream.
	EncodingCompressed Encoding = 1
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingUncompressed:
		return "uncompressed"
	case EncodingCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// ParseEncoding parses an encoding name, case-insensitively.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "uncompressed":
		return EncodingUncompressed, nil
	case "compressed":
		return EncodingCompressed, nil
	default:
		return 0, fmt.Errorf("invalid chunk encoding %q", s)
	}
}

func encodingFromByte(b uint8) (Encoding, error) {
	switch b {
	case 0:
		return EncodingUncompressed, nil
	case 1:
		return EncodingCompressed, nil
	default:
		return 0, fmt.Errorf("invalid chunk encoding byte %d", b)
	}
}

// Chunk is one bounded run of a series' samples, ordered by timestamp.
// Implementations report 0 for FirstTimestamp and LastTimestamp while
// empty.
type Chunk interface {
	Encoding() Encoding
	FirstTimestamp() int64
	LastTimestamp() int64
	NumSamples() int
	LastValue() float64

	// Size is the payload size in bytes; MaxSize the configured cap.
	Size() int
	MaxSize() int

	// AddSample appends a sample whose timestamp is not lower than the
	// current last. Returns errChunkFull at capacity.
	AddSample(s Sample) error

	// UpsertSample inserts or updates a sample anywhere in the chunk,
	// resolving timestamp collisions through policy. Returns how many
	// samples were added (0 on update, 1 on insert).
	UpsertSample(s Sample, policy DuplicatePolicy) (int, error)

	// GetRange returns the samples with start <= timestamp <= end.
	GetRange(start, end int64) ([]Sample, error)

	// RemoveRange deletes the samples with start <= timestamp <= end
	// and returns how many were removed.
	RemoveRange(start, end int64) (int, error)

	// Split moves the upper half of the samples into a returned new
	// chunk of the same encoding and max size.
	Split() (Chunk, error)

	// SetData replaces the chunk contents with the given samples,
	// which must be ordered by timestamp.
	SetData(samples []Sample) error

	Clear()
	Clone() Chunk
}

// NewChunk creates an empty chunk with the given encoding and size cap.
func NewChunk(encoding Encoding, maxSize int) Chunk {
	if encoding == EncodingUncompressed {
		return NewUncompressedChunk(maxSize)
	}
	return NewCompressedChunk(maxSize)
}

// validateChunkSize rejects chunk sizes outside the supported range.
func validateChunkSize(size int) error {
	if size < MinChunkSize || size > MaxChunkSize || size%2 != 0 {
		return fmt.Errorf("chunk size must be a multiple of 2 in the range [%d .. %d], got %d", MinChunkSize, MaxChunkSize, size)
	}
	return nil
}

func chunkOverlaps(c Chunk, start, end int64) bool {
	return c.FirstTimestamp() <= end && c.LastTimestamp() >= start
}

func chunkContainedBy(c Chunk, start, end int64) bool {
	return c.FirstTimestamp() >= start && c.LastTimestamp() <= end
}

// remainingSampleCapacity estimates how many more samples fit in c
// based on its current bytes-per-sample ratio.
func remainingSampleCapacity(c Chunk) int {
	used, total := c.Size(), c.MaxSize()
	if used >= total {
		return 0
	}
	perSample := sampleSize
	if c.Encoding() == EncodingCompressed && c.NumSamples() > 0 {
		perSample = used / c.NumSamples()
		if perSample == 0 {
			perSample = 1
		}
	}
	return (total - used) / perSample
}

// mergeSamples merges two timestamp-ordered runs, resolving collisions
// through policy and dropping samples below minTimestamp. It
// returns the merged run and how many samples of src made it in.
func mergeSamples(dest, src []Sample, minTimestamp int64, policy DuplicatePolicy) ([]Sample, int, error) {
	out := make([]Sample, 0, len(dest)+len(src))
	added := 0
	i, j := 0, 0
	for i < len(dest) && j < len(src) {
		if src[j].Timestamp < minTimestamp {
			j++
			continue
		}
		switch {
		case dest[i].Timestamp < src[j].Timestamp:
			out = append(out, dest[i])
			i++
		case dest[i].Timestamp > src[j].Timestamp:
			out = append(out, src[j])
			added++
			j++
		default:
			v, err := policy.ValueOnDuplicate(src[j].Timestamp, dest[i].Value, src[j].Value)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, Sample{Timestamp: dest[i].Timestamp, Value: v})
			i++
			j++
		}
	}
	out = append(out, dest[i:]...)
	for ; j < len(src); j++ {
		if src[j].Timestamp < minTimestamp {
			continue
		}
		out = append(out, src[j])
		added++
	}
	return out, added, nil
}

// mergeByCapacity absorbs src into dest when dest has room: the whole
// of src if it fits, or a leading slice when dest can take more than a
// quarter of it. Returns how many samples moved and whether any merge
// happened. src is cleared or truncated accordingly.
func mergeByCapacity(dest, src Chunk, minTimestamp int64, policy DuplicatePolicy) (int, bool, error) {
	if src.NumSamples() == 0 {
		return 0, false, nil
	}

	count := src.NumSamples()
	remaining := remainingSampleCapacity(dest)

	if remaining >= count {
		merged, err := mergeChunkRange(dest, src, minTimestamp, policy)
		if err != nil {
			return 0, false, err
		}
		src.Clear()
		return merged, true, nil
	}

	if remaining > count/4 {
		samples, err := src.GetRange(src.FirstTimestamp(), src.LastTimestamp())
		if err != nil {
			return 0, false, err
		}
		if remaining > len(samples) {
			remaining = len(samples)
		}
		merged, err := mergeSamplesInto(dest, samples[:remaining], minTimestamp, policy)
		if err != nil {
			return 0, false, err
		}
		if err := src.SetData(samples[remaining:]); err != nil {
			return 0, false, err
		}
		return merged, true, nil
	}

	return 0, false, nil
}

func mergeChunkRange(dest, src Chunk, minTimestamp int64, policy DuplicatePolicy) (int, error) {
	start := src.FirstTimestamp()
	if minTimestamp > start {
		start = minTimestamp
	}
	samples, err := src.GetRange(start, src.LastTimestamp())
	if err != nil {
		return 0, err
	}
	return mergeSamplesInto(dest, samples, minTimestamp, policy)
}

func mergeSamplesInto(dest Chunk, samples []Sample, minTimestamp int64, policy DuplicatePolicy) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	existing, err := dest.GetRange(dest.FirstTimestamp(), dest.LastTimestamp())
	if err != nil {
		return 0, err
	}
	merged, added, err := mergeSamples(existing, samples, minTimestamp, policy)
	if err != nil {
		return 0, err
	}
	if err := dest.SetData(merged); err != nil {
		return 0, err
	}
	return added, nil
}
