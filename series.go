package chronos

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/prometheus/model/labels"
)

// SeriesOptions configures a new TimeSeries.
type SeriesOptions struct {
	// Metric is the series name. It may instead be supplied through a
	// __name__ label.
	Metric string
	// Labels are the series labels, excluding the metric name unless it
	// comes in as __name__.
	Labels labels.Labels
	// Retention bounds how far behind the latest sample the series
	// keeps data. Zero keeps everything.
	Retention time.Duration
	// DedupeInterval rejects samples closer than this to the latest
	// timestamp. Zero disables deduplication.
	DedupeInterval time.Duration
	// DuplicatePolicy resolves writes to an existing timestamp.
	DuplicatePolicy DuplicatePolicy
	// Encoding selects the chunk representation for sealed chunks.
	Encoding Encoding
	// ChunkSize is the target chunk payload size in bytes. Zero means
	// DefaultChunkSize.
	ChunkSize int
	// SignificantDigits rounds ingested values to this many significant
	// decimal digits. Use NoSignificantDigits to disable.
	SignificantDigits uint8
}

// NoSignificantDigits disables value rounding.
const NoSignificantDigits uint8 = 255

// TimeSeries holds the samples of one metric as an ordered sequence of
// chunks. The last chunk is the append target; earlier chunks are
// sealed. A TimeSeries is not safe for concurrent use; its owner
// serializes access.
type TimeSeries struct {
	// ID is the index-assigned series identifier.
	ID uint64

	Metric string
	Labels labels.Labels

	Retention         time.Duration
	DedupeInterval    time.Duration
	DuplicatePolicy   DuplicatePolicy
	Encoding          Encoding
	SignificantDigits uint8

	chunkSize int
	chunks    []Chunk

	totalSamples   int
	firstTimestamp int64
	lastTimestamp  int64
	lastValue      float64
}

// NewTimeSeries creates an empty series from options.
func NewTimeSeries(opts SeriesOptions) (*TimeSeries, error) {
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if err := validateChunkSize(chunkSize); err != nil {
		return nil, err
	}

	metric := opts.Metric
	lbls := opts.Labels
	if name := lbls.Get(labels.MetricName); name != "" {
		if metric != "" && metric != name {
			return nil, fmt.Errorf("metric name %q conflicts with __name__ label %q", metric, name)
		}
		metric = name
		b := labels.NewBuilder(lbls)
		b.Del(labels.MetricName)
		lbls = b.Labels()
	}
	if metric == "" {
		return nil, fmt.Errorf("missing metric name")
	}

	digits := opts.SignificantDigits
	if digits == 0 {
		digits = NoSignificantDigits
	}

	return &TimeSeries{
		Metric:            metric,
		Labels:            lbls,
		Retention:         opts.Retention,
		DedupeInterval:    opts.DedupeInterval,
		DuplicatePolicy:   opts.DuplicatePolicy,
		Encoding:          opts.Encoding,
		SignificantDigits: digits,
		chunkSize:         chunkSize,
		lastValue:         math.NaN(),
	}, nil
}

// IsEmpty reports whether the series holds no samples.
func (s *TimeSeries) IsEmpty() bool {
	return s.totalSamples == 0
}

// NumSamples returns the total number of stored samples.
func (s *TimeSeries) NumSamples() int {
	return s.totalSamples
}

// NumChunks returns the number of chunks.
func (s *TimeSeries) NumChunks() int {
	return len(s.chunks)
}

// ChunkSize returns the target chunk payload size in bytes.
func (s *TimeSeries) ChunkSize() int {
	return s.chunkSize
}

// FirstTimestamp returns the oldest stored timestamp, or 0 when empty.
func (s *TimeSeries) FirstTimestamp() int64 {
	return s.firstTimestamp
}

// LastTimestamp returns the newest stored timestamp, or 0 when empty.
func (s *TimeSeries) LastTimestamp() int64 {
	return s.lastTimestamp
}

// LastValue returns the newest stored value, or NaN when empty.
func (s *TimeSeries) LastValue() float64 {
	return s.lastValue
}

// FullMetricName renders the metric with its labels in Prometheus
// format, e.g. `http_requests_total{method="POST",status="500"}`.
func (s *TimeSeries) FullMetricName() string {
	b := labels.NewScratchBuilder(s.Labels.Len() + 1)
	b.Add(labels.MetricName, s.Metric)
	s.Labels.Range(func(l labels.Label) {
		b.Add(l.Name, l.Value)
	})
	b.Sort()
	return b.Labels().String()
}

// Overlaps reports whether the series has samples inside [start, end].
func (s *TimeSeries) Overlaps(start, end int64) bool {
	return !s.IsEmpty() && s.lastTimestamp >= start && s.firstTimestamp <= end
}

// minTimestamp is the lowest timestamp still inside retention.
func (s *TimeSeries) minTimestamp() int64 {
	if s.Retention == 0 {
		return 0
	}
	min := s.lastTimestamp - s.Retention.Milliseconds()
	if min < 0 {
		return 0
	}
	return min
}

// isOlderThanRetention reports whether ts falls outside the retention
// window.
func (s *TimeSeries) isOlderThanRetention(ts int64) bool {
	return ts < s.minTimestamp()
}

func (s *TimeSeries) adjustValue(v float64) float64 {
	if s.SignificantDigits == NoSignificantDigits {
		return v
	}
	return roundToSignificantFigures(v, s.SignificantDigits)
}

// Add ingests a sample using the series duplicate policy.
func (s *TimeSeries) Add(ts int64, value float64) error {
	return s.add(ts, value, s.DuplicatePolicy)
}

// AddWithPolicy ingests a sample, overriding the duplicate policy used
// when the timestamp collides with an existing one.
func (s *TimeSeries) AddWithPolicy(ts int64, value float64, policy DuplicatePolicy) error {
	return s.add(ts, value, policy)
}

func (s *TimeSeries) add(ts int64, value float64, policy DuplicatePolicy) error {
	if s.isOlderThanRetention(ts) {
		return ErrSampleTooOld
	}

	if !s.IsEmpty() {
		if interval := s.DedupeInterval.Milliseconds(); interval > 0 {
			// Only forward deltas inside the interval are rejected: an
			// exact timestamp match goes through duplicate resolution,
			// and older timestamps are backfills.
			delta := ts - s.lastTimestamp
			if delta > 0 && delta < interval {
				return ErrDuplicateSample
			}
		}

		if ts <= s.lastTimestamp {
			_, err := s.upsert(ts, value, policy)
			return err
		}
	}

	return s.appendSample(ts, value)
}

// appendSample adds a sample past the current tail, rolling over to a
// new chunk when the tail chunk is full.
func (s *TimeSeries) appendSample(ts int64, value float64) error {
	value = s.adjustValue(value)
	sample := Sample{Timestamp: ts, Value: value}

	wasEmpty := s.IsEmpty()
	chunk := s.lastChunk()
	if err := chunk.AddSample(sample); err != nil {
		if err != errChunkFull {
			return err
		}
		if err := s.addChunkWithSample(sample); err != nil {
			return err
		}
	}

	if wasEmpty {
		s.firstTimestamp = ts
	}
	s.lastTimestamp = ts
	s.lastValue = value
	s.totalSamples++
	return nil
}

func (s *TimeSeries) lastChunk() Chunk {
	if len(s.chunks) == 0 {
		s.chunks = append(s.chunks, NewUncompressedChunk(s.chunkSize))
	}
	return s.chunks[len(s.chunks)-1]
}

// addChunkWithSample rolls the series over after the tail chunk filled
// up: the tail is merged into its predecessor when that one has room,
// otherwise it is sealed into the configured encoding and a fresh
// append chunk takes its place. The pending sample lands in the new
// tail.
func (s *TimeSeries) addChunkWithSample(sample Sample) error {
	n := len(s.chunks)
	last := s.chunks[n-1]

	if n >= 2 {
		prev := s.chunks[n-2]
		before := last.NumSamples()
		merged, ok, err := mergeByCapacity(prev, last, s.minTimestamp(), s.DuplicatePolicy)
		if err != nil {
			return err
		}
		if ok {
			// Samples dropped in the merge (duplicates, expired) leave
			// the series entirely.
			moved := before - last.NumSamples()
			s.totalSamples -= moved - merged
			return last.AddSample(sample)
		}
	}

	if last.Encoding() == EncodingUncompressed {
		// Seal the tail into the configured encoding, insert it before
		// the tail and reuse the tail as the fresh append chunk.
		samples, err := last.GetRange(last.FirstTimestamp(), last.LastTimestamp())
		if err != nil {
			return err
		}
		sealed := NewChunk(s.Encoding, s.chunkSize)
		if err := sealed.SetData(samples); err != nil {
			return err
		}
		last.Clear()
		s.chunks = append(s.chunks, nil)
		copy(s.chunks[n:], s.chunks[n-1:])
		s.chunks[n-1] = sealed
		return last.AddSample(sample)
	}

	fresh := NewUncompressedChunk(s.chunkSize)
	if err := fresh.AddSample(sample); err != nil {
		return err
	}
	s.chunks = append(s.chunks, fresh)
	return nil
}

// chunkIndex locates the chunk containing ts, or the insertion point
// when ts falls between chunks. Assumes at least one chunk.
func (s *TimeSeries) chunkIndex(ts int64) (int, bool) {
	n := len(s.chunks)
	if ts <= s.chunks[0].FirstTimestamp() {
		return 0, false
	}
	if ts > s.chunks[n-1].LastTimestamp() {
		return n, false
	}
	idx := sort.Search(n, func(i int) bool {
		return s.chunks[i].LastTimestamp() >= ts
	})
	return idx, s.chunks[idx].FirstTimestamp() <= ts
}

// UpsertSample inserts or updates a sample anywhere in the series
// using the series duplicate policy. Returns how many samples were
// added.
func (s *TimeSeries) UpsertSample(ts int64, value float64) (int, error) {
	return s.upsert(ts, value, s.DuplicatePolicy)
}

func (s *TimeSeries) upsert(ts int64, value float64, policy DuplicatePolicy) (int, error) {
	value = s.adjustValue(value)

	// Past the tail this is a plain append; appendSample owns chunk
	// rollover, so a full tail chunk never bubbles up here.
	if s.IsEmpty() || ts > s.lastTimestamp {
		return 1, s.appendSample(ts, value)
	}

	pos, _ := s.chunkIndex(ts)
	if pos >= len(s.chunks) {
		pos = len(s.chunks) - 1
	}
	chunk := s.chunks[pos]

	var added int
	var err error
	if float64(chunk.Size()) > float64(s.chunkSize)*splitFactor {
		// The chunk outgrew its target: split it and land the sample
		// in whichever half owns the timestamp.
		right, splitErr := chunk.Split()
		if splitErr != nil {
			return 0, splitErr
		}
		target := right
		if ts < right.FirstTimestamp() {
			target = chunk
		}
		added, err = target.UpsertSample(Sample{Timestamp: ts, Value: value}, policy)
		if err != nil {
			return 0, err
		}
		insertAt := sort.Search(len(s.chunks), func(i int) bool {
			return s.chunks[i].FirstTimestamp() >= right.FirstTimestamp()
		})
		s.chunks = append(s.chunks, nil)
		copy(s.chunks[insertAt+1:], s.chunks[insertAt:])
		s.chunks[insertAt] = right
	} else {
		added, err = chunk.UpsertSample(Sample{Timestamp: ts, Value: value}, policy)
		if err != nil {
			return 0, err
		}
	}

	s.totalSamples += added
	if ts >= s.lastTimestamp {
		s.lastTimestamp = ts
		s.lastValue = value
	}
	if ts < s.firstTimestamp || s.firstTimestamp == 0 {
		s.firstTimestamp = ts
	}
	return added, nil
}

// GetRange returns the samples with start <= timestamp <= end.
func (s *TimeSeries) GetRange(start, end int64) ([]Sample, error) {
	if s.IsEmpty() || start > end {
		return nil, nil
	}

	var out []Sample
	idx, _ := s.chunkIndex(start)
	if idx >= len(s.chunks) {
		return nil, nil
	}
	for _, chunk := range s.chunks[idx:] {
		if chunk.NumSamples() == 0 || chunk.FirstTimestamp() > end {
			break
		}
		samples, err := chunk.GetRange(start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, samples...)
	}
	return out, nil
}

// SelectRaw appends the samples within [start, end] to the given
// slices and returns them.
func (s *TimeSeries) SelectRaw(start, end int64, timestamps []int64, values []float64) ([]int64, []float64, error) {
	samples, err := s.GetRange(start, end)
	if err != nil {
		return timestamps, values, err
	}
	for _, sample := range samples {
		timestamps = append(timestamps, sample.Timestamp)
		values = append(values, sample.Value)
	}
	return timestamps, values, nil
}

// RemoveRange deletes the samples with start <= timestamp <= end and
// returns how many were removed. Fully covered chunks are dropped
// wholesale, except the sole remaining chunk which is trimmed in
// place.
func (s *TimeSeries) RemoveRange(start, end int64) (int, error) {
	if s.IsEmpty() || start > s.lastTimestamp || end < s.firstTimestamp {
		return 0, nil
	}

	deleted := 0
	var dropIdx []int

	idx, _ := s.chunkIndex(start)
	if idx >= len(s.chunks) {
		idx = len(s.chunks) - 1
	}
	for i := idx; i < len(s.chunks); i++ {
		chunk := s.chunks[i]
		if chunk.NumSamples() == 0 || chunk.FirstTimestamp() > end {
			break
		}

		soleChunk := chunk.NumSamples()+deleted == s.totalSamples
		if chunkContainedBy(chunk, start, end) && !soleChunk {
			deleted += chunk.NumSamples()
			dropIdx = append(dropIdx, i)
			continue
		}
		removed, err := chunk.RemoveRange(start, end)
		if err != nil {
			return deleted, err
		}
		deleted += removed
	}

	for i := len(dropIdx) - 1; i >= 0; i-- {
		k := dropIdx[i]
		s.chunks = append(s.chunks[:k], s.chunks[k+1:]...)
	}

	s.totalSamples -= deleted
	s.recomputeBounds(start, end)
	return deleted, nil
}

// recomputeBounds refreshes the cached first/last sample metadata
// after a deletion touching [start, end].
func (s *TimeSeries) recomputeBounds(start, end int64) {
	if s.totalSamples == 0 {
		s.firstTimestamp = 0
		s.lastTimestamp = 0
		s.lastValue = math.NaN()
		return
	}
	if end >= s.lastTimestamp {
		for i := len(s.chunks) - 1; i >= 0; i-- {
			if s.chunks[i].NumSamples() > 0 {
				s.lastTimestamp = s.chunks[i].LastTimestamp()
				s.lastValue = s.chunks[i].LastValue()
				break
			}
		}
	}
	if start <= s.firstTimestamp {
		for _, chunk := range s.chunks {
			if chunk.NumSamples() > 0 {
				s.firstTimestamp = chunk.FirstTimestamp()
				break
			}
		}
	}
}

// Trim drops the samples that have fallen out of the retention window.
// It is idempotent until new samples move the window.
func (s *TimeSeries) Trim() (int, error) {
	if s.Retention == 0 || s.IsEmpty() {
		return 0, nil
	}

	minTS := s.minTimestamp()
	deleted := 0

	drop := 0
	for _, chunk := range s.chunks {
		if chunk.NumSamples() == 0 || chunk.LastTimestamp() >= minTS {
			break
		}
		deleted += chunk.NumSamples()
		drop++
	}
	if drop > 0 {
		if drop == len(s.chunks) {
			// Keep one chunk allocated as the append target.
			keep := s.chunks[drop-1]
			keep.Clear()
			s.chunks = append(s.chunks[:0], keep)
		} else {
			s.chunks = append(s.chunks[:0], s.chunks[drop:]...)
		}
	}

	// At most one chunk can straddle the retention boundary.
	if len(s.chunks) > 0 {
		head := s.chunks[0]
		if head.NumSamples() > 0 && head.FirstTimestamp() < minTS {
			removed, err := head.RemoveRange(0, minTS-1)
			if err != nil {
				return deleted, err
			}
			deleted += removed
		}
	}

	s.totalSamples -= deleted
	s.recomputeBounds(0, minTS)
	return deleted, nil
}

// DataSize returns the payload bytes across all chunks.
func (s *TimeSeries) DataSize() int {
	total := 0
	for _, chunk := range s.chunks {
		total += chunk.Size()
	}
	return total
}

// MemoryUsage approximates the series' in-memory footprint in bytes.
func (s *TimeSeries) MemoryUsage() int {
	size := 160 + len(s.Metric)
	s.Labels.Range(func(l labels.Label) {
		size += len(l.Name) + len(l.Value) + 32
	})
	for _, chunk := range s.chunks {
		size += chunk.Size() + 64
	}
	return size
}
