package chronos

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/prometheus/model/labels"
)

// Store maps external keys to time series and keeps the label index in
// step with them. All series mutations run under the store lock, which
// gives each series the exclusive access it requires; reads share the
// lock.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	series map[string]*TimeSeries
	index  *LabelIndex
	logger *slog.Logger
	closed bool
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store.
func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:    cfg,
		series: make(map[string]*TimeSeries),
		index:  NewLabelIndex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close marks the store closed. Further mutations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Index exposes the label index for query engines layered above.
func (s *Store) Index() *LabelIndex {
	return s.index
}

// NumSeries returns the number of stored series.
func (s *Store) NumSeries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

// applyDefaults fills unset scalar options from the store defaults.
// Policy and encoding are only overridden when fillAll is set, since
// their zero values (block, uncompressed) are legitimate choices.
func (s *Store) applyDefaults(opts SeriesOptions, fillAll bool) (SeriesOptions, error) {
	defaults, err := s.cfg.seriesOptions()
	if err != nil {
		return opts, err
	}
	if opts.Retention == 0 {
		opts.Retention = defaults.Retention
	}
	if opts.DedupeInterval == 0 {
		opts.DedupeInterval = defaults.DedupeInterval
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.SignificantDigits == 0 {
		opts.SignificantDigits = defaults.SignificantDigits
	}
	if fillAll {
		opts.DuplicatePolicy = defaults.DuplicatePolicy
		opts.Encoding = defaults.Encoding
	}
	return opts, nil
}

// Create registers a new series under key. A key collision, or an
// identical metric name and label set already indexed under another
// key, fails with ErrDuplicateMetric.
func (s *Store) Create(key string, opts SeriesOptions) (*TimeSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if _, ok := s.series[key]; ok {
		return nil, fmt.Errorf("%w: key %q already exists", ErrDuplicateMetric, key)
	}
	return s.createLocked(key, opts, false)
}

func (s *Store) createLocked(key string, opts SeriesOptions, fillAll bool) (*TimeSeries, error) {
	opts, err := s.applyDefaults(opts, fillAll)
	if err != nil {
		return nil, err
	}
	series, err := NewTimeSeries(opts)
	if err != nil {
		return nil, err
	}

	if id, ok := s.findExactSeries(series.Metric, series.Labels); ok {
		return nil, fmt.Errorf("%w: %s is indexed under series %d", ErrDuplicateMetric, series.FullMetricName(), id)
	}

	series.ID = s.index.NextID()
	s.series[key] = series
	s.index.IndexTimeSeries(series, key)

	s.logger.Debug("created series", "key", key, "metric", series.Metric, "id", series.ID)
	return series, nil
}

// findExactSeries looks for a series whose metric name and label set
// equal the given ones.
func (s *Store) findExactSeries(metric string, lbls labels.Labels) (uint64, bool) {
	ids := s.index.SeriesIDsByMetricName(metric)
	for it := ids.Iterator(); it.HasNext(); {
		id := it.Next()
		key, ok := s.index.ExternalKey(id)
		if !ok {
			continue
		}
		other, ok := s.series[key]
		if ok && labels.Equal(other.Labels, lbls) {
			return id, true
		}
	}
	return 0, false
}

// Get returns the series stored under key.
func (s *Store) Get(key string) (*TimeSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSeriesNotFound, key)
	}
	return series, nil
}

// Delete removes the series stored under key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	series, ok := s.series[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, key)
	}
	s.index.RemoveSeries(series)
	delete(s.series, key)
	s.logger.Debug("deleted series", "key", key, "id", series.ID)
	return nil
}

// Add ingests one sample into the series under key, creating the
// series with store defaults if it does not exist yet. The key doubles
// as the metric name for auto-created series.
func (s *Store) Add(key string, ts int64, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	series, ok := s.series[key]
	if !ok {
		var err error
		series, err = s.createLocked(key, SeriesOptions{Metric: key}, true)
		if err != nil {
			return err
		}
	}
	return series.Add(ts, value)
}

// SeriesSample addresses one sample for batch ingestion.
type SeriesSample struct {
	Key       string
	Timestamp int64
	Value     float64
}

// MAdd ingests a batch of samples. The returned slice holds one error
// slot per input sample, nil on success.
func (s *Store) MAdd(samples []SeriesSample) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]error, len(samples))
	for i, sample := range samples {
		if s.closed {
			errs[i] = ErrClosed
			continue
		}
		series, ok := s.series[sample.Key]
		if !ok {
			var err error
			series, err = s.createLocked(sample.Key, SeriesOptions{Metric: sample.Key}, true)
			if err != nil {
				errs[i] = err
				continue
			}
		}
		errs[i] = series.Add(sample.Timestamp, sample.Value)
	}
	return errs
}

// Range returns the samples of the series under key within
// [start, end].
func (s *Store) Range(key string, start, end int64) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSeriesNotFound, key)
	}
	return series.GetRange(start, end)
}

// RemoveRange deletes the samples of the series under key within
// [start, end] and returns how many were removed.
func (s *Store) RemoveRange(key string, start, end int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	series, ok := s.series[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSeriesNotFound, key)
	}
	return series.RemoveRange(start, end)
}

// SeriesResult is one series' contribution to a multi-series query.
type SeriesResult struct {
	Key     string
	Metric  string
	Labels  labels.Labels
	Samples []Sample
}

// Select evaluates matcher groups against the index and returns the
// matching series' samples within [start, end], ordered by key.
// Series with no samples in the range are skipped.
func (s *Store) Select(start, end int64, groups ...[]*Matcher) ([]SeriesResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.index.SeriesIDsByMatchers(groups...)
	results := make([]SeriesResult, 0, ids.GetCardinality())
	for it := ids.Iterator(); it.HasNext(); {
		id := it.Next()
		key, ok := s.index.ExternalKey(id)
		if !ok {
			s.logger.Warn("index id has no key", "id", id)
			continue
		}
		series, ok := s.series[key]
		if !ok || !series.Overlaps(start, end) {
			continue
		}
		samples, err := series.GetRange(start, end)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			// Overlapping bounds do not guarantee samples: the range may
			// fall into a gap left by a removal.
			continue
		}
		results = append(results, SeriesResult{
			Key:     key,
			Metric:  series.Metric,
			Labels:  series.Labels,
			Samples: samples,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// AlterOptions carries the mutable series settings for Alter. Nil
// fields are left unchanged.
type AlterOptions struct {
	Retention       *time.Duration
	DedupeInterval  *time.Duration
	DuplicatePolicy *DuplicatePolicy
	Labels          *labels.Labels
}

// Alter updates a series' retention, dedupe interval, duplicate policy
// or labels, reindexing when the label set changes.
func (s *Store) Alter(key string, opts AlterOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	series, ok := s.series[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, key)
	}

	if opts.Retention != nil {
		series.Retention = *opts.Retention
	}
	if opts.DedupeInterval != nil {
		series.DedupeInterval = *opts.DedupeInterval
	}
	if opts.DuplicatePolicy != nil {
		series.DuplicatePolicy = *opts.DuplicatePolicy
	}
	if opts.Labels != nil && !labels.Equal(*opts.Labels, series.Labels) {
		oldLabels := series.Labels
		series.Labels = *opts.Labels
		s.index.ReindexTimeSeries(series, key, series.Metric, oldLabels)
	}
	return nil
}

// Trim enforces retention across all series and returns the total
// number of evicted samples.
func (s *Store) Trim() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	total := 0
	for key, series := range s.series {
		deleted, err := series.Trim()
		if err != nil {
			return total, fmt.Errorf("trimming %q: %w", key, err)
		}
		total += deleted
	}
	return total, nil
}

// StoreStats summarizes resource usage for host-level accounting.
type StoreStats struct {
	NumSeries   int
	NumSamples  int
	NumLabels   int
	DataSize    int
	MemoryUsage int
}

// Stats reports store-wide resource usage.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		NumSeries: len(s.series),
		NumLabels: s.index.LabelCount(),
	}
	for _, series := range s.series {
		stats.NumSamples += series.NumSamples()
		stats.DataSize += series.DataSize()
		stats.MemoryUsage += series.MemoryUsage()
	}
	return stats
}

// Snapshot serializes every series and writes one snapshot blob under
// snapshotKey.
func (s *Store) Snapshot(ctx context.Context, snapshots *SnapshotStore, snapshotKey string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.series))
	for key := range s.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payload := binary.AppendUvarint(nil, uint64(len(keys)))
	for _, key := range keys {
		payload = appendString(payload, key)
		var err error
		payload, err = s.series[key].AppendBinary(payload)
		if err != nil {
			return newSnapshotError(SnapshotErrorTypeWrite, "serializing series", key, err)
		}
	}

	if err := snapshots.Save(ctx, snapshotKey, payload); err != nil {
		return err
	}
	s.logger.Info("wrote snapshot", "key", snapshotKey, "series", len(keys), "bytes", len(payload))
	return nil
}

// Restore replaces the store contents with the snapshot stored under
// snapshotKey and resumes the id sequence past the highest restored
// identifier.
func (s *Store) Restore(ctx context.Context, snapshots *SnapshotStore, snapshotKey string) error {
	payload, err := snapshots.Load(ctx, snapshotKey)
	if err != nil {
		return err
	}

	r := &snapshotReader{buf: payload}
	count := int(r.uvarint())

	restored := make(map[string]*TimeSeries, count)
	var maxID uint64
	for i := 0; i < count; i++ {
		key := r.str()
		if r.err != nil {
			return r.err
		}
		series := &TimeSeries{}
		if err := series.decodeFrom(r); err != nil {
			return err
		}
		restored[key] = series
		if series.ID > maxID {
			maxID = series.ID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.index.Clear()
	s.series = restored
	for key, series := range restored {
		s.index.IndexTimeSeries(series, key)
	}
	s.index.SetSequence(maxID)

	s.logger.Info("restored snapshot", "key", snapshotKey, "series", len(restored))
	return nil
}
