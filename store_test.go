package chronos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/prometheus/model/labels"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(DefaultConfig())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreCreateGetDelete(t *testing.T) {
	store := newTestStore(t)

	series, err := store.Create("cpu:host1", SeriesOptions{
		Metric: "cpu_usage",
		Labels: labels.FromStrings("host", "host1"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if series.ID != 1 {
		t.Errorf("ID = %d, want 1", series.ID)
	}

	got, err := store.Get("cpu:host1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != series {
		t.Error("Get returned a different series")
	}
	if store.NumSeries() != 1 {
		t.Errorf("NumSeries = %d, want 1", store.NumSeries())
	}

	if err := store.Delete("cpu:host1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("cpu:host1"); !errors.Is(err, ErrSeriesNotFound) {
		t.Errorf("Get after delete = %v, want ErrSeriesNotFound", err)
	}
	if err := store.Delete("cpu:host1"); !errors.Is(err, ErrSeriesNotFound) {
		t.Errorf("second Delete = %v, want ErrSeriesNotFound", err)
	}
	if store.Index().SeriesCount() != 0 {
		t.Errorf("index still holds %d series", store.Index().SeriesCount())
	}
}

func TestStoreCreateDuplicates(t *testing.T) {
	store := newTestStore(t)

	opts := SeriesOptions{
		Metric: "cpu_usage",
		Labels: labels.FromStrings("host", "host1"),
	}
	if _, err := store.Create("cpu:host1", opts); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Same key.
	if _, err := store.Create("cpu:host1", SeriesOptions{Metric: "other"}); !errors.Is(err, ErrDuplicateMetric) {
		t.Errorf("same key = %v, want ErrDuplicateMetric", err)
	}
	// Different key, identical metric and labels.
	if _, err := store.Create("cpu:alias", opts); !errors.Is(err, ErrDuplicateMetric) {
		t.Errorf("same metric+labels = %v, want ErrDuplicateMetric", err)
	}
	// Same metric, different labels is fine.
	if _, err := store.Create("cpu:host2", SeriesOptions{
		Metric: "cpu_usage",
		Labels: labels.FromStrings("host", "host2"),
	}); err != nil {
		t.Errorf("same metric, new labels: %v", err)
	}
}

func TestStoreCreateDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Series.Retention = Duration(time.Hour)
	cfg.Series.ChunkSize = 1024
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	series, err := store.Create("mem", SeriesOptions{Metric: "mem_used"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if series.Retention != time.Hour {
		t.Errorf("Retention = %v, want 1h", series.Retention)
	}
	if series.ChunkSize() != 1024 {
		t.Errorf("ChunkSize = %d, want 1024", series.ChunkSize())
	}
	// Policy and encoding keep their zero values on explicit creation.
	if series.DuplicatePolicy != DuplicatePolicyBlock {
		t.Errorf("DuplicatePolicy = %v, want block", series.DuplicatePolicy)
	}
	if series.Encoding != EncodingUncompressed {
		t.Errorf("Encoding = %v, want uncompressed", series.Encoding)
	}
}

func TestStoreAddAutoCreate(t *testing.T) {
	store := newTestStore(t)

	if err := store.Add("requests_total", 1000, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	series, err := store.Get("requests_total")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if series.Metric != "requests_total" {
		t.Errorf("Metric = %q, want key as metric", series.Metric)
	}
	// Auto-created series pick up the configured policy and encoding.
	if series.DuplicatePolicy != DuplicatePolicyLast {
		t.Errorf("DuplicatePolicy = %v, want last", series.DuplicatePolicy)
	}
	if series.Encoding != EncodingCompressed {
		t.Errorf("Encoding = %v, want compressed", series.Encoding)
	}

	if err := store.Add("requests_total", 2000, 2); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if series.NumSamples() != 2 {
		t.Errorf("NumSamples = %d, want 2", series.NumSamples())
	}
}

func TestStoreMAdd(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("cpu", SeriesOptions{
		Metric:          "cpu",
		DuplicatePolicy: DuplicatePolicyBlock,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	errs := store.MAdd([]SeriesSample{
		{Key: "cpu", Timestamp: 1000, Value: 1},
		{Key: "mem", Timestamp: 1000, Value: 2},
		{Key: "cpu", Timestamp: 1000, Value: 3},
		{Key: "cpu", Timestamp: 2000, Value: 4},
	})
	if len(errs) != 4 {
		t.Fatalf("len(errs) = %d, want 4", len(errs))
	}
	if errs[0] != nil || errs[1] != nil || errs[3] != nil {
		t.Errorf("unexpected errors: %v", errs)
	}
	if !errors.Is(errs[2], ErrDuplicateSample) {
		t.Errorf("errs[2] = %v, want ErrDuplicateSample", errs[2])
	}
	if store.NumSeries() != 2 {
		t.Errorf("NumSeries = %d, want 2", store.NumSeries())
	}
}

func TestStoreRangeAndRemoveRange(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 100; i++ {
		if err := store.Add("cpu", int64(1000*(i+1)), float64(i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	samples, err := store.Range("cpu", 10000, 20000)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(samples) != 11 {
		t.Errorf("len(samples) = %d, want 11", len(samples))
	}

	deleted, err := store.RemoveRange("cpu", 10000, 20000)
	if err != nil {
		t.Fatalf("RemoveRange: %v", err)
	}
	if deleted != 11 {
		t.Errorf("deleted = %d, want 11", deleted)
	}

	if _, err := store.Range("unknown", 0, MaxTimestamp); !errors.Is(err, ErrSeriesNotFound) {
		t.Errorf("Range unknown = %v, want ErrSeriesNotFound", err)
	}
}

func TestStoreSelect(t *testing.T) {
	store := newTestStore(t)

	seed := []struct {
		key  string
		host string
		env  string
	}{
		{"cpu:b", "b1", "prod"},
		{"cpu:a", "a1", "prod"},
		{"cpu:c", "c1", "staging"},
	}
	for i, s := range seed {
		if _, err := store.Create(s.key, SeriesOptions{
			Metric: "cpu_usage",
			Labels: labels.FromStrings("host", s.host, "env", s.env),
		}); err != nil {
			t.Fatalf("Create %s: %v", s.key, err)
		}
		if err := store.Add(s.key, int64(1000+i), float64(i)); err != nil {
			t.Fatalf("Add %s: %v", s.key, err)
		}
	}

	results, err := store.Select(0, MaxTimestamp,
		[]*Matcher{
			MustMatcher(MatchEqual, labels.MetricName, "cpu_usage"),
			MustMatcher(MatchEqual, "env", "prod"),
		})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	// Ordered by key.
	if results[0].Key != "cpu:a" || results[1].Key != "cpu:b" {
		t.Errorf("keys = %s, %s, want cpu:a, cpu:b", results[0].Key, results[1].Key)
	}
	if len(results[0].Samples) != 1 {
		t.Errorf("len(samples) = %d, want 1", len(results[0].Samples))
	}

	// A range past all samples yields nothing.
	results, err = store.Select(10_000, 20_000,
		[]*Matcher{MustMatcher(MatchEqual, labels.MetricName, "cpu_usage")})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestStoreAlter(t *testing.T) {
	store := newTestStore(t)
	series, err := store.Create("cpu", SeriesOptions{
		Metric: "cpu_usage",
		Labels: labels.FromStrings("host", "h1"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	retention := 2 * time.Hour
	policy := DuplicatePolicyMax
	newLabels := labels.FromStrings("host", "h1", "env", "prod")
	if err := store.Alter("cpu", AlterOptions{
		Retention:       &retention,
		DuplicatePolicy: &policy,
		Labels:          &newLabels,
	}); err != nil {
		t.Fatalf("Alter: %v", err)
	}

	if series.Retention != retention {
		t.Errorf("Retention = %v, want %v", series.Retention, retention)
	}
	if series.DuplicatePolicy != DuplicatePolicyMax {
		t.Errorf("DuplicatePolicy = %v, want max", series.DuplicatePolicy)
	}

	// The index follows the label change.
	ids := store.Index().SeriesIDsByLabelValue("env", "prod")
	if !ids.Contains(series.ID) {
		t.Error("series not indexed under new label")
	}
	if values := store.Index().LabelValues("env"); len(values) != 1 || values[0] != "prod" {
		t.Errorf("LabelValues(env) = %v", values)
	}
}

func TestStoreTrim(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("cpu", SeriesOptions{
		Metric:    "cpu",
		Retention: 50 * time.Second,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := store.Add("cpu", int64(1000*(i+1)), float64(i)); err != nil && !errors.Is(err, ErrSampleTooOld) {
			t.Fatalf("Add: %v", err)
		}
	}

	deleted, err := store.Trim()
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if deleted == 0 {
		t.Error("Trim removed nothing")
	}
	series, _ := store.Get("cpu")
	if got := series.FirstTimestamp(); got < 100000-50000 {
		t.Errorf("FirstTimestamp = %d, want >= 50000", got)
	}
}

func TestStoreStats(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("cpu", SeriesOptions{
		Metric: "cpu_usage",
		Labels: labels.FromStrings("host", "h1"),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := store.Add("cpu", int64(1000*(i+1)), float64(i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	stats := store.Stats()
	if stats.NumSeries != 1 {
		t.Errorf("NumSeries = %d, want 1", stats.NumSeries)
	}
	if stats.NumSamples != 10 {
		t.Errorf("NumSamples = %d, want 10", stats.NumSamples)
	}
	if stats.NumLabels != 2 {
		t.Errorf("NumLabels = %d, want 2 (metric + host)", stats.NumLabels)
	}
	if stats.DataSize == 0 || stats.MemoryUsage == 0 {
		t.Errorf("zero sizes: %+v", stats)
	}
}

func TestStoreClosed(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := store.Create("cpu", SeriesOptions{Metric: "cpu"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Create = %v, want ErrClosed", err)
	}
	if err := store.Add("cpu", 1000, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Add = %v, want ErrClosed", err)
	}
	if _, err := store.Trim(); !errors.Is(err, ErrClosed) {
		t.Errorf("Trim = %v, want ErrClosed", err)
	}
}

func TestStoreSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, key := range []string{"cpu:a", "cpu:b"} {
		if _, err := store.Create(key, SeriesOptions{
			Metric: "cpu_usage",
			Labels: labels.FromStrings("host", key[4:]),
		}); err != nil {
			t.Fatalf("Create %s: %v", key, err)
		}
		for i := 0; i < 200; i++ {
			if err := store.Add(key, int64(1000*(i+1)), float64(i)); err != nil {
				t.Fatalf("Add %s: %v", key, err)
			}
		}
	}

	backend := NewMemoryBackend()
	snapshots := NewSnapshotStore(backend, DefaultConfig().Snapshot)
	if err := store.Snapshot(ctx, snapshots, "snap-1"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restoredStore := newTestStore(t)
	if err := restoredStore.Restore(ctx, snapshots, "snap-1"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restoredStore.NumSeries() != 2 {
		t.Fatalf("NumSeries = %d, want 2", restoredStore.NumSeries())
	}

	for _, key := range []string{"cpu:a", "cpu:b"} {
		orig, _ := store.Get(key)
		restored, err := restoredStore.Get(key)
		if err != nil {
			t.Fatalf("Get %s: %v", key, err)
		}
		if restored.ID != orig.ID || restored.Metric != orig.Metric {
			t.Errorf("%s: ID/Metric = %d/%q, want %d/%q", key, restored.ID, restored.Metric, orig.ID, orig.Metric)
		}
		if !labels.Equal(restored.Labels, orig.Labels) {
			t.Errorf("%s: labels = %s, want %s", key, restored.Labels, orig.Labels)
		}
		want, _ := orig.GetRange(0, MaxTimestamp)
		got, err := restored.GetRange(0, MaxTimestamp)
		if err != nil {
			t.Fatalf("GetRange %s: %v", key, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: %d samples, want %d", key, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s sample %d: %+v, want %+v", key, i, got[i], want[i])
			}
		}
	}

	// The index is rebuilt and queryable.
	results, err := restoredStore.Select(0, MaxTimestamp,
		[]*Matcher{MustMatcher(MatchEqual, "host", "a")})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(results) != 1 || results[0].Key != "cpu:a" {
		t.Fatalf("Select after restore = %+v", results)
	}

	// The id sequence resumes past the restored maximum.
	series, err := restoredStore.Create("mem", SeriesOptions{Metric: "mem_used"})
	if err != nil {
		t.Fatalf("Create after restore: %v", err)
	}
	if series.ID != 3 {
		t.Errorf("new ID = %d, want 3", series.ID)
	}

	// Appends continue on restored compressed streams.
	restored, _ := restoredStore.Get("cpu:a")
	if err := restored.Add(201000, 200); err != nil {
		t.Fatalf("Add after restore: %v", err)
	}
	if restored.LastTimestamp() != 201000 {
		t.Errorf("LastTimestamp = %d, want 201000", restored.LastTimestamp())
	}
}

func TestStoreRestoreMissingSnapshot(t *testing.T) {
	store := newTestStore(t)
	snapshots := NewSnapshotStore(NewMemoryBackend(), SnapshotConfig{})
	err := store.Restore(context.Background(), snapshots, "missing")
	if err == nil {
		t.Fatal("Restore succeeded on missing snapshot")
	}
}

func TestStoreSelectSkipsGaps(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("cpu", SeriesOptions{
		Metric: "cpu_usage",
		Labels: labels.FromStrings("host", "h1"),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Samples only at the edges; the middle of the span is a gap.
	if err := store.Add("cpu", 1000, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add("cpu", 10000, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.Select(4000, 6000,
		[]*Matcher{MustMatcher(MatchEqual, labels.MetricName, "cpu_usage")})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Select inside gap = %+v, want no results", results)
	}
}
