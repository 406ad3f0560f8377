// Package chronos is an embedded time-series storage engine.
//
// Samples are (timestamp, float64) pairs appended to named series.
// Each series keeps its data in fixed-budget chunks, either as raw
// pairs or as a Gorilla-style compressed stream (delta-of-delta
// timestamps, XOR values), and enforces retention, deduplication and
// duplicate policies on ingest.
//
// # Basic Usage
//
// Create a store and ingest samples:
//
//	store, err := chronos.NewStore(chronos.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Add("cpu:host1", time.Now().Unix(), 42.5)
//
// Series can also be created explicitly with labels and per-series
// settings:
//
//	series, err := store.Create("cpu:host1", chronos.SeriesOptions{
//	    Metric:    "cpu_usage",
//	    Labels:    labels.FromStrings("host", "host1", "region", "eu"),
//	    Retention: 24 * time.Hour,
//	})
//
// Queries go through the label index. Matchers within a group are
// ANDed, groups are ORed:
//
//	results, err := store.Select(start, end, []*chronos.Matcher{
//	    chronos.MustMatcher(chronos.MatchEqual, "__name__", "cpu_usage"),
//	    chronos.MustMatcher(chronos.MatchRegexp, "host", "host[0-9]+"),
//	})
//
// # Snapshots
//
// The full store state serializes into a single snapshot blob that can
// be persisted through pluggable backends (memory, filesystem, SQLite,
// S3), optionally Snappy-compressed and encrypted with AES-256-GCM:
//
//	snapshots := chronos.NewSnapshotStore(backend, cfg.Snapshot)
//	err = store.Snapshot(ctx, snapshots, "daily/2026-08-25")
//	err = store.Restore(ctx, snapshots, "daily/2026-08-25")
//
// Restored compressed streams resume in place, so ingestion continues
// without re-encoding.
package chronos
