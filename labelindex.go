package chronos

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	radix "github.com/armon/go-radix"
	"github.com/prometheus/prometheus/model/labels"
)

// LabelIndex is the reverse mapping from label predicates to series
// identifiers. Every series is indexed under its metric pseudo-label
// (__name__) and each of its label pairs; each radix key holds a
// bitmap of the series ids carrying that pair.
//
// One reader-writer lock guards all state: matcher evaluation and
// label enumeration run under the read lock, structural mutations
// take the write lock.
type LabelIndex struct {
	mu         sync.RWMutex
	tree       *radix.Tree // "label=value\x00" -> *roaring64.Bitmap
	idToKey    map[uint64]string
	labelCount int

	sequence atomic.Uint64
}

// NewLabelIndex creates an empty index. The first allocated series id
// is 1; id 0 is never issued.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{
		tree:    radix.New(),
		idToKey: make(map[uint64]string),
	}
}

// NextID allocates a process-unique series identifier.
func (ix *LabelIndex) NextID() uint64 {
	return ix.sequence.Add(1)
}

// SetSequence moves the id counter so the next allocation returns
// maxID+1. Called after a reload with the highest identifier observed
// in the restored state.
func (ix *LabelIndex) SetSequence(maxID uint64) {
	ix.sequence.Store(maxID)
}

// SeriesCount returns the number of indexed series.
func (ix *LabelIndex) SeriesCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idToKey)
}

// LabelCount returns the number of distinct label names, the metric
// pseudo-label included.
func (ix *LabelIndex) LabelCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.labelCount
}

// Clear drops all index state and resets the id sequence.
func (ix *LabelIndex) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree = radix.New()
	ix.idToKey = make(map[uint64]string)
	ix.labelCount = 0
	ix.sequence.Store(0)
}

// IndexTimeSeries registers a series under its metric name and every
// label, and records the external key it is stored under.
func (ix *LabelIndex) IndexTimeSeries(s *TimeSeries, externalKey string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.indexLocked(s, externalKey)
}

func (ix *LabelIndex) indexLocked(s *TimeSeries, externalKey string) {
	ix.idToKey[s.ID] = externalKey
	if s.Metric != "" {
		ix.insertLabelValue(labels.MetricName, s.Metric, s.ID)
	}
	s.Labels.Range(func(l labels.Label) {
		ix.insertLabelValue(l.Name, l.Value, s.ID)
	})
}

func (ix *LabelIndex) insertLabelValue(name, value string, id uint64) {
	key := keyForLabelValue(name, value)
	if v, ok := ix.tree.Get(key); ok {
		v.(*roaring64.Bitmap).Add(id)
		return
	}
	if !ix.labelHasValues(name) {
		ix.labelCount++
	}
	bm := roaring64.New()
	bm.Add(id)
	ix.tree.Insert(key, bm)
}

// labelHasValues reports whether any value entry exists for the label.
func (ix *LabelIndex) labelHasValues(name string) bool {
	found := false
	ix.tree.WalkPrefix(keyPrefixForLabel(name), func(string, interface{}) bool {
		found = true
		return true
	})
	return found
}

// RemoveSeries unregisters a series from every label entry it was
// indexed under. Entries whose bitmap becomes empty are deleted, and
// the distinct-label count drops once a label has no values left.
func (ix *LabelIndex) RemoveSeries(s *TimeSeries) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(s)
}

// RemoveSeriesByID unregisters a series when only its id is known, for
// example while reconciling the index against restored state. It walks
// every entry, so prefer RemoveSeries when the series is at hand.
func (ix *LabelIndex) RemoveSeriesByID(id uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	delete(ix.idToKey, id)
	var keys []string
	ix.tree.Walk(func(key string, v interface{}) bool {
		if v.(*roaring64.Bitmap).Contains(id) {
			keys = append(keys, key)
		}
		return false
	})
	for _, key := range keys {
		if name, value, ok := splitIndexKey(key); ok {
			ix.removeLabelValue(name, value, id)
		}
	}
}

func (ix *LabelIndex) removeLocked(s *TimeSeries) {
	delete(ix.idToKey, s.ID)
	if s.Metric != "" {
		ix.removeLabelValue(labels.MetricName, s.Metric, s.ID)
	}
	s.Labels.Range(func(l labels.Label) {
		ix.removeLabelValue(l.Name, l.Value, s.ID)
	})
}

func (ix *LabelIndex) removeLabelValue(name, value string, id uint64) {
	key := keyForLabelValue(name, value)
	v, ok := ix.tree.Get(key)
	if !ok {
		return
	}
	bm := v.(*roaring64.Bitmap)
	bm.Remove(id)
	if !bm.IsEmpty() {
		return
	}
	ix.tree.Delete(key)
	if !ix.labelHasValues(name) {
		ix.labelCount--
	}
}

// ReindexTimeSeries removes and reinserts a series after its labels
// changed. oldMetric and oldLabels describe the indexed state being
// replaced.
func (ix *LabelIndex) ReindexTimeSeries(s *TimeSeries, externalKey, oldMetric string, oldLabels labels.Labels) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old := &TimeSeries{ID: s.ID, Metric: oldMetric, Labels: oldLabels}
	ix.removeLocked(old)
	ix.indexLocked(s, externalKey)
}

// ExternalKey returns the storage key a series id was registered with.
func (ix *LabelIndex) ExternalKey(id uint64) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	key, ok := ix.idToKey[id]
	return key, ok
}

// SeriesIDsByMetricName returns the ids of all series with the given
// metric name.
func (ix *LabelIndex) SeriesIDsByMetricName(metric string) *roaring64.Bitmap {
	return ix.SeriesIDsByLabelValue(labels.MetricName, metric)
}

// SeriesIDsByLabelValue returns the ids of all series carrying the
// exact label pair.
func (ix *LabelIndex) SeriesIDsByLabelValue(name, value string) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if v, ok := ix.tree.Get(keyForLabelValue(name, value)); ok {
		return v.(*roaring64.Bitmap).Clone()
	}
	return roaring64.New()
}

// LabelValues returns all values recorded for a label, in lexical
// order.
func (ix *LabelIndex) LabelValues(name string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	prefix := keyPrefixForLabel(name)
	var values []string
	ix.tree.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		values = append(values, indexKeyValue(key, len(prefix)))
		return false
	})
	return values
}

// LabelNames returns all distinct label names, in lexical order.
func (ix *LabelIndex) LabelNames() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var names []string
	last := ""
	ix.tree.Walk(func(key string, _ interface{}) bool {
		if name, _, ok := splitIndexKey(key); ok && name != last {
			names = append(names, name)
			last = name
		}
		return false
	})
	return names
}

// SeriesIDsByMatchers evaluates matcher groups against the index.
// Matchers inside one group are combined by intersection; the groups'
// results are unioned. The returned bitmap is owned by the caller.
func (ix *LabelIndex) SeriesIDsByMatchers(groups ...[]*Matcher) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := roaring64.New()
	for _, group := range groups {
		out.Or(ix.evalConjunction(group))
	}
	return out
}

// evalConjunction intersects the per-matcher bitmaps of one group. The
// first contributing matcher seeds the accumulator; evaluation stops
// as soon as the accumulator goes empty.
func (ix *LabelIndex) evalConjunction(group []*Matcher) *roaring64.Bitmap {
	acc := roaring64.New()
	seeded := false

	for _, m := range group {
		bm := ix.evalMatcher(m)
		if !seeded {
			acc.Or(bm)
			seeded = true
		} else {
			acc.And(bm)
		}
		if acc.IsEmpty() {
			return acc
		}
	}
	return acc
}

// evalMatcher resolves one matcher to a bitmap under the read lock.
// An unnegated equality is a direct key lookup; a match-everything
// predicate unions the label's whole prefix; anything else scans the
// prefix and applies the predicate per value.
func (ix *LabelIndex) evalMatcher(m *Matcher) *roaring64.Bitmap {
	out := roaring64.New()

	if m.matchesNone() {
		return out
	}

	if m.Op == MatchEqual {
		if v, ok := ix.tree.Get(keyForLabelValue(m.Name, m.Value)); ok {
			out.Or(v.(*roaring64.Bitmap))
		}
		return out
	}

	prefix := keyPrefixForLabel(m.Name)
	all := m.matchesAll()
	ix.tree.WalkPrefix(prefix, func(key string, v interface{}) bool {
		if all || m.Matches(indexKeyValue(key, len(prefix))) {
			out.Or(v.(*roaring64.Bitmap))
		}
		return false
	})
	return out
}
