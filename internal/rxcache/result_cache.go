package rxcache

import (
	"sort"
	"sync"
	"time"

	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxhash"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

// resultEntrySize is the fixed accounting charge per ResultCache
// entry: a bool, a key, and bookkeeping, never the input string
// itself. Charging a constant size keeps capacity accounting O(1)
// regardless of how long the matched input was.
const resultEntrySize = 64

type resultEntry struct {
	matched    bool
	lastAccess int64 // unix nanos, plain field: ResultCache holds its own lock already
}

// ResultCache memoizes MatchString outcomes keyed on pattern+input, so
// a hot input matched against the same pattern repeatedly doesn't pay
// for re-running the automaton. It never stores the input itself, only
// its hash, and only participates at all for inputs at or under
// InputThresholdBytes: long inputs are assumed unique enough that
// memoizing them wastes the tier's budget.
type ResultCache struct {
	cfg     rxconfig.ResultCacheConfig
	mu      sync.RWMutex
	m       map[rxhash.Key]*resultEntry
	metrics *rxmetrics.Registry
	now     func() time.Time
}

// NewResultCache builds a ResultCache.
func NewResultCache(cfg rxconfig.ResultCacheConfig, metrics *rxmetrics.Registry) *ResultCache {
	return &ResultCache{
		cfg:     cfg,
		m:       make(map[rxhash.Key]*resultEntry),
		metrics: metrics,
		now:     time.Now,
	}
}

// Eligible reports whether an input of the given length is small
// enough to be worth memoizing.
func (r *ResultCache) Eligible(inputLen int) bool {
	return r.cfg.Enabled && inputLen <= r.cfg.InputThresholdBytes
}

// Get looks up a memoized result. ok is false on a miss or when the
// tier is disabled.
func (r *ResultCache) Get(patternKey rxhash.Key, input string) (matched bool, ok bool) {
	if !r.Eligible(len(input)) {
		return false, false
	}
	key := rxhash.PatternAndInput(patternKey, input)

	r.mu.Lock()
	entry, found := r.m[key]
	if found {
		entry.lastAccess = r.now().UnixNano()
		matched = entry.matched
	}
	r.mu.Unlock()

	if !found {
		r.recordMiss()
		return false, false
	}
	r.recordHit()
	return matched, true
}

// Put memoizes a match outcome. Overwriting an existing entry whose
// boolean value differs from the new one is tracked separately as a
// "flip", useful for spotting nondeterministic patterns in practice
// (lookaheads with backreference-like engines, custom engines with
// internal state) even though the standard library's RE2 engine never
// produces one.
func (r *ResultCache) Put(patternKey rxhash.Key, input string, matched bool) {
	if !r.Eligible(len(input)) {
		return
	}
	key := rxhash.PatternAndInput(patternKey, input)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.m[key]; ok {
		if existing.matched != matched {
			r.recordFlip()
		}
		existing.matched = matched
		existing.lastAccess = r.now().UnixNano()
		r.recordUpdate()
		return
	}

	r.m[key] = &resultEntry{matched: matched, lastAccess: r.now().UnixNano()}
	r.recordInsert()
	r.recordEntryCountLocked()
}

// Len reports the current entry count.
func (r *ResultCache) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// ActualBytes returns the tier's fixed-size accounting total.
func (r *ResultCache) ActualBytes() int64 {
	return int64(r.Len()) * resultEntrySize
}

// OverCapacity reports whether ActualBytes exceeds the configured target.
func (r *ResultCache) OverCapacity() bool {
	return r.ActualBytes() > r.cfg.TargetCapacityBytes
}

// SweepTTL evicts entries untouched for longer than ttl.
func (r *ResultCache) SweepTTL(ttl time.Duration) int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, entry := range r.m {
		if now.Sub(time.Unix(0, entry.lastAccess)) > ttl {
			delete(r.m, key)
			evicted++
		}
	}
	if evicted > 0 {
		r.recordTTLEvictions(evicted)
	}
	r.recordEntryCountLocked()
	return evicted
}

// SweepLRU evicts up to batchSize of the least-recently-used entries.
func (r *ResultCache) SweepLRU(batchSize int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	type kv struct {
		key  rxhash.Key
		last int64
	}
	all := make([]kv, 0, len(r.m))
	for k, e := range r.m {
		all = append(all, kv{k, e.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last < all[j].last })

	n := batchSize
	if n > len(all) {
		n = len(all)
	}
	for i := 0; i < n; i++ {
		delete(r.m, all[i].key)
	}
	if n > 0 {
		r.recordLRUEvictions(n)
	}
	r.recordEntryCountLocked()
	return n
}

// Clear removes every entry.
func (r *ResultCache) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.m)
	r.m = make(map[rxhash.Key]*resultEntry)
	r.recordEntryCountLocked()
	return n
}

func (r *ResultCache) RefreshCapacityGauges() {
	if r.metrics == nil {
		return
	}
	r.metrics.TargetBytes.WithLabelValues(string(rxmetrics.TierResult)).Set(float64(r.cfg.TargetCapacityBytes))
	r.metrics.ActualBytes.WithLabelValues(string(rxmetrics.TierResult)).Set(float64(r.ActualBytes()))
}

func (r *ResultCache) recordHit() {
	if r.metrics != nil {
		r.metrics.Hits.WithLabelValues(string(rxmetrics.TierResult)).Inc()
	}
}

func (r *ResultCache) recordMiss() {
	if r.metrics != nil {
		r.metrics.Misses.WithLabelValues(string(rxmetrics.TierResult)).Inc()
	}
}

func (r *ResultCache) recordInsert() {
	if r.metrics != nil {
		r.metrics.ResultInserts.Inc()
	}
}

func (r *ResultCache) recordUpdate() {
	if r.metrics != nil {
		r.metrics.ResultUpdates.Inc()
	}
}

func (r *ResultCache) recordFlip() {
	if r.metrics != nil {
		r.metrics.ResultFlips.Inc()
	}
}

func (r *ResultCache) recordTTLEvictions(n int) {
	if r.metrics != nil {
		r.metrics.TTLEvictions.WithLabelValues(string(rxmetrics.TierResult)).Add(float64(n))
		r.metrics.BytesFreed.WithLabelValues(string(rxmetrics.TierResult)).Add(float64(n * resultEntrySize))
	}
}

func (r *ResultCache) recordLRUEvictions(n int) {
	if r.metrics != nil {
		r.metrics.LRUEvictions.WithLabelValues(string(rxmetrics.TierResult)).Add(float64(n))
		r.metrics.BytesFreed.WithLabelValues(string(rxmetrics.TierResult)).Add(float64(n * resultEntrySize))
	}
}

func (r *ResultCache) recordEntryCountLocked() {
	if r.metrics != nil {
		r.metrics.EntryCount.WithLabelValues(string(rxmetrics.TierResult)).Set(float64(len(r.m)))
	}
}
