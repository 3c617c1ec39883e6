package rxcache

import (
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxengine"
	"github.com/oskarlin/rxcache/internal/rxhash"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

// PatternCache is the primary, hot-path tier: compiled patterns keyed
// by text+options, reference-counted so a handle stays valid for as
// long as any caller holds it, even past the tier's own eviction.
type PatternCache struct {
	cfg     rxconfig.PatternCacheConfig
	index   patternIndex
	group   singleflight.Group
	metrics *rxmetrics.Registry
	now     func() time.Time
}

// NewPatternCache builds a PatternCache. metrics may be nil in tests
// that don't care about observability.
func NewPatternCache(cfg rxconfig.PatternCacheConfig, metrics *rxmetrics.Registry) *PatternCache {
	return &PatternCache{
		cfg:     cfg,
		index:   newPatternIndex(cfg.MapFlavor),
		metrics: metrics,
		now:     time.Now,
	}
}

// GetOrCompile returns a referenced handle for text+opts, compiling
// and inserting it on a miss. Every caller that reaches this point —
// whether they triggered the compile or piggybacked on a concurrent
// one via singleflight — receives the same handle and must call
// Release exactly once when done with it.
func (c *PatternCache) GetOrCompile(text string, opts Options) (*PatternHandle, error) {
	key := rxhash.Pattern(text, opts.OptionFields()...)

	if h, ok := c.index.getRef(key); ok {
		h.Touch(c.now())
		c.recordHit()
		return h, nil
	}
	c.recordMiss()

	result, err, _ := c.group.Do(fmt.Sprintf("%d", key), func() (interface{}, error) {
		// Double-check: another goroutine may have inserted the handle
		// between our getRef miss above and acquiring this key's
		// singleflight slot. This lookup intentionally does not bump
		// refcount itself; every caller sharing this Do invocation —
		// including whichever one executes this function — adds its
		// own reference uniformly once Do returns below.
		if h, ok := c.index.peek(key); ok {
			return h, nil
		}

		artifact, cerr := rxengine.Compile(text, opts)
		if cerr != nil {
			if c.metrics != nil {
				kind := "syntax_error"
				if ce, ok := cerr.(*rxengine.CompileError); ok {
					kind = ce.Kind
				}
				c.metrics.CompilationErrors.WithLabelValues(kind).Inc()
			}
			return nil, cerr
		}

		h := newPatternHandle(key, text, opts, artifact, c.now())
		c.index.set(key, h)
		c.recordEntryCount()
		return h, nil
	})
	if err != nil {
		return nil, err
	}

	// Every caller sharing this compile — the one that executed it and
	// every piggybacker singleflight woke up with the same result —
	// takes its own reference here, after Do has returned.
	h := result.(*PatternHandle)
	h.AddRef()
	h.Touch(c.now())
	return h, nil
}

// Release decrements h's refcount. Safe to call from any goroutine.
func (c *PatternCache) Release(h *PatternHandle) {
	h.Release()
}

// Len reports the current entry count.
func (c *PatternCache) Len() int {
	return c.index.len()
}

// Snapshot returns every key currently indexed, for admin inspection.
func (c *PatternCache) Snapshot() []rxhash.Key {
	return c.index.oldestFirst()
}

// Clear evicts every unreferenced entry. Referenced entries are left
// in place: Clear never invalidates a handle a caller still holds.
func (c *PatternCache) Clear() int {
	evicted := 0
	for _, key := range c.index.oldestFirst() {
		if _, ok := c.index.evictIfUnreferenced(key); ok {
			evicted++
		}
	}
	c.recordEntryCount()
	return evicted
}

// ClearToDeferred empties the tier unconditionally: unreferenced
// entries are dropped, and any entry a caller still holds is handed
// off to deferred rather than invalidated out from under them. Used
// for manager-level teardown/clear_all, where every entry must leave
// this tier one way or another.
func (c *PatternCache) ClearToDeferred(deferred *DeferredCache) (cleared, movedDeferred int) {
	for _, key := range c.index.oldestFirst() {
		h, ok := c.index.forceDelete(key)
		if !ok {
			continue
		}
		if h.RefCount() > 0 {
			deferred.Add(h)
			movedDeferred++
			continue
		}
		cleared++
	}
	c.recordEntryCount()
	return cleared, movedDeferred
}

// ActualBytes sums ApproxSizeBytes across every currently indexed
// handle, referenced or not.
func (c *PatternCache) ActualBytes() int64 {
	var total int64
	for _, key := range c.index.oldestFirst() {
		if h, ok := c.index.peek(key); ok {
			total += h.ApproxSizeBytes
		}
	}
	return total
}

// SweptEntry describes one handle the TTL or LRU pass acted on.
type SweptEntry struct {
	Handle        *PatternHandle
	MovedDeferred bool
}

// SweepTTL evicts every handle untouched for longer than ttl. An
// unreferenced expired handle is freed outright; a referenced one is
// handed to deferred instead of being dropped, since some caller still
// holds it and freeing the artifact under them would be unsafe.
func (c *PatternCache) SweepTTL(ttl time.Duration) []SweptEntry {
	now := c.now()
	var swept []SweptEntry

	for _, key := range c.index.oldestFirst() {
		h, ok := c.index.peek(key)
		if !ok || h.Age(now) < ttl {
			continue
		}

		if evicted, ok := c.index.evictIfUnreferenced(key); ok {
			c.recordTTLEviction(evicted)
			swept = append(swept, SweptEntry{Handle: evicted})
			continue
		}

		// Still referenced: move to the deferred tier rather than
		// freeing it out from under whoever holds it.
		if moved, ok := c.index.forceDelete(key); ok {
			if c.metrics != nil {
				c.metrics.EntriesMovedToDeferred.WithLabelValues("ttl").Inc()
			}
			swept = append(swept, SweptEntry{Handle: moved, MovedDeferred: true})
		}
	}
	c.recordEntryCount()
	return swept
}

// SweepLRU evicts up to batchSize of the least-recently-used
// unreferenced handles, oldest first. Referenced handles are always
// skipped, never moved to deferred: the LRU pass only relieves
// capacity pressure, and an entry still in active use doesn't relieve
// anything by being displaced into another tier.
func (c *PatternCache) SweepLRU(batchSize int) []SweptEntry {
	var swept []SweptEntry
	keys := c.index.oldestFirst()

	for _, key := range keys {
		if len(swept) >= batchSize {
			break
		}
		if evicted, ok := c.index.evictIfUnreferenced(key); ok {
			c.recordLRUEviction(evicted)
			swept = append(swept, SweptEntry{Handle: evicted})
		}
	}
	c.recordEntryCount()
	return swept
}

// RefreshCapacityGauges updates the target/actual byte gauges. The
// eviction loop calls this once per tick so the admin snapshot stays
// current even between sweeps.
func (c *PatternCache) RefreshCapacityGauges() {
	if c.metrics == nil {
		return
	}
	c.metrics.TargetBytes.WithLabelValues(string(rxmetrics.TierPattern)).Set(float64(c.cfg.TargetCapacityBytes))
	c.metrics.ActualBytes.WithLabelValues(string(rxmetrics.TierPattern)).Set(float64(c.ActualBytes()))
}

// OverCapacity reports whether ActualBytes exceeds the configured
// target, the signal the eviction loop uses to decide whether an LRU
// pass runs this cycle at all.
func (c *PatternCache) OverCapacity() bool {
	return c.ActualBytes() > c.cfg.TargetCapacityBytes
}

func (c *PatternCache) recordTTLEviction(h *PatternHandle) {
	if c.metrics == nil {
		return
	}
	c.metrics.TTLEvictions.WithLabelValues(string(rxmetrics.TierPattern)).Inc()
	c.metrics.BytesFreed.WithLabelValues(string(rxmetrics.TierPattern)).Add(float64(h.ApproxSizeBytes))
}

func (c *PatternCache) recordLRUEviction(h *PatternHandle) {
	if c.metrics == nil {
		return
	}
	c.metrics.LRUEvictions.WithLabelValues(string(rxmetrics.TierPattern)).Inc()
	c.metrics.BytesFreed.WithLabelValues(string(rxmetrics.TierPattern)).Add(float64(h.ApproxSizeBytes))
}

func (c *PatternCache) recordHit() {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(string(rxmetrics.TierPattern)).Inc()
	}
}

func (c *PatternCache) recordMiss() {
	if c.metrics != nil {
		c.metrics.Misses.WithLabelValues(string(rxmetrics.TierPattern)).Inc()
	}
}

func (c *PatternCache) recordEntryCount() {
	if c.metrics != nil {
		c.metrics.EntryCount.WithLabelValues(string(rxmetrics.TierPattern)).Set(float64(c.index.len()))
	}
}
