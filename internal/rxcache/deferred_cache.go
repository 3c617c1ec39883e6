package rxcache

import (
	"context"
	"sync"
	"time"

	"github.com/oskarlin/rxcache/internal/diagnostics"
	"github.com/oskarlin/rxcache/internal/rxhash"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

// deferredEntry pairs a handle moved off the pattern tier with the
// time it arrived here, which is what DeferredCache's own TTL is
// measured against, not the handle's original LastAccess.
type deferredEntry struct {
	handle     *PatternHandle
	deferredAt time.Time
}

// DeferredCache holds pattern handles the primary tier has aged out of
// its own index but that are still referenced by at least one caller.
// It exists so a caller mid-match never has the ground pulled out from
// under it just because the pattern tier decided the entry was stale;
// it is also where a caller that never releases a handle becomes
// visible as a leak.
type DeferredCache struct {
	mu   sync.Mutex
	m    map[rxhash.Key]*deferredEntry
	ttl  time.Duration
	sink diagnostics.Sink

	metrics *rxmetrics.Registry
	now     func() time.Time
}

// NewDeferredCache builds a DeferredCache. sink receives a LeakWarning
// whenever an entry is forced out still referenced past ttl.
func NewDeferredCache(ttl time.Duration, sink diagnostics.Sink, metrics *rxmetrics.Registry) *DeferredCache {
	if sink == nil {
		sink = diagnostics.NewSlogSink(nil)
	}
	return &DeferredCache{
		m:       make(map[rxhash.Key]*deferredEntry),
		ttl:     ttl,
		sink:    sink,
		metrics: metrics,
		now:     time.Now,
	}
}

// Add moves a still-referenced handle into the deferred tier. A
// double-add of a key already present is a no-op: the first
// admission's timestamp stands, and overwriting it would sever this
// tier's only reference to whatever handle was admitted first, which
// is exactly the leak DeferredCache exists to catch.
func (d *DeferredCache) Add(h *PatternHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.m[h.Key]; exists {
		return
	}
	d.m[h.Key] = &deferredEntry{handle: h, deferredAt: d.now()}
	d.recordEntryCountLocked()
}

// Len reports the current entry count.
func (d *DeferredCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.m)
}

// Snapshot returns every key currently deferred.
func (d *DeferredCache) Snapshot() []rxhash.Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]rxhash.Key, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	return keys
}

// Evict frees every entry whose refcount has dropped to zero (the
// common case: the last caller released it) and force-frees every
// entry that has sat here past ttl regardless of refcount, emitting a
// leak warning for each one forced out. Forcing a still-referenced
// handle out after ttl is a deliberate choice: a leaked reference
// otherwise pins memory forever, which is worse than the remote chance
// of a caller dereferencing a handle whose artifact has been dropped.
func (d *DeferredCache) Evict(ctx context.Context) {
	now := d.now()

	d.mu.Lock()
	var toWarn []struct {
		handle        *PatternHandle
		age           time.Duration
		deferredSince time.Time
	}
	for key, entry := range d.m {
		if entry.handle.RefCount() == 0 {
			delete(d.m, key)
			d.recordImmediateEviction(entry.handle)
			continue
		}
		if now.Sub(entry.deferredAt) > d.ttl {
			delete(d.m, key)
			d.recordForcedEviction(entry.handle)
			toWarn = append(toWarn, struct {
				handle        *PatternHandle
				age           time.Duration
				deferredSince time.Time
			}{entry.handle, now.Sub(entry.deferredAt), entry.deferredAt})
		}
	}
	d.recordEntryCountLocked()
	d.mu.Unlock()

	for _, w := range toWarn {
		_ = d.sink.Leak(ctx, diagnostics.LeakWarning{
			Tier:          string(rxmetrics.TierDeferred),
			PatternText:   w.handle.PatternText,
			RefCount:      w.handle.RefCount(),
			Age:           w.age,
			DeferredSince: w.deferredSince,
		})
	}
}

// Clear unconditionally frees every deferred entry, referenced or not.
// This is the one place in the cache that can invalidate a handle a
// caller still holds; it exists for operator-triggered full resets,
// where "every compiled pattern is gone" is the explicit intent.
func (d *DeferredCache) Clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.m)
	d.m = make(map[rxhash.Key]*deferredEntry)
	d.recordEntryCountLocked()
	return n
}

func (d *DeferredCache) recordEntryCountLocked() {
	if d.metrics != nil {
		d.metrics.EntryCount.WithLabelValues(string(rxmetrics.TierDeferred)).Set(float64(len(d.m)))
	}
}

func (d *DeferredCache) recordImmediateEviction(h *PatternHandle) {
	if d.metrics == nil {
		return
	}
	d.metrics.DeferredImmediateEvictions.Inc()
	d.metrics.BytesFreed.WithLabelValues(string(rxmetrics.TierDeferred)).Add(float64(h.ApproxSizeBytes))
}

func (d *DeferredCache) recordForcedEviction(h *PatternHandle) {
	if d.metrics == nil {
		return
	}
	d.metrics.DeferredForcedEvictions.Inc()
	d.metrics.BytesFreed.WithLabelValues(string(rxmetrics.TierDeferred)).Add(float64(h.ApproxSizeBytes))
}
