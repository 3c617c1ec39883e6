package rxcache

import (
	"context"
	"fmt"

	"github.com/oskarlin/rxcache/internal/auditlog"
	"github.com/oskarlin/rxcache/internal/diagnostics"
	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxhash"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

// CacheManager owns the three cache tiers, the background eviction
// loop, and the diagnostics/audit plumbing feeding it. It is the one
// type a facade or admin surface needs to hold onto.
type CacheManager struct {
	Pattern  *PatternCache
	Result   *ResultCache
	Deferred *DeferredCache
	Metrics  *rxmetrics.Registry

	loop  *EvictionLoop
	sink  diagnostics.Sink
	audit auditlog.Store
	cfg   *rxconfig.Config
}

// NewCacheManager wires the tiers, metrics registry, diagnostics sink,
// and audit store into a single manager, and builds (but does not
// start) its eviction loop.
func NewCacheManager(
	cfg *rxconfig.Config,
	metrics *rxmetrics.Registry,
	sink diagnostics.Sink,
	audit auditlog.Store,
) *CacheManager {
	pattern := NewPatternCache(cfg.PatternCache, metrics)
	result := NewResultCache(cfg.ResultCache, metrics)
	deferred := NewDeferredCache(cfg.DeferredCache.TTL, sink, metrics)

	loop := NewEvictionLoop(
		cfg.EvictionLoop,
		cfg.PatternCache.TTL,
		cfg.ResultCache.TTL,
		cfg.PatternCache.LRUBatchSize,
		pattern,
		result,
		deferred,
		audit,
	)

	return &CacheManager{
		Pattern:  pattern,
		Result:   result,
		Deferred: deferred,
		Metrics:  metrics,
		loop:     loop,
		sink:     sink,
		audit:    audit,
		cfg:      cfg,
	}
}

// Start begins the background eviction loop if the config asks for it.
func (m *CacheManager) Start(ctx context.Context) {
	if m.cfg.EvictionLoop.AutoStart {
		m.loop.Start(ctx)
	}
}

// Stop halts the eviction loop synchronously, clears every tier in the
// order Pattern (moving any still-referenced handle to Deferred),
// Result, Deferred, then closes the audit store. Safe to call even if
// Start was never called.
func (m *CacheManager) Stop() error {
	m.loop.Stop()
	m.Pattern.ClearToDeferred(m.Deferred)
	m.Result.Clear()
	m.Deferred.Clear()
	if m.audit != nil {
		return m.audit.Close()
	}
	return nil
}

// Running reports whether the eviction loop is active.
func (m *CacheManager) Running() bool {
	return m.loop.Running()
}

// SetEventPublisher wires a live event sink (the admin server's
// WebSocket hub) into the eviction loop.
func (m *CacheManager) SetEventPublisher(p EventPublisher) {
	m.loop.SetEventPublisher(p)
}

// GetOrCompile resolves a compiled pattern handle, compiling on a miss.
func (m *CacheManager) GetOrCompile(pattern string, opts Options) (*PatternHandle, error) {
	if !m.cfg.CacheEnabled {
		return nil, fmt.Errorf("rxcache: cache disabled")
	}
	return m.Pattern.GetOrCompile(pattern, opts)
}

// Release returns a handle obtained from GetOrCompile.
func (m *CacheManager) Release(h *PatternHandle) {
	m.Pattern.Release(h)
}

// LookupResult checks the result tier for a memoized match outcome.
func (m *CacheManager) LookupResult(patternKey rxhash.Key, input string) (matched, ok bool) {
	return m.Result.Get(patternKey, input)
}

// RecordResult memoizes a match outcome in the result tier.
func (m *CacheManager) RecordResult(patternKey rxhash.Key, input string, matched bool) {
	m.Result.Put(patternKey, input, matched)
}

// ManagerSnapshot is the admin-facing view across every tier.
type ManagerSnapshot struct {
	PatternEntries  int                `json:"pattern_entries"`
	ResultEntries   int                `json:"result_entries"`
	DeferredEntries int                `json:"deferred_entries"`
	Metrics         rxmetrics.Snapshot `json:"metrics"`
}

// Snapshot gathers entry counts and the full metrics snapshot.
func (m *CacheManager) Snapshot() ManagerSnapshot {
	return ManagerSnapshot{
		PatternEntries:  m.Pattern.Len(),
		ResultEntries:   m.Result.Len(),
		DeferredEntries: m.Deferred.Len(),
		Metrics:         m.Metrics.Snapshot(),
	}
}

// ClearAll is the operator-facing "wipe everything" action: it stops
// the loop if running, clears Pattern (moving any still-referenced
// handle to Deferred rather than invalidating it), then Result, then
// Deferred, and restarts the loop only if it had been running.
func (m *CacheManager) ClearAll(ctx context.Context) (patternCleared, resultCleared, deferredCleared int) {
	wasRunning := m.loop.Running()
	if wasRunning {
		m.loop.Stop()
	}

	cleared, moved := m.Pattern.ClearToDeferred(m.Deferred)
	patternCleared = cleared + moved
	resultCleared = m.Result.Clear()
	deferredCleared = m.Deferred.Clear()

	if wasRunning {
		m.loop.Start(ctx)
	}
	return
}
