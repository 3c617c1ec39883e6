package rxcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oskarlin/rxcache/internal/auditlog"
	"github.com/oskarlin/rxcache/internal/rxconfig"
)

// EvictionLoop is the single background goroutine that sweeps every
// tier. Sweep order is always result, then pattern, then deferred:
// trimming stale results first means the pattern TTL pass below it
// never has to account for result entries pinning anything, and
// sweeping deferred last gives patterns just moved there by this same
// tick a chance to be picked up by a release that raced the sweep.
type EvictionLoop struct {
	interval time.Duration

	pattern  *PatternCache
	result   *ResultCache
	deferred *DeferredCache
	lruBatch int

	patternTTL  time.Duration
	resultTTL   time.Duration
	auditStore  auditlog.Store
	auditEvents chan auditlog.AuditRecord

	notifier EventPublisher

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// EventPublisher is the subset of the admin server's WebSocket hub the
// eviction loop needs to push live events to connected operators. It's
// an interface here, not a concrete type, so this package never imports
// the admin server.
type EventPublisher interface {
	Publish(eventType string, data interface{})
}

// SetEventPublisher wires a live event sink into the loop. Safe to call
// before or after Start; nil disables event publishing (the default).
func (l *EvictionLoop) SetEventPublisher(p EventPublisher) {
	l.notifier = p
}

// NewEvictionLoop builds a loop over the three tiers. auditStore may
// be nil, in which case sweep/leak events are simply not persisted.
func NewEvictionLoop(
	cfg rxconfig.EvictionLoopConfig,
	patternTTL, resultTTL time.Duration,
	lruBatch int,
	pattern *PatternCache,
	result *ResultCache,
	deferred *DeferredCache,
	auditStore auditlog.Store,
) *EvictionLoop {
	return &EvictionLoop{
		interval:    cfg.Interval,
		pattern:     pattern,
		result:      result,
		deferred:    deferred,
		lruBatch:    lruBatch,
		patternTTL:  patternTTL,
		resultTTL:   resultTTL,
		auditStore:  auditStore,
		auditEvents: make(chan auditlog.AuditRecord, 256),
	}
}

// Start begins sweeping on a fixed interval until Stop is called or
// ctx is canceled. Calling Start while the loop is already running is
// a no-op; after Stop the loop can be started again.
func (l *EvictionLoop) Start(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	if l.auditStore != nil {
		go l.drainAuditEvents(ctx)
	}

	go func() {
		defer close(l.doneCh)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.sweepOnce(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and blocks until it has.
func (l *EvictionLoop) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	close(l.stopCh)
	<-l.doneCh
}

// Running reports whether the loop is currently active.
func (l *EvictionLoop) Running() bool {
	return l.running.Load()
}

// sweepOnce runs one pass over every tier. A panic or error in any one
// tier's sweep is contained so it can't take the others down with it;
// the loop itself never exits because a single tick went badly.
func (l *EvictionLoop) sweepOnce(ctx context.Context) {
	l.safely(func() { l.sweepResult() })
	l.safely(func() { l.sweepPattern(ctx) })
	l.safely(func() { l.deferred.Evict(ctx) })
}

func (l *EvictionLoop) sweepResult() {
	l.result.SweepTTL(l.resultTTL)
	if l.result.OverCapacity() {
		l.result.SweepLRU(l.lruBatch)
	}
	l.result.RefreshCapacityGauges()
}

func (l *EvictionLoop) sweepPattern(ctx context.Context) {
	ttlSwept := l.pattern.SweepTTL(l.patternTTL)
	for _, e := range ttlSwept {
		if e.MovedDeferred {
			l.deferred.Add(e.Handle)
			l.emitAudit(auditlog.AuditRecord{
				Kind:            auditlog.EventTTLEviction,
				Tier:            "pattern",
				PatternPreview:  preview(e.Handle.PatternText),
				RefCountAtEvent: e.Handle.RefCount(),
			})
			continue
		}
		l.emitAudit(auditlog.AuditRecord{
			Kind:            auditlog.EventTTLEviction,
			Tier:            "pattern",
			PatternPreview:  preview(e.Handle.PatternText),
			RefCountAtEvent: 0,
			BytesFreed:      e.Handle.ApproxSizeBytes,
		})
	}

	if l.pattern.OverCapacity() {
		lruSwept := l.pattern.SweepLRU(l.lruBatch)
		for _, e := range lruSwept {
			l.emitAudit(auditlog.AuditRecord{
				Kind:            auditlog.EventLRUEviction,
				Tier:            "pattern",
				PatternPreview:  preview(e.Handle.PatternText),
				RefCountAtEvent: 0,
				BytesFreed:      e.Handle.ApproxSizeBytes,
			})
		}
	}
	l.pattern.RefreshCapacityGauges()
	_ = ctx
}

func (l *EvictionLoop) emitAudit(rec auditlog.AuditRecord) {
	if l.notifier != nil {
		l.notifier.Publish(string(rec.Kind), rec)
	}
	select {
	case l.auditEvents <- rec:
	default:
		// Buffer full: drop rather than block the sweep. Losing an
		// audit record is preferable to stalling eviction.
	}
}

func (l *EvictionLoop) drainAuditEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case rec := <-l.auditEvents:
			_ = l.auditStore.Append(ctx, rec)
		}
	}
}

func (l *EvictionLoop) safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func preview(pattern string) string {
	const maxLen = 80
	if len(pattern) <= maxLen {
		return pattern
	}
	return pattern[:maxLen] + "..."
}
