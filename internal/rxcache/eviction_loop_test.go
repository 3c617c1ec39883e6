package rxcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskarlin/rxcache/internal/auditlog"
	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

type fakeAuditStore struct {
	mu      sync.Mutex
	records []auditlog.AuditRecord
}

func (f *fakeAuditStore) Append(_ context.Context, rec auditlog.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAuditStore) Recent(_ context.Context, limit int) ([]auditlog.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auditlog.AuditRecord(nil), f.records...), nil
}

func (f *fakeAuditStore) Close() error { return nil }

func (f *fakeAuditStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(eventType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestEvictionLoopStartStopLifecycle(t *testing.T) {
	metrics := rxmetrics.New("rxcache_loop_test", prometheus.NewRegistry())
	pattern := NewPatternCache(rxconfig.PatternCacheConfig{
		TargetCapacityBytes: 1 << 20, TTL: time.Hour, LRUBatchSize: 8, MapFlavor: rxconfig.MapFlavorRWMutex,
	}, metrics)
	result := NewResultCache(rxconfig.ResultCacheConfig{
		Enabled: true, TargetCapacityBytes: 1 << 20, InputThresholdBytes: 1024, TTL: time.Hour, MapFlavor: rxconfig.MapFlavorRWMutex,
	}, metrics)
	deferred := NewDeferredCache(time.Hour, nil, metrics)
	audit := &fakeAuditStore{}

	loop := NewEvictionLoop(
		rxconfig.EvictionLoopConfig{Interval: 10 * time.Millisecond},
		time.Hour, time.Hour, 8,
		pattern, result, deferred, audit,
	)

	assert.False(t, loop.Running())
	loop.Start(context.Background())
	assert.True(t, loop.Running())

	loop.Stop()
	assert.False(t, loop.Running())
}

func TestEvictionLoopSweepEmitsAuditRecords(t *testing.T) {
	metrics := rxmetrics.New("rxcache_loop_test2", prometheus.NewRegistry())
	pattern := NewPatternCache(rxconfig.PatternCacheConfig{
		TargetCapacityBytes: 1 << 20, TTL: time.Minute, LRUBatchSize: 8, MapFlavor: rxconfig.MapFlavorRWMutex,
	}, metrics)
	result := NewResultCache(rxconfig.ResultCacheConfig{
		Enabled: true, TargetCapacityBytes: 1 << 20, InputThresholdBytes: 1024, TTL: time.Minute, MapFlavor: rxconfig.MapFlavorRWMutex,
	}, metrics)
	deferred := NewDeferredCache(time.Hour, nil, metrics)
	audit := &fakeAuditStore{}

	loop := NewEvictionLoop(
		rxconfig.EvictionLoopConfig{Interval: time.Hour},
		time.Minute, time.Minute, 8,
		pattern, result, deferred, audit,
	)

	publisher := &fakePublisher{}
	loop.SetEventPublisher(publisher)

	h, err := pattern.GetOrCompile(`expired`, Options{})
	require.NoError(t, err)
	pattern.Release(h)
	pattern.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	ctx := context.Background()
	loop.Start(ctx)
	defer loop.Stop()

	loop.sweepOnce(ctx)

	assert.Eventually(t, func() bool {
		return audit.count() > 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, publisher.count())
}
