package rxcache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxhash"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

func newTestResultCache(t *testing.T, enabled bool, threshold int) *ResultCache {
	t.Helper()
	metrics := rxmetrics.New("rxcache_result_test", prometheus.NewRegistry())
	return NewResultCache(rxconfig.ResultCacheConfig{
		Enabled:             enabled,
		TargetCapacityBytes: 1 << 16,
		InputThresholdBytes: threshold,
		TTL:                 time.Minute,
		MapFlavor:           rxconfig.MapFlavorRWMutex,
	}, metrics)
}

func TestResultCacheMissThenHit(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	key := rxhash.Pattern(`\d+`)

	_, ok := r.Get(key, "123")
	assert.False(t, ok)

	r.Put(key, "123", true)

	matched, ok := r.Get(key, "123")
	assert.True(t, ok)
	assert.True(t, matched)
}

func TestResultCacheDisabledNeverStores(t *testing.T) {
	r := newTestResultCache(t, false, 1024)
	key := rxhash.Pattern(`\d+`)

	r.Put(key, "123", true)
	_, ok := r.Get(key, "123")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestResultCacheEligibleRespectsThreshold(t *testing.T) {
	r := newTestResultCache(t, true, 4)
	assert.True(t, r.Eligible(4))
	assert.False(t, r.Eligible(5))
}

func TestResultCachePutIgnoresOversizedInput(t *testing.T) {
	r := newTestResultCache(t, true, 4)
	key := rxhash.Pattern(`\d+`)

	r.Put(key, "toolong", true)
	assert.Equal(t, 0, r.Len())
}

func TestResultCacheGetIgnoresOversizedInput(t *testing.T) {
	r := newTestResultCache(t, true, 4)
	key := rxhash.Pattern(`\d+`)

	// Force an entry into the map directly, bypassing Put's own
	// threshold gate, to prove Get itself refuses to serve it rather
	// than happening to never find it.
	k := rxhash.PatternAndInput(key, "toolong")
	r.m[k] = &resultEntry{matched: true}

	_, ok := r.Get(key, "toolong")
	assert.False(t, ok)
}

func TestResultCacheOverwriteTracksFlip(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	key := rxhash.Pattern(`\d+`)

	r.Put(key, "123", true)
	r.Put(key, "123", false)

	matched, ok := r.Get(key, "123")
	assert.True(t, ok)
	assert.False(t, matched)
	assert.Equal(t, 1, r.Len())
}

func TestResultCacheActualBytesIsFixedPerEntry(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	key := rxhash.Pattern(`\d+`)

	r.Put(key, "1", true)
	r.Put(key, "2", true)

	assert.Equal(t, int64(2*resultEntrySize), r.ActualBytes())
}

func TestResultCacheSweepTTLEvictsStaleEntries(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	key := rxhash.Pattern(`\d+`)
	r.Put(key, "1", true)

	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	evicted := r.SweepTTL(time.Minute)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, r.Len())
}

func TestResultCacheSweepLRUOrdersByLastAccess(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	key := rxhash.Pattern(`\d+`)

	base := time.Now()
	r.now = func() time.Time { return base }
	r.Put(key, "oldest", true)

	r.now = func() time.Time { return base.Add(time.Second) }
	r.Put(key, "newest", true)

	evicted := r.SweepLRU(1)
	assert.Equal(t, 1, evicted)

	_, oldOK := r.Get(key, "oldest")
	_, newOK := r.Get(key, "newest")
	assert.False(t, oldOK)
	assert.True(t, newOK)
}

func TestResultCacheClearRemovesEverything(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	key := rxhash.Pattern(`\d+`)
	r.Put(key, "1", true)
	r.Put(key, "2", true)

	n := r.Clear()
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, r.Len())
}

func TestResultCacheOverCapacity(t *testing.T) {
	r := newTestResultCache(t, true, 1024)
	r.cfg.TargetCapacityBytes = resultEntrySize
	key := rxhash.Pattern(`\d+`)

	r.Put(key, "1", true)
	assert.False(t, r.OverCapacity())

	r.Put(key, "2", true)
	assert.True(t, r.OverCapacity())
}
