package rxfacade

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskarlin/rxcache/internal/rxcache"
	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

func newTestManager(t *testing.T) *rxcache.CacheManager {
	t.Helper()
	cfg := &rxconfig.Config{
		CacheEnabled: true,
		PatternCache: rxconfig.PatternCacheConfig{
			TargetCapacityBytes: 1 << 20, TTL: time.Hour, LRUBatchSize: 8, MapFlavor: rxconfig.MapFlavorRWMutex,
		},
		ResultCache: rxconfig.ResultCacheConfig{
			Enabled: true, TargetCapacityBytes: 1 << 20, InputThresholdBytes: 1024, TTL: time.Hour, MapFlavor: rxconfig.MapFlavorRWMutex,
		},
		DeferredCache: rxconfig.DeferredCacheConfig{TTL: 2 * time.Hour},
		EvictionLoop:  rxconfig.EvictionLoopConfig{Interval: time.Hour},
	}
	metrics := rxmetrics.New("rxcache_facade_test", prometheus.NewRegistry())
	return rxcache.NewCacheManager(cfg, metrics, nil, nil)
}

func TestMatchStringMemoizesResult(t *testing.T) {
	mgr := newTestManager(t)

	matched, err := MatchString(mgr, `^\d+$`, rxcache.Options{}, "12345")
	require.NoError(t, err)
	assert.True(t, matched)

	h, err := mgr.GetOrCompile(`^\d+$`, rxcache.Options{})
	require.NoError(t, err)
	defer mgr.Release(h)

	cached, ok := mgr.LookupResult(h.Key, "12345")
	assert.True(t, ok)
	assert.True(t, cached)
}

func TestMatchStringRejectsInvalidPattern(t *testing.T) {
	mgr := newTestManager(t)
	_, err := MatchString(mgr, `(unclosed`, rxcache.Options{}, "x")
	assert.Error(t, err)
}

func TestFindStringReturnsLeftmostMatch(t *testing.T) {
	mgr := newTestManager(t)
	match, ok, err := FindString(mgr, `\d+`, rxcache.Options{}, "abc123def456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123", match)
}

func TestFindStringDistinguishesEmptyMatchFromNoMatch(t *testing.T) {
	mgr := newTestManager(t)

	match, ok, err := FindString(mgr, `z*`, rxcache.Options{}, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", match)

	_, ok, err = FindString(mgr, `z+`, rxcache.Options{}, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceAllStringReplacesEveryMatch(t *testing.T) {
	mgr := newTestManager(t)
	result, err := ReplaceAllString(mgr, `\d+`, rxcache.Options{}, "a1b22c333", "#")
	require.NoError(t, err)
	assert.Equal(t, "a#b#c#", result)
}

func TestFacadeReleasesHandleAfterMatch(t *testing.T) {
	mgr := newTestManager(t)
	_, err := MatchString(mgr, `x`, rxcache.Options{}, "x")
	require.NoError(t, err)

	h, err := mgr.GetOrCompile(`x`, rxcache.Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.RefCount())
	mgr.Release(h)
}
