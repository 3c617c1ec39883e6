package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskarlin/rxcache/internal/rxcache"
	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
)

func newTestServer(t *testing.T) *Server {
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
	metrics := rxmetrics.New("rxcache_admin_test", prometheus.NewRegistry())
	manager := rxcache.NewCacheManager(cfg, metrics, nil, nil)
	return New(rxconfig.AdminServerConfig{Enabled: true, Addr: ":0"}, manager, nil)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSnapshotReturnsJSONByDefault(t *testing.T) {
	s := newTestServer(t)
	_, err := s.manager.GetOrCompile(`\d+`, rxcache.Options{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/cache/snapshot", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var snap rxcache.ManagerSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.PatternEntries)
}

func TestClearResetsTiers(t *testing.T) {
	s := newTestServer(t)
	h, err := s.manager.GetOrCompile(`\d+`, rxcache.Options{})
	require.NoError(t, err)
	s.manager.Release(h)

	req := httptest.NewRequest(http.MethodPost, "/cache/clear", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.manager.Pattern.Len())
}

func TestUnknownRouteReturnsStructuredNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecurityHeadersAppliedToAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
