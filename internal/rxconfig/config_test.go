package rxconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, int64(64*1024*1024), cfg.PatternCache.TargetCapacityBytes)
	assert.Equal(t, 30*time.Minute, cfg.PatternCache.TTL)
	assert.Equal(t, MapFlavorRWMutex, cfg.PatternCache.MapFlavor)
	assert.True(t, cfg.ResultCache.Enabled)
	assert.Equal(t, time.Hour, cfg.DeferredCache.TTL)
	assert.Equal(t, 30*time.Second, cfg.EvictionLoop.Interval)
	assert.Equal(t, "sqlite", cfg.AuditLog.Driver)
}

func TestValidateRejectsDeferredTTLNotExceedingPatternTTL(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.DeferredCache.TTL = cfg.PatternCache.TTL
	assert.Error(t, cfg.Validate())

	cfg.DeferredCache.TTL = cfg.PatternCache.TTL - time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingPatternCacheCapacity(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.PatternCache.TargetCapacityBytes = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rxcache.yaml")
	content := []byte("pattern_cache:\n  target_capacity_bytes: 1048576\n  ttl: 1m\n  lru_batch_size: 8\n  map_flavor: lru_shard\n" +
		"deferred_cache:\n  ttl: 5m\n" +
		"eviction_loop:\n  interval: 10s\n" +
		"audit_log:\n  driver: sqlite\n  dsn: \"file:test.db\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), cfg.PatternCache.TargetCapacityBytes)
	assert.Equal(t, MapFlavorLRUShard, cfg.PatternCache.MapFlavor)
}

func TestDiagnosticsSinkNames(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Diagnostics.Sinks = []string{"slog", "file"}

	kinds := cfg.DiagnosticsSinkNames()
	require.Len(t, kinds, 2)
	assert.Equal(t, "slog", string(kinds[0]))
	assert.Equal(t, "file", string(kinds[1]))
}
