// Package rxconfig loads and validates the typed configuration bundle
// that drives every tier of the cache, the eviction loop, and the
// ambient logging/diagnostics/audit stack around them.
package rxconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/oskarlin/rxcache/internal/diagnostics"
	"github.com/oskarlin/rxcache/pkg/logger"
)

// MapFlavor selects the concurrent-map implementation backing a tier's
// index. RWMutex is the reference flavor; LRUShard delegates container
// bookkeeping to an LRU library while the tier's own TTL/LRU sweep
// remains the only thing that actually evicts.
type MapFlavor string

const (
	MapFlavorRWMutex  MapFlavor = "rwmutex"
	MapFlavorLRUShard MapFlavor = "lru_shard"
)

// PatternCacheConfig configures the primary compiled-pattern tier.
type PatternCacheConfig struct {
	TargetCapacityBytes int64         `mapstructure:"target_capacity_bytes" validate:"required,gt=0"`
	TTL                 time.Duration `mapstructure:"ttl" validate:"required,gt=0"`
	LRUBatchSize        int           `mapstructure:"lru_batch_size" validate:"required,gt=0"`
	MapFlavor           MapFlavor     `mapstructure:"map_flavor" validate:"required,oneof=rwmutex lru_shard"`
}

// ResultCacheConfig configures the boolean-match memoization tier.
type ResultCacheConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	TargetCapacityBytes int64         `mapstructure:"target_capacity_bytes" validate:"required_if=Enabled true,omitempty,gt=0"`
	InputThresholdBytes int           `mapstructure:"input_threshold_bytes" validate:"required_if=Enabled true,omitempty,gt=0"`
	TTL                 time.Duration `mapstructure:"ttl" validate:"required_if=Enabled true,omitempty,gt=0"`
	MapFlavor           MapFlavor     `mapstructure:"map_flavor" validate:"required,oneof=rwmutex lru_shard"`
}

// DeferredCacheConfig configures the still-referenced-but-evicted
// holding area. TTL must exceed PatternCache.TTL: an entry only ever
// reaches this tier after the pattern tier has already aged it out, so
// a shorter deferred TTL would make the tier meaningless.
type DeferredCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"required,gt=0"`
}

// EvictionLoopConfig configures the background sweep.
type EvictionLoopConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"required,gt=0"`
	AutoStart bool          `mapstructure:"auto_start"`
}

// DiagnosticsConfig selects and configures the leak-warning sink chain.
type DiagnosticsConfig struct {
	Sinks          []string      `mapstructure:"sinks" validate:"dive,oneof=slog file k8s_event redis_pubsub"`
	RateLimitPerS  float64       `mapstructure:"rate_limit_per_second" validate:"gte=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" validate:"gte=0"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisChannel   string        `mapstructure:"redis_channel"`
	FileLog        logger.Config `mapstructure:"file_log"`
}

// AuditLogConfig selects and configures the sweep/leak audit store.
type AuditLogConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

// AdminServerConfig configures the admin HTTP surface.
type AdminServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// Config is the full validated configuration bundle for a running
// cache instance.
type Config struct {
	CacheEnabled bool `mapstructure:"cache_enabled"`

	PatternCache  PatternCacheConfig  `mapstructure:"pattern_cache" validate:"required"`
	ResultCache   ResultCacheConfig   `mapstructure:"result_cache"`
	DeferredCache DeferredCacheConfig `mapstructure:"deferred_cache" validate:"required"`
	EvictionLoop  EvictionLoopConfig  `mapstructure:"eviction_loop" validate:"required"`

	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	AuditLog    AuditLogConfig    `mapstructure:"audit_log" validate:"required"`
	AdminServer AdminServerConfig `mapstructure:"admin_server"`

	Log logger.Config `mapstructure:"log"`
}

var validate = validator.New()

// Load reads configuration from configPath (if non-empty), layers
// environment variables over it (RXCACHE_ prefixed, "." replaced with
// "_"), fills unset fields with defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("rxcache")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate runs struct tag validation plus the cross-field invariants
// tags alone can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.DeferredCache.TTL <= c.PatternCache.TTL {
		return fmt.Errorf("deferred_cache.ttl (%s) must exceed pattern_cache.ttl (%s)",
			c.DeferredCache.TTL, c.PatternCache.TTL)
	}
	return nil
}

// DiagnosticsSinkNames returns the configured sink identifiers, typed
// for diagnostics.BuildChain.
func (c *Config) DiagnosticsSinkNames() []diagnostics.SinkKind {
	kinds := make([]diagnostics.SinkKind, 0, len(c.Diagnostics.Sinks))
	for _, s := range c.Diagnostics.Sinks {
		kinds = append(kinds, diagnostics.SinkKind(s))
	}
	return kinds
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_enabled", true)

	v.SetDefault("pattern_cache.target_capacity_bytes", 64*1024*1024)
	v.SetDefault("pattern_cache.ttl", "30m")
	v.SetDefault("pattern_cache.lru_batch_size", 64)
	v.SetDefault("pattern_cache.map_flavor", "rwmutex")

	v.SetDefault("result_cache.enabled", true)
	v.SetDefault("result_cache.target_capacity_bytes", 16*1024*1024)
	v.SetDefault("result_cache.input_threshold_bytes", 4096)
	v.SetDefault("result_cache.ttl", "5m")
	v.SetDefault("result_cache.map_flavor", "rwmutex")

	v.SetDefault("deferred_cache.ttl", "1h")

	v.SetDefault("eviction_loop.interval", "30s")
	v.SetDefault("eviction_loop.auto_start", true)

	v.SetDefault("diagnostics.sinks", []string{"slog"})
	v.SetDefault("diagnostics.rate_limit_per_second", 5.0)
	v.SetDefault("diagnostics.rate_limit_burst", 10)

	v.SetDefault("audit_log.driver", "sqlite")
	v.SetDefault("audit_log.dsn", "file:rxcache_audit.db")

	v.SetDefault("admin_server.enabled", true)
	v.SetDefault("admin_server.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}
