// Package rxmetrics exposes the Prometheus collectors for every cache
// tier plus the snapshot CacheManager.Snapshot carries to the admin
// API. One Registry is built per process,
// mirroring the lazy-singleton shape the rest of the stack uses for
// cross-cutting collectors, but scoped to tiers (pattern/result/
// deferred) instead of business/technical/infra categories.
package rxmetrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Tier names the three cache tiers, used as a Prometheus label value.
type Tier string

const (
	TierPattern  Tier = "pattern"
	TierResult   Tier = "result"
	TierDeferred Tier = "deferred"
)

// Registry owns every collector the cache emits. Construct one with
// New and share it across the tiers and the eviction loop.
type Registry struct {
	namespace string

	Hits         *prometheus.CounterVec
	Misses       *prometheus.CounterVec
	TTLEvictions *prometheus.CounterVec
	LRUEvictions *prometheus.CounterVec
	BytesFreed   *prometheus.CounterVec
	EntryCount   *prometheus.GaugeVec
	TargetBytes  *prometheus.GaugeVec
	ActualBytes  *prometheus.GaugeVec

	CompilationErrors      *prometheus.CounterVec
	EntriesMovedToDeferred *prometheus.CounterVec

	ResultInserts    prometheus.Counter
	ResultUpdates    prometheus.Counter
	ResultFlips      prometheus.Counter
	ResultGetErrors  prometheus.Counter
	ResultPutErrors  prometheus.Counter

	DeferredImmediateEvictions prometheus.Counter
	DeferredForcedEvictions    prometheus.Counter
}

// New registers every collector against reg under namespace (usually
// "rxcache"). Passing a fresh prometheus.NewRegistry() per test keeps
// tests from colliding on the default global registry.
func New(namespace string, reg prometheus.Registerer) *Registry {
	if namespace == "" {
		namespace = "rxcache"
	}
	factory := promauto.With(reg)

	return &Registry{
		namespace: namespace,

		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Cache hits per tier.",
		}, []string{"tier"}),
		Misses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Cache misses per tier.",
		}, []string{"tier"}),
		TTLEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_ttl_evictions_total", Help: "TTL-driven evictions per tier.",
		}, []string{"tier"}),
		LRUEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lru_evictions_total", Help: "LRU-driven evictions per tier.",
		}, []string{"tier"}),
		BytesFreed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_bytes_freed_total", Help: "Bytes freed by eviction per tier.",
		}, []string{"tier"}),
		EntryCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_entry_count", Help: "Current entry count per tier.",
		}, []string{"tier"}),
		TargetBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_target_bytes", Help: "Configured capacity per tier.",
		}, []string{"tier"}),
		ActualBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_actual_bytes", Help: "Estimated occupied bytes per tier.",
		}, []string{"tier"}),

		CompilationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pattern_compilation_errors_total", Help: "Pattern compile failures by error kind.",
		}, []string{"kind"}),
		EntriesMovedToDeferred: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pattern_entries_moved_to_deferred_total", Help: "Pattern entries moved to the deferred tier by cause.",
		}, []string{"cause"}),

		ResultInserts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "result_inserts_total", Help: "New result cache entries inserted.",
		}),
		ResultUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "result_updates_total", Help: "Existing result cache entries overwritten.",
		}),
		ResultFlips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "result_flips_total", Help: "Result cache entries whose boolean value changed on update.",
		}),
		ResultGetErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "result_get_errors_total", Help: "ResultCache.Get calls that failed.",
		}),
		ResultPutErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "result_put_errors_total", Help: "ResultCache.Put calls that failed.",
		}),

		DeferredImmediateEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_immediate_evictions_total", Help: "Deferred entries freed as soon as their ref count reached zero.",
		}),
		DeferredForcedEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_forced_evictions_total", Help: "Deferred entries freed past TTL despite still being referenced.",
		}),
	}
}

// TierSnapshot is the per-tier slice of a Snapshot.
type TierSnapshot struct {
	Tier             Tier    `json:"tier"`
	Hits             float64 `json:"hits"`
	Misses           float64 `json:"misses"`
	HitRate          float64 `json:"hit_rate"`
	TTLEvictions     float64 `json:"ttl_evictions"`
	LRUEvictions     float64 `json:"lru_evictions"`
	TotalEvictions   float64 `json:"total_evictions"`
	TotalBytesFreed  float64 `json:"total_bytes_freed"`
	EntryCount       float64 `json:"entry_count"`
	TargetBytes      float64 `json:"target_bytes"`
	ActualBytes      float64 `json:"actual_bytes"`
	UtilizationRatio float64 `json:"utilization_ratio"`
}

// Snapshot is the opaque point-in-time view CacheManager.Snapshot
// includes for the admin API.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Tiers       []TierSnapshot `json:"tiers"`
}

// Snapshot reads every collector's current value into a Snapshot. It
// uses each metric's own Write method rather than scraping through
// promhttp, so it stays cheap enough to call from an admin handler on
// every request.
func (r *Registry) Snapshot() Snapshot {
	tiers := []Tier{TierPattern, TierResult, TierDeferred}
	out := Snapshot{GeneratedAt: time.Now().UTC()}

	for _, t := range tiers {
		hits := counterValue(r.Hits.WithLabelValues(string(t)))
		misses := counterValue(r.Misses.WithLabelValues(string(t)))
		ttl := counterValue(r.TTLEvictions.WithLabelValues(string(t)))
		lru := counterValue(r.LRUEvictions.WithLabelValues(string(t)))
		bytesFreed := counterValue(r.BytesFreed.WithLabelValues(string(t)))
		entries := gaugeValue(r.EntryCount.WithLabelValues(string(t)))
		target := gaugeValue(r.TargetBytes.WithLabelValues(string(t)))
		actual := gaugeValue(r.ActualBytes.WithLabelValues(string(t)))

		var hitRate, utilization float64
		if total := hits + misses; total > 0 {
			hitRate = hits / total
		}
		if target > 0 {
			utilization = actual / target
		}

		out.Tiers = append(out.Tiers, TierSnapshot{
			Tier:             t,
			Hits:             hits,
			Misses:           misses,
			HitRate:          hitRate,
			TTLEvictions:     ttl,
			LRUEvictions:     lru,
			TotalEvictions:   ttl + lru,
			TotalBytesFreed:  bytesFreed,
			EntryCount:       entries,
			TargetBytes:      target,
			ActualBytes:      actual,
			UtilizationRatio: utilization,
		})
	}
	return out
}

// Text renders Snapshot as the flat key=value text the admin API's
// /cache/snapshot route returns alongside the JSON form, for operators
// grepping logs rather than parsing JSON.
func (s Snapshot) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generated_at=%s\n", s.GeneratedAt.Format(time.RFC3339))
	for _, t := range s.Tiers {
		fmt.Fprintf(&b, "tier=%s hits=%.0f misses=%.0f hit_rate=%.4f ttl_evictions=%.0f lru_evictions=%.0f "+
			"total_evictions=%.0f bytes_freed=%.0f entry_count=%.0f target_bytes=%.0f actual_bytes=%.0f utilization=%.4f\n",
			t.Tier, t.Hits, t.Misses, t.HitRate, t.TTLEvictions, t.LRUEvictions,
			t.TotalEvictions, t.TotalBytesFreed, t.EntryCount, t.TargetBytes, t.ActualBytes, t.UtilizationRatio)
	}
	return b.String()
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
