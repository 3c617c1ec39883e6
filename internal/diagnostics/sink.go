// Package diagnostics fans out leak warnings raised when the eviction
// loop finds a DeferredCache entry that has outlived its TTL while
// still referenced. It never carries cache contents: only pattern
// text, refcount, and age, the same way the audit log only persists
// sweep metadata rather than compiled artifacts.
package diagnostics

import (
	"context"
	"log/slog"
	"time"
)

// SinkKind names a configured sink implementation, as set in
// rxconfig.DiagnosticsConfig.Sinks.
type SinkKind string

const (
	SinkKindSlog        SinkKind = "slog"
	SinkKindFile        SinkKind = "file"
	SinkKindK8sEvent    SinkKind = "k8s_event"
	SinkKindRedisPubSub SinkKind = "redis_pubsub"
)

// LeakWarning describes a DeferredCache entry the eviction loop found
// still referenced past its deferred TTL.
type LeakWarning struct {
	Tier          string
	PatternText   string
	RefCount      int32
	Age           time.Duration
	DeferredSince time.Time
}

// Sink receives leak warnings. Implementations must not block the
// eviction loop for long; slow sinks (network, disk) should buffer or
// drop rather than stall the sweep.
type Sink interface {
	Leak(ctx context.Context, w LeakWarning) error
}

// SlogSink logs leak warnings through a structured logger. It is
// always safe to construct and never returns an error from Leak.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a SlogSink. A nil logger falls back to slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Leak(_ context.Context, w LeakWarning) error {
	s.logger.Warn("deferred cache entry leaked past TTL while still referenced",
		"tier", w.Tier,
		"pattern", w.PatternText,
		"ref_count", w.RefCount,
		"age", w.Age,
		"deferred_since", w.DeferredSince,
	)
	return nil
}

// MultiSink fans a leak warning out to every child sink, continuing
// past individual failures and returning the last error seen so a
// caller can still observe that something went wrong.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink from one or more child sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Leak(ctx context.Context, w LeakWarning) error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Leak(ctx, w); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
