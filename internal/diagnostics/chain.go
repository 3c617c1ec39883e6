package diagnostics

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ChainConfig is the subset of rxconfig.DiagnosticsConfig BuildChain
// needs, kept local so this package doesn't import rxconfig (which
// already imports diagnostics for SinkKind).
type ChainConfig struct {
	Kinds          []SinkKind
	RateLimitPerS  float64
	RateLimitBurst int
	FileWriter     io.Writer
	RedisAddr      string
	RedisChannel   string
	K8sNamespace   string
	K8sPodName     string
	Logger         *slog.Logger
}

// BuildChain constructs the configured sinks and combines them into a
// single Sink, rate-limited as a whole so a storm on one sink can't
// starve the others' token bucket independently.
func BuildChain(cfg ChainConfig) (Sink, error) {
	var sinks []Sink
	for _, kind := range cfg.Kinds {
		switch kind {
		case SinkKindSlog:
			sinks = append(sinks, NewSlogSink(cfg.Logger))
		case SinkKindFile:
			if cfg.FileWriter == nil {
				return nil, fmt.Errorf("diagnostics: file sink requested without a writer")
			}
			sinks = append(sinks, NewFileSink(cfg.FileWriter))
		case SinkKindK8sEvent:
			s, err := NewK8sEventSink(cfg.K8sNamespace, cfg.K8sPodName)
			if err != nil {
				return nil, fmt.Errorf("diagnostics: build k8s event sink: %w", err)
			}
			sinks = append(sinks, s)
		case SinkKindRedisPubSub:
			if cfg.RedisAddr == "" {
				return nil, fmt.Errorf("diagnostics: redis_pubsub sink requested without redis_addr")
			}
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			sinks = append(sinks, NewRedisPubSubSink(client, cfg.RedisChannel))
		default:
			return nil, fmt.Errorf("diagnostics: unknown sink kind %q", kind)
		}
	}

	if len(sinks) == 0 {
		sinks = append(sinks, NewSlogSink(cfg.Logger))
	}

	var chain Sink = NewMultiSink(sinks...)
	if cfg.RateLimitPerS > 0 {
		chain = NewRateLimitedSink(chain, cfg.RateLimitPerS, cfg.RateLimitBurst)
	}
	return chain, nil
}
