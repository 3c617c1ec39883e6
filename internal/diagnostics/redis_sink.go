package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPubSubSink publishes leak warnings to a Redis channel so every
// instance in a fleet observes leaks raised by any one of them. This
// is diagnostics fan-out only: no compiled pattern, cache entry, or
// match result ever crosses this channel, only the same metadata
// SlogSink logs locally.
type RedisPubSubSink struct {
	client  *redis.Client
	channel string
}

// NewRedisPubSubSink builds a sink that publishes to channel through client.
func NewRedisPubSubSink(client *redis.Client, channel string) *RedisPubSubSink {
	return &RedisPubSubSink{client: client, channel: channel}
}

type redisSinkPayload struct {
	Tier          string  `json:"tier"`
	PatternText   string  `json:"pattern_text"`
	RefCount      int32   `json:"ref_count"`
	AgeSeconds    float64 `json:"age_seconds"`
	DeferredSince string  `json:"deferred_since"`
}

func (r *RedisPubSubSink) Leak(ctx context.Context, w LeakWarning) error {
	payload := redisSinkPayload{
		Tier:          w.Tier,
		PatternText:   w.PatternText,
		RefCount:      w.RefCount,
		AgeSeconds:    w.Age.Seconds(),
		DeferredSince: w.DeferredSince.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal leak payload: %w", err)
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}
