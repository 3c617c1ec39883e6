package diagnostics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisPubSubSinkPublishes(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), "rxcache:leaks")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	sink := NewRedisPubSubSink(client, "rxcache:leaks")
	require.NoError(t, sink.Leak(context.Background(), LeakWarning{
		PatternText: `foo.*bar`,
		RefCount:    1,
		Age:         time.Second,
	}))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var payload redisSinkPayload
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	require.Equal(t, `foo.*bar`, payload.PatternText)
}
