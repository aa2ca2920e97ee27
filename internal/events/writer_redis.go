package events

import (
	"context"
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/redis/go-redis/v9"
)

// RedisStreamWriter appends events to a redis stream named after the topic.
// The stream is trimmed to about maxLen entries. The client is owned by the
// caller and is not closed.
type RedisStreamWriter struct {
	client redis.UniversalClient
	maxLen int64
}

func NewRedisStreamWriter(client redis.UniversalClient, maxLen int64) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, maxLen: maxLen}
}

func (w *RedisStreamWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", e.ID(), err)
	}

	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"id":    e.ID(),
			"type":  e.Type(),
			"event": string(data),
		},
	}
	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}

	return w.client.XAdd(ctx, args).Err()
}

func (w *RedisStreamWriter) Close(_ context.Context) error {
	return nil
}
