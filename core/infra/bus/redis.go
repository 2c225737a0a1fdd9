package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weftwork/weft/core/workflow"
)

// RedisSink publishes workflow lifecycle events to a Redis pub/sub channel
// as JSON. Pub/sub is fire-and-forget: subscribers absent at publish time
// never see the event, which matches the best-effort sink contract.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects to Redis and publishes onto the given channel.
func NewRedisSink(url, channel string) (*RedisSink, error) {
	if channel == "" {
		return nil, fmt.Errorf("redis sink channel required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisSink{client: client, channel: channel}, nil
}

// Publish sends one event on the channel.
func (s *RedisSink) Publish(ctx context.Context, evt workflow.Event) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

// Close closes the underlying Redis client.
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
