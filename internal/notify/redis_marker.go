package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarker implements delivery markers on Redis via SETNX, so retried
// callbacks are deduplicated even across a bot restart.
type RedisMarker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMarker connects to redisURL and verifies the connection.
func NewRedisMarker(redisURL string) (*RedisMarker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisMarker{
		client: client,
		prefix: "verdict:",
		ttl:    24 * time.Hour,
	}, nil
}

// NewRedisMarkerWithClient creates a marker store from an existing client.
func NewRedisMarkerWithClient(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client, prefix: "verdict:", ttl: 24 * time.Hour}
}

func (m *RedisMarker) key(token string) string {
	return m.prefix + token
}

func (m *RedisMarker) FirstDelivery(ctx context.Context, token string) bool {
	first, err := m.client.SetNX(ctx, m.key(token), 1, m.ttl).Result()
	if err != nil {
		log.Printf("notify: marker claim failed, delivering anyway: %v", err)
		return true
	}
	return first
}

func (m *RedisMarker) Close() error {
	return m.client.Close()
}

// Ping checks if Redis is reachable.
func (m *RedisMarker) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
