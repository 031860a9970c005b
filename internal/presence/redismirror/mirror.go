// Package redismirror publishes presence to Redis so processes outside the
// relay can see who is online. It is not a delivery path.
package redismirror

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// presenceKeyPrefix is followed by the uid; the value is the connection id.
	presenceKeyPrefix = "presence:%s"

	// onlineSetKey holds the uids currently online.
	onlineSetKey = "presence:online"

	defaultTTL = 2 * time.Minute
)

// Mirror implements presence.Observer on top of Redis.
type Mirror struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redisURL (e.g. "redis://localhost:6379/0") and pings it.
func New(ctx context.Context, redisURL string, ttl time.Duration) (*Mirror, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL cannot be empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Mirror{client: client, ttl: ttl}, nil
}

// Online records uid as connected through connID. Repeated calls refresh the TTL.
func (m *Mirror) Online(ctx context.Context, uid, connID string) error {
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(presenceKeyPrefix, uid), connID, m.ttl)
	pipe.SAdd(ctx, onlineSetKey, uid)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror online %s: %w", uid, err)
	}
	return nil
}

// Offline removes uid.
func (m *Mirror) Offline(ctx context.Context, uid string) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(presenceKeyPrefix, uid))
	pipe.SRem(ctx, onlineSetKey, uid)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror offline %s: %w", uid, err)
	}
	return nil
}

// Connection returns the connection id mirrored for uid, or "" if none.
func (m *Mirror) Connection(ctx context.Context, uid string) (string, error) {
	v, err := m.client.Get(ctx, fmt.Sprintf(presenceKeyPrefix, uid)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get presence %s: %w", uid, err)
	}
	return v, nil
}

// Close releases the Redis connection pool.
func (m *Mirror) Close() error {
	return m.client.Close()
}
