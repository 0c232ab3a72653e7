package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"CCNLMonitor/internal/ports"
)

const (
	defaultKeyPrefix = "ccnl:seen:"
	defaultTTL       = 30 * 24 * time.Hour
)

// RedisConfig configures the seen-GUID store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

type keyValue interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisSeenStore remembers processed GUIDs in Redis with an expiry.
type RedisSeenStore struct {
	client keyValue
	prefix string
	ttl    time.Duration
}

var (
	_ ports.SeenStore = (*RedisSeenStore)(nil)
	_ io.Closer       = (*RedisSeenStore)(nil)
)

// NewRedisSeenStore connects to Redis and verifies the connection.
func NewRedisSeenStore(ctx context.Context, cfg RedisConfig) (*RedisSeenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisSeenStore(client, cfg.KeyPrefix, cfg.TTL), nil
}

func newRedisSeenStore(client keyValue, prefix string, ttl time.Duration) *RedisSeenStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisSeenStore{client: client, prefix: prefix, ttl: ttl}
}

// Seen reports whether guid was marked and has not expired.
func (s *RedisSeenStore) Seen(ctx context.Context, guid string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+guid).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records guid for the configured TTL.
func (s *RedisSeenStore) MarkSeen(ctx context.Context, guid string) error {
	if err := s.client.Set(ctx, s.prefix+guid, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Healthy pings Redis.
func (s *RedisSeenStore) Healthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (s *RedisSeenStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
