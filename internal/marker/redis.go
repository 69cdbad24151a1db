package marker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the marker in Redis, for shared-kiosk deployments where
// several dashboard processes on one machine share a login. Redis TTL caps
// how long a stale marker can linger if no check ever clears it.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the marker key. Default: "livecore:fresh_login".
	Key string
	// TTL bounds marker lifetime. Should exceed the grace period.
	// Default: 1 hour.
	TTL time.Duration
}

// NewRedisStore connects to Redis and returns a marker store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: connect: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "livecore:fresh_login"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisStore{client: client, key: key, ttl: ttl}, nil
}

func (r *RedisStore) Mark(ctx context.Context, at time.Time) error {
	if err := r.client.Set(ctx, r.key, at.UnixMilli(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set login marker: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context) (time.Time, bool, error) {
	ms, err := r.client.Get(ctx, r.key).Int64()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis: get login marker: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis: clear login marker: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
