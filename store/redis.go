package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTLScript increments a counter and attaches the window TTL only when
// the counter is created, so a busy key cannot keep extending its own window.
// KEYS[1] = counter key
// ARGV[1] = ttl in milliseconds
var incrWithTTLScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisKV implements KV backed by Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV creates a Redis-backed store.
func NewRedisKV(addr, password string, db int) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisKV{client: client}
}

// NewRedisKVFromClient wraps an existing client.
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get returns the value for key, or absent on redis.Nil.
func (s *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetNX stores value only if key is absent.
func (s *RedisKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// Incr increments the counter at key, setting the TTL on creation.
func (s *RedisKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := incrWithTTLScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	count, ok := res.(int64)
	if !ok {
		return 0, errors.New("unexpected response from incr script")
	}
	return count, nil
}

// TTL returns the remaining lifetime of key.
func (s *RedisKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Close releases the underlying client.
func (s *RedisKV) Close() error {
	return s.client.Close()
}
