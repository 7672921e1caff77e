package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a remote Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", errPing)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the value for key or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, errGet := s.client.Get(ctx, key).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, errGet
	}
	return val, nil
}

// Set writes a value without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// SetTTL writes a value with an expiry.
func (s *RedisStore) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key. Removing an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Exists reports whether the key is present and unexpired.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, errExists := s.client.Exists(ctx, key).Result()
	if errExists != nil {
		return false, errExists
	}
	return n > 0, nil
}

// MGet batch-fetches values; absent keys yield nil entries.
func (s *RedisStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, errMGet := s.client.MGet(ctx, keys...).Result()
	if errMGet != nil {
		return nil, errMGet
	}
	out := make([][]byte, len(vals))
	for i, val := range vals {
		switch typed := val.(type) {
		case string:
			out[i] = []byte(typed)
		case []byte:
			out[i] = typed
		}
	}
	return out, nil
}

// ScanPrefix returns all keys under the given prefix.
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if errIter := iter.Err(); errIter != nil {
		return nil, errIter
	}
	return keys, nil
}

// Txn applies all operations in a single MULTI/EXEC pipeline.
func (s *RedisStore) Txn(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, op := range ops {
		switch op.kind {
		case opSet:
			pipe.Set(ctx, op.key, op.value, 0)
		case opSetTTL:
			pipe.Set(ctx, op.key, op.value, op.ttl)
		case opDelete:
			pipe.Del(ctx, op.key)
		case opIncr:
			pipe.Incr(ctx, op.key)
		}
	}
	_, errExec := pipe.Exec(ctx)
	return errExec
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
