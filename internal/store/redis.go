package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on top of a Redis client. Keys are namespaced
// "<ns>:<bucket>:<key>" so several deployments can share one instance.
type Redis struct {
	rdb       *redis.Client
	namespace string
}

// NewRedis wraps an existing client. namespace defaults to "cuepool".
func NewRedis(rdb *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = "cuepool"
	}
	return &Redis{rdb: rdb, namespace: namespace}
}

func (r *Redis) fullKey(bucket, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.namespace, bucket, key)
}

func (r *Redis) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, r.fullKey(bucket, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get: %w", err)
	}
	return val, nil
}

func (r *Redis) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.fullKey(bucket, key), value, 0).Err(); err != nil {
		return fmt.Errorf("store: redis put: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, bucket, key string) error {
	if err := r.rdb.Del(ctx, r.fullKey(bucket, key)).Err(); err != nil {
		return fmt.Errorf("store: redis delete: %w", err)
	}
	return nil
}

func (r *Redis) Scan(ctx context.Context, bucket, prefix string) (map[string][]byte, error) {
	pattern := r.fullKey(bucket, prefix) + "*"
	strip := fmt.Sprintf("%s:%s:", r.namespace, bucket)

	out := make(map[string][]byte)
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		val, err := r.rdb.Get(ctx, full).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("store: redis scan get: %w", err)
		}
		out[strings.TrimPrefix(full, strip)] = val
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: redis scan: %w", err)
	}
	return out, nil
}
