/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisHash is the hash all keys are stored under, so the quota can be
// measured without scanning the whole keyspace.
const RedisHash = "memorybox:storage"

type Redis struct {
	rdb   *redis.Client
	hash  string
	quota int64
}

func OpenRedis(ctx context.Context, url string, quota int64) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if quota <= 0 {
		quota = DefaultQuota
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, hash: RedisHash, quota: quota}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %q: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	keys, err := r.rdb.HKeys(ctx, r.hash).Result()
	if err != nil {
		return fmt.Errorf("measure storage: %w", err)
	}

	pipe := r.rdb.Pipeline()
	lengths := make(map[string]*redis.IntCmd, len(keys))
	for _, k := range keys {
		if k == key {
			continue
		}
		lengths[k] = pipe.HStrLen(ctx, r.hash, k)
	}
	if len(lengths) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("measure storage: %w", err)
		}
	}

	used := entrySize(key, value)
	for k, cmd := range lengths {
		used += int64(len(k)) + cmd.Val()
	}
	if used > r.quota {
		return ErrQuotaExceeded
	}

	if err := r.rdb.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.HDel(ctx, r.hash, key).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
