/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package storage is a small string key/value store with a hard byte quota,
// modeled on browser local storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultQuota matches the usual per-origin local storage limit.
const DefaultQuota int64 = 5 * 1024 * 1024

var (
	ErrNotFound      = errors.New("key not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Backend stores string values by key. Set must fail with ErrQuotaExceeded,
// leaving the previous value in place, when the combined size of all keys
// and values would exceed the quota.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open picks a backend by URL scheme:
//
//	memory:
//	sqlite:/path/to/file.db
//	redis://[:password@]host:port/db
//
// A quota of zero or less means DefaultQuota.
func Open(ctx context.Context, url string, quota int64) (Backend, error) {
	if quota <= 0 {
		quota = DefaultQuota
	}

	switch {
	case url == "memory:" || url == "memory":
		return NewMemory(quota), nil
	case strings.HasPrefix(url, "sqlite:"):
		return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite:"), quota)
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return OpenRedis(ctx, url, quota)
	default:
		return nil, fmt.Errorf("unsupported storage url: %q", url)
	}
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
