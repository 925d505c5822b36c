/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func backends(t *testing.T, quota int64) map[string]Backend {
	t.Helper()

	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"), quota)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	mr := miniredis.RunT(t)
	rd, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", quota)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() { rd.Close() })

	return map[string]Backend{
		"memory": NewMemory(quota),
		"sqlite": sq,
		"redis":  rd,
	}
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) = %v, want ErrNotFound", err)
			}

			if err := b.Set(ctx, "k", "one"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := b.Set(ctx, "k", "two"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if v, err := b.Get(ctx, "k"); err != nil || v != "two" {
				t.Errorf("Get = %q, %v", v, err)
			}

			if err := b.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v", err)
			}
		})
	}
}

func TestBackendQuota(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t, 100) {
		t.Run(name, func(t *testing.T) {
			if err := b.Set(ctx, "a", strings.Repeat("x", 60)); err != nil {
				t.Fatalf("Set within quota: %v", err)
			}

			err := b.Set(ctx, "b", strings.Repeat("y", 60))
			if !errors.Is(err, ErrQuotaExceeded) {
				t.Fatalf("Set over quota = %v, want ErrQuotaExceeded", err)
			}
			if _, err := b.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
				t.Errorf("rejected value was stored")
			}

			if err := b.Set(ctx, "a", strings.Repeat("z", 200)); !errors.Is(err, ErrQuotaExceeded) {
				t.Fatalf("oversized overwrite = %v", err)
			}
			if v, _ := b.Get(ctx, "a"); v != strings.Repeat("x", 60) {
				t.Errorf("prior value lost after rejected overwrite")
			}

			// Replacing a value only counts the new size.
			if err := b.Set(ctx, "a", strings.Repeat("w", 90)); err != nil {
				t.Errorf("overwrite within quota: %v", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, "memory:", 0)
	if err != nil {
		t.Fatalf("Open(memory:): %v", err)
	}
	b.Close()

	b, err = Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "nested", "kv.db"), 0)
	if err != nil {
		t.Fatalf("Open(sqlite:): %v", err)
	}
	b.Close()

	mr := miniredis.RunT(t)
	b, err = Open(ctx, "redis://"+mr.Addr()+"/0", 0)
	if err != nil {
		t.Fatalf("Open(redis://): %v", err)
	}
	b.Close()

	if _, err := Open(ctx, "ftp://nope", 0); err == nil {
		t.Error("Open accepted an unknown scheme")
	}
}

func TestRedisKeepsKeysInOneHash(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rd, err := OpenRedis(ctx, "redis://"+mr.Addr()+"/0", 0)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer rd.Close()

	if err := rd.Set(ctx, "memory-game-images", `["/a.svg"]`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got := mr.HGet(RedisHash, "memory-game-images"); got != `["/a.svg"]` {
		t.Errorf("hash field = %q", got)
	}
	if mr.Exists("memory-game-images") {
		t.Error("value stored as a top-level key")
	}
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := OpenRedis(context.Background(), "redis://"+addr+"/0", 0); err == nil {
		t.Error("OpenRedis succeeded without a server")
	}
}
