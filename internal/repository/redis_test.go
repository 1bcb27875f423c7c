package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedisClient(mr.Addr())
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisClient_GetMissing(t *testing.T) {
	r, _ := newTestRedis(t)
	if _, err := r.Get(context.Background(), "nope"); !errors.Is(err, common.ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisClient_SetGetTTL(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	if err := r.Set(ctx, "user:1", `{"id":1}`, 72*time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := r.Get(ctx, "user:1")
	if err != nil || got != `{"id":1}` {
		t.Fatalf("unexpected Get result %q err=%v", got, err)
	}
	if ttl := mr.TTL("user:1"); ttl != 72*time.Hour {
		t.Fatalf("expected 72h ttl, got %v", ttl)
	}
}

func TestRedisClient_SetIfExists(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := r.SetIfExists(ctx, "user:2", "v1")
	if err != nil || ok {
		t.Fatalf("expected no write for missing key, ok=%v err=%v", ok, err)
	}
	if mr.Exists("user:2") {
		t.Fatalf("key must not be created")
	}

	if err := r.Set(ctx, "user:2", "v1", time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	mr.FastForward(10 * time.Minute)

	ok, err = r.SetIfExists(ctx, "user:2", "v2")
	if err != nil || !ok {
		t.Fatalf("expected overwrite, ok=%v err=%v", ok, err)
	}
	if v, _ := mr.Get("user:2"); v != "v2" {
		t.Fatalf("unexpected value %q", v)
	}
	if ttl := mr.TTL("user:2"); ttl != 50*time.Minute {
		t.Fatalf("expected ttl to be kept at 50m, got %v", ttl)
	}
}

func TestRedisClient_IncrExpireDel(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := r.Incr(ctx, "rate_limit:login:1.2.3.4")
		if err != nil || n != i {
			t.Fatalf("Incr #%d: n=%d err=%v", i, n, err)
		}
	}
	if ok, err := r.Expire(ctx, "rate_limit:login:1.2.3.4", time.Minute); err != nil || !ok {
		t.Fatalf("Expire: ok=%v err=%v", ok, err)
	}
	if err := r.Del(ctx, "rate_limit:login:1.2.3.4"); err != nil {
		t.Fatalf("Del error: %v", err)
	}
	if mr.Exists("rate_limit:login:1.2.3.4") {
		t.Fatalf("key should be gone")
	}
}
