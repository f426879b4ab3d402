package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	if !limiter.Allow(ctx, "input") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow(ctx, "input") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow(ctx, "input") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow(ctx, "generate") {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterSharedClient(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow(context.Background(), "") {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow(context.Background(), "unknown") {
		t.Fatalf("blank key should share the unknown bucket")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redisSrv.Close()
	if limiter.Allow(context.Background(), "input") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestFixedWindowLimiterRejectsNonPositiveLimit(t *testing.T) {
	if _, err := NewFixedWindowLimiter(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
