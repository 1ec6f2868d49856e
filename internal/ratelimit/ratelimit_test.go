package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAllowConsumesTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(rdb, 2, time.Minute, "submit")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "user-1")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("third request within the window should be limited")
	}

	// A different key has its own bucket.
	ok, _ = l.Allow(ctx, "user-2")
	if !ok {
		t.Fatal("second user should not be limited")
	}
}

func TestAllowWithoutRedis(t *testing.T) {
	l := New(nil, 1, time.Minute, "")
	ok, err := l.Allow(context.Background(), "anyone")
	if err != nil || !ok {
		t.Fatalf("nil redis must allow: ok=%v err=%v", ok, err)
	}
}
