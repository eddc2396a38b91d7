package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiterWindow(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	c := Wrap(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	defer c.Close()

	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:10.0.0.1", 3, 200*time.Millisecond)
		if err != nil || !ok {
			t.Fatalf("request %d: allowed=%v err=%v", i, ok, err)
		}
	}
	if ok, err := rl.Allow(ctx, "api:10.0.0.1", 3, 200*time.Millisecond); err != nil || ok {
		t.Fatalf("fourth request: allowed=%v err=%v", ok, err)
	}
	if ok, _ := rl.Allow(ctx, "api:10.0.0.2", 3, 200*time.Millisecond); !ok {
		t.Fatal("other client shares the budget")
	}
	if !s.Exists("ratelimit:api:10.0.0.1") {
		t.Fatal("window key not written")
	}

	time.Sleep(250 * time.Millisecond)
	if ok, err := rl.Allow(ctx, "api:10.0.0.1", 3, 200*time.Millisecond); err != nil || !ok {
		t.Fatalf("after window: allowed=%v err=%v", ok, err)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := &RateLimiter{}
	ok, err := rl.Allow(context.Background(), "api:x", 0, time.Second)
	if err != nil || !ok {
		t.Fatalf("limit 0 must allow, got %v %v", ok, err)
	}
}
