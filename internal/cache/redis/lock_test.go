package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

func TestLockManager(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	c := Wrap(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	defer c.Close()

	locks := NewLockManager(c)
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "import:ES", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locks.Acquire(ctx, "import:ES", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire = %v, want ErrLockHeld", err)
	}
	if _, err := locks.Acquire(ctx, "import:NQ", time.Minute); err != nil {
		t.Fatalf("other key: %v", err)
	}

	release()
	release()
	if s.Exists("lock:import:ES") {
		t.Fatal("lock key survived release")
	}
	if _, err := locks.Acquire(ctx, "import:ES", time.Minute); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func TestLockReleaseKeepsForeignHolder(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	c := Wrap(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	defer c.Close()

	locks := NewLockManager(c)
	release, err := locks.Acquire(context.Background(), "import:ES", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s.FastForward(2 * time.Second)
	if err := s.Set("lock:import:ES", "someone-else"); err != nil {
		t.Fatal(err)
	}

	release()
	if got, _ := s.Get("lock:import:ES"); got != "someone-else" {
		t.Fatalf("release dropped a foreign lock, value now %q", got)
	}
}
