package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockMutualExclusion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	l1 := NewRedisLock(client, "campaign-send:c1", time.Minute)
	l2 := NewRedisLock(client, "campaign-send:c1", time.Minute)

	ok, err := l1.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = l2.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire succeeded while lock held")
	}

	if err := l1.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = l2.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyOwn(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	owner := NewRedisLock(client, "campaign-send:c1", time.Minute)
	stranger := NewRedisLock(client, "campaign-send:c1", time.Minute)

	if ok, _ := owner.Acquire(ctx); !ok {
		t.Fatal("owner acquire failed")
	}

	// A non-owner release must not free the lock.
	if err := stranger.Release(ctx); err != nil {
		t.Fatalf("stranger release: %v", err)
	}
	if ok, _ := stranger.Acquire(ctx); ok {
		t.Fatal("lock freed by non-owner release")
	}
}

func TestRedisLockDifferentKeysIndependent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	l1 := NewRedisLock(client, "campaign-send:c1", time.Minute)
	l2 := NewRedisLock(client, "campaign-send:c2", time.Minute)

	if ok, _ := l1.Acquire(ctx); !ok {
		t.Fatal("c1 acquire failed")
	}
	if ok, _ := l2.Acquire(ctx); !ok {
		t.Fatal("c2 acquire should be independent of c1")
	}
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()

	l1 := NewLocalLock("campaign-send:c1")
	l2 := NewLocalLock("campaign-send:c1")

	ok, _ := l1.Acquire(ctx)
	if !ok {
		t.Fatal("first acquire failed")
	}
	if ok, _ = l2.Acquire(ctx); ok {
		t.Fatal("second acquire succeeded while held")
	}

	// Release by a non-holder is a no-op.
	if err := l2.Release(ctx); err != nil {
		t.Fatalf("non-holder release: %v", err)
	}
	if ok, _ = l2.Acquire(ctx); ok {
		t.Fatal("lock freed by non-holder release")
	}

	if err := l1.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ = l2.Acquire(ctx); !ok {
		t.Fatal("acquire after release failed")
	}
	l2.Release(ctx)
}
