package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisLocker(rdb, Config{Prefix: "seat", TTL: time.Minute, Wait: wait, RetryEvery: 5 * time.Millisecond}), mr
}

func TestLockAndRelease(t *testing.T) {
	l, mr := newLocker(t, 0)

	release, err := l.Lock(context.Background(), "cat-b", "cat-a", "cat-a")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !mr.Exists("seat:cat-a") || !mr.Exists("seat:cat-b") {
		t.Fatalf("expected both keys held")
	}
	if ttl := mr.TTL("seat:cat-a"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %s", ttl)
	}
	release()
	if mr.Exists("seat:cat-a") || mr.Exists("seat:cat-b") {
		t.Fatalf("expected keys released")
	}
}

func TestLockContended(t *testing.T) {
	l, mr := newLocker(t, 20*time.Millisecond)

	if err := mr.Set("seat:cat-b", "someone-else"); err != nil {
		t.Fatal(err)
	}
	_, err := l.Lock(context.Background(), "cat-a", "cat-b")
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if mr.Exists("seat:cat-a") {
		t.Fatalf("expected partial locks released")
	}
	if v, _ := mr.Get("seat:cat-b"); v != "someone-else" {
		t.Fatalf("expected foreign lock untouched, got %q", v)
	}
}

func TestReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newLocker(t, 0)

	release, err := l.Lock(context.Background(), "cat-a")
	if err != nil {
		t.Fatal(err)
	}
	// Our lock expired and someone else took the key.
	if err := mr.Set("seat:cat-a", "other"); err != nil {
		t.Fatal(err)
	}
	release()
	if v, _ := mr.Get("seat:cat-a"); v != "other" {
		t.Fatalf("expected foreign lock kept, got %q", v)
	}
}
