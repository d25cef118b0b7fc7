// Package lock provides Redis backed mutual exclusion between engine
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when a key stays held past the wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

type Config struct {
	Prefix     string
	TTL        time.Duration
	Wait       time.Duration
	RetryEvery time.Duration
}

type RedisLocker struct {
	rdb *redis.Client
	cfg Config
}

func NewRedisLocker(rdb *redis.Client, cfg Config) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 50 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "lock"
	}
	return &RedisLocker{rdb: rdb, cfg: cfg}
}

// Lock acquires every key, in sorted order so two callers sharing keys
// cannot deadlock.  On failure the keys taken so far are released.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = dedupe(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func() {
		// Release must still run when the caller's context is done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, k := range held {
			releaseScript.Run(rctx, l.rdb, []string{k}, token) //nolint:errcheck
		}
	}

	for _, k := range keys {
		key := l.cfg.Prefix + ":" + k
		if err := l.acquire(ctx, key, token); err != nil {
			release()
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.cfg.Wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrNotAcquired
		}
		t := time.NewTimer(l.cfg.RetryEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func dedupe(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
