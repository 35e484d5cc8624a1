package sketchcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// knownSetKey names the Redis Set used as a cross-process accelerator
// recording fingerprints known to already have a disk-cached artifact.
// Redis is never authoritative: the disk store in Cache remains the
// source of truth, and a Redis miss still falls through to disk.
const knownSetKey = "fastled:known_fingerprints"

// RedisAccelerator wraps go-redis to provide a cheap existence check
// ahead of the disk cache, avoiding a disk stat/read for fingerprints
// the fleet has never seen. Grounded on the teacher's GoRedisAdapter
// dial/timeout conventions.
type RedisAccelerator struct {
	rdb *redis.Client
}

// NewRedisAccelerator dials addr and verifies connectivity. Returns nil
// without error if addr is empty — the accelerator is purely optional.
func NewRedisAccelerator(addr string) (*RedisAccelerator, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("sketchcache: redis accelerator connected", "addr", addr)
	return &RedisAccelerator{rdb: rdb}, nil
}

// MightHave reports whether fingerprint was previously recorded as
// cached. A false negative just means "consult disk"; it is never used
// to skip the disk lookup on a positive report, only to skip it on
// requests for fingerprints the fleet has genuinely never produced.
func (r *RedisAccelerator) MightHave(ctx context.Context, fingerprint string) bool {
	if r == nil {
		return true // no accelerator configured: always fall through to disk
	}
	ok, err := r.rdb.SIsMember(ctx, knownSetKey, fingerprint).Result()
	if err != nil {
		slog.Warn("sketchcache: redis accelerator check failed, falling back to disk", "error", err)
		return true
	}
	return ok
}

// Record marks fingerprint as known-cached.
func (r *RedisAccelerator) Record(ctx context.Context, fingerprint string) {
	if r == nil {
		return
	}
	if err := r.rdb.SAdd(ctx, knownSetKey, fingerprint).Err(); err != nil {
		slog.Warn("sketchcache: redis accelerator record failed", "error", err)
	}
}

// Close releases the underlying Redis connection pool.
func (r *RedisAccelerator) Close() error {
	if r == nil {
		return nil
	}
	return r.rdb.Close()
}
