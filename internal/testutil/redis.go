//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func newClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

// FlushDB flushes a specific Redis database. Tests are skipped, not failed,
// when Redis is unreachable.
func FlushDB(t *testing.T, addr string, db int) {
	t.Helper()
	SkipIfNoRedis(t)

	client := newClient(addr, db)
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// SeedRoutes writes route hashes keyed route:<host>:<destination>.
func SeedRoutes(t *testing.T, addr string, db int, host string, routes map[string]map[string]string) {
	t.Helper()

	client := newClient(addr, db)
	defer client.Close()

	ctx := context.Background()
	for dest, fields := range routes {
		key := "route:" + host + ":" + dest
		args := make([]interface{}, 0, len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
		if err := client.HSet(ctx, key, args...).Err(); err != nil {
			t.Fatalf("seeding %s: %v", key, err)
		}
	}
}

// WriteString stores a plain string at key, simulating a foreign writer.
func WriteString(t *testing.T, addr string, db int, key, value string) {
	t.Helper()

	client := newClient(addr, db)
	defer client.Close()

	if err := client.Set(context.Background(), key, value, 0).Err(); err != nil {
		t.Fatalf("writing %s: %v", key, err)
	}
}

// ReadEntry reads a hash from a specific Redis DB.
func ReadEntry(t *testing.T, addr string, db int, key string) map[string]string {
	t.Helper()

	client := newClient(addr, db)
	defer client.Close()

	vals, err := client.HGetAll(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return vals
}

// TTL returns the remaining time to live of key.
func TTL(t *testing.T, addr string, db int, key string) time.Duration {
	t.Helper()

	client := newClient(addr, db)
	defer client.Close()

	ttl, err := client.TTL(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading ttl of %s: %v", key, err)
	}
	return ttl
}

// Expire forces key to expire now, standing in for the passage of its TTL.
func Expire(t *testing.T, addr string, db int, key string) {
	t.Helper()

	client := newClient(addr, db)
	defer client.Close()

	if err := client.PExpire(context.Background(), key, time.Millisecond).Err(); err != nil {
		t.Fatalf("expiring %s: %v", key, err)
	}
	time.Sleep(5 * time.Millisecond)
}
