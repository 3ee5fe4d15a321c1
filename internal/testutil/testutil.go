//go:build integration

// Package testutil provides test helpers for integration tests that need a
// real Redis server.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisDB is the database index integration tests run in. It is flushed
// before each test, so it must not hold anything else.
const RedisDB = 15

// RedisAddr returns the address of the test Redis server (IP:port).
// It reads BIRDSYNC_TEST_REDIS_ADDR and falls back to the local default port.
func RedisAddr() string {
	if addr := os.Getenv("BIRDSYNC_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

// SkipIfNoRedis skips the test if the test Redis server is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: RedisDB})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis at %s not reachable: %v", RedisAddr(), err)
	}
}
