//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/birdsync/birdsync/internal/testutil"
)

func newIntegrationStore(t *testing.T) *Redis {
	t.Helper()
	testutil.FlushDB(t, testutil.RedisAddr(), testutil.RedisDB)
	r := NewRedis(Options{Addr: testutil.RedisAddr(), DB: testutil.RedisDB, Timeout: 5 * time.Second})
	if err := r.Connect(context.Background()); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedis_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	r := newIntegrationStore(t)

	fields := map[string]string{"destination": "10.0.0.0/24", "next_hop": ""}
	if err := r.Set(ctx, "route:it:10.0.0.0/24", fields, 30*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := r.Get(ctx, "route:it:10.0.0.0/24")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["destination"] != "10.0.0.0/24" {
		t.Errorf("destination = %q", got["destination"])
	}
	if _, ok := got["next_hop"]; !ok {
		t.Error("empty field was not stored")
	}

	ttl := testutil.TTL(t, testutil.RedisAddr(), testutil.RedisDB, "route:it:10.0.0.0/24")
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestRedis_SetOverString(t *testing.T) {
	ctx := context.Background()
	r := newIntegrationStore(t)

	testutil.WriteString(t, testutil.RedisAddr(), testutil.RedisDB, "route:it:10.9.0.0/16", "stale")
	if err := r.Set(ctx, "route:it:10.9.0.0/16", map[string]string{"a": "b"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	typ, err := r.Type(ctx, "route:it:10.9.0.0/16")
	if err != nil || typ != TypeHash {
		t.Errorf("Type() = %q, %v", typ, err)
	}
}

func TestRedis_KeysEscapesPattern(t *testing.T) {
	ctx := context.Background()
	r := newIntegrationStore(t)

	r.Set(ctx, "route:h*:10.0.0.0/24", map[string]string{"a": "b"}, time.Minute)
	r.Set(ctx, "route:hx:10.0.0.0/24", map[string]string{"a": "b"}, time.Minute)

	keys, err := r.Keys(ctx, "route:h*:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "route:h*:10.0.0.0/24" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestRedis_Batch(t *testing.T) {
	ctx := context.Background()
	r := newIntegrationStore(t)

	r.Set(ctx, "route:it:old", map[string]string{"a": "b"}, time.Minute)
	b := r.Batch()
	b.Delete("route:it:old")
	b.Set("route:it:new", map[string]string{"a": "c"}, time.Minute)
	if err := b.Exec(ctx); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if ok, _ := r.Exists(ctx, "route:it:old"); ok {
		t.Error("old key survived")
	}
	if ok, _ := r.Exists(ctx, "route:it:new"); !ok {
		t.Error("new key missing")
	}
}
