package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds dial, read, and write operations.
	Timeout time.Duration
}

// Redis is a Store backed by a Redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis store. No connection is made until first use;
// call Connect to verify reachability.
func NewRedis(opts Options) *Redis {
	ro := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.Timeout > 0 {
		ro.DialTimeout = opts.Timeout
		ro.ReadTimeout = opts.Timeout
		ro.WriteTimeout = opts.Timeout
	}
	return &Redis{client: redis.NewClient(ro)}
}

// Connect tests the connection
func (r *Redis) Connect(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis %s: %w", r.client.Options().Addr, err)
	}
	return nil
}

// Close closes the connection
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	return scanKeys(ctx, r.client, escapeGlob(prefix)+"*", 100)
}

func (r *Redis) Type(ctx context.Context, key string) (string, error) {
	return r.client.Type(ctx, key).Result()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *Redis) Get(ctx context.Context, key string) (map[string]string, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

func (r *Redis) Set(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	b := r.Batch()
	b.Set(key, fields, ttl)
	return b.Exec(ctx)
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Batch returns a MULTI/EXEC transaction: observers see all of its writes
// or none of them.
func (r *Redis) Batch() Batch {
	return &redisBatch{pipe: r.client.TxPipeline()}
}

type redisBatch struct {
	// Queued commands ignore their context; the one passed to Exec
	// bounds the round trip.
	pipe   redis.Pipeliner
	queued int
}

func (b *redisBatch) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(context.Background(), keys...)
	b.queued++
}

// Set queues DEL + HSET + EXPIRE so the key never keeps fields or a type
// left behind by another writer.
func (b *redisBatch) Set(key string, fields map[string]string, ttl time.Duration) {
	ctx := context.Background()
	b.pipe.Del(ctx, key)
	if len(fields) > 0 {
		args := make([]interface{}, 0, len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
		b.pipe.HSet(ctx, key, args...)
	}
	if ttl > 0 {
		b.pipe.Expire(ctx, key, ttl)
	}
	b.queued++
}

func (b *redisBatch) Exec(ctx context.Context) error {
	if b.queued == 0 {
		return nil
	}
	_, err := b.pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("pipeline exec: %w", err)
	}
	return nil
}

// scanKeys iterates Redis keys matching the given pattern using cursor-based
// SCAN instead of the blocking O(N) KEYS command. The count hint controls
// how many keys Redis returns per iteration (not an exact limit).
func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	seen := make(map[string]bool)
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		// SCAN may return a key more than once
		for _, k := range batch {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
