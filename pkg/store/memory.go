package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store with Redis-like expiry semantics. The clock
// is injectable so expiry can be exercised without waiting.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	kind    string
	fields  map[string]string
	value   string
	expires time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetString stores a plain string value, as a foreign writer might.
func (m *Memory) SetString(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memEntry{kind: TypeString, value: value}
}

// TTL returns the remaining lifetime of key; zero when absent or persistent.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil || e.expires.IsZero() {
		return 0
	}
	return e.expires.Sub(m.now())
}

// live returns the entry at key, evicting it first if it has expired.
// Callers hold m.mu.
func (m *Memory) live(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) && m.live(k) != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Type(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.live(key); e != nil {
		return e.kind, nil
	}
	return TypeNone, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(key) != nil, nil
}

func (m *Memory) Get(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil || e.kind != TypeHash {
		return nil, nil
	}
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	b := m.Batch()
	b.Set(key, fields, ttl)
	return b.Exec(ctx)
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Batch returns a batch applied under a single lock acquisition.
func (m *Memory) Batch() Batch {
	return &memBatch{m: m}
}

type memBatch struct {
	m   *Memory
	ops []func()
}

func (b *memBatch) Delete(keys ...string) {
	keys = append([]string(nil), keys...)
	b.ops = append(b.ops, func() {
		for _, k := range keys {
			delete(b.m.entries, k)
		}
	})
}

func (b *memBatch) Set(key string, fields map[string]string, ttl time.Duration) {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	b.ops = append(b.ops, func() {
		if len(cp) == 0 {
			// an empty HSET creates nothing
			delete(b.m.entries, key)
			return
		}
		e := &memEntry{kind: TypeHash, fields: cp}
		if ttl > 0 {
			e.expires = b.m.now().Add(ttl)
		}
		b.m.entries[key] = e
	})
}

func (b *memBatch) Exec(_ context.Context) error {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	for _, op := range b.ops {
		op()
	}
	b.ops = nil
	return nil
}
