package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a backend holds no live entry for a key
var ErrMiss = errors.New("cache miss")

// Backend stores encoded run results under already namespaced keys
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Kind() string
}

// DefaultMaxEntries bounds the in-process backend
const DefaultMaxEntries = 256

// Memory keeps up to maxEntries results in process. When full it drops expired
// entries first, then the one stored earliest.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	maxEntries int
	now        func() time.Time
}

type memEntry struct {
	data    []byte
	stored  time.Time
	expires time.Time
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{entries: make(map[string]memEntry), maxEntries: maxEntries, now: time.Now}
}

func (m *Memory) Kind() string { return "memory" }

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.data...), nil
}

func (m *Memory) Save(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evict(now)
	}
	e := memEntry{data: append([]byte(nil), val...), stored: now}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// evict frees at least one slot; callers hold mu
func (m *Memory) evict(now time.Time) {
	for k, e := range m.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	var oldest string
	var oldestAt time.Time
	for k, e := range m.entries {
		if oldest == "" || e.stored.Before(oldestAt) {
			oldest, oldestAt = k, e.stored
		}
	}
	delete(m.entries, oldest)
}

// Redis shares results between server instances
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedis wraps an existing client; each call is bounded by timeout
func NewRedis(client *redis.Client, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Redis{client: client, timeout: timeout}
}

func (r *Redis) Kind() string { return "redis" }

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Save(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// NewAuto uses Redis when REDIS_ADDR is set and memory otherwise
func NewAuto() Backend {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedis(redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		}), 0)
	}
	return NewMemory(DefaultMaxEntries)
}
