package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CounterStore increments fixed-window counters. Keys already encode the
// rule, the identity, and the window index, so backends only need atomic
// increment with expiry.
type CounterStore interface {
	// Incr adds one to key and returns the new count. ttl bounds how long
	// the key stays alive; backends may keep it slightly longer.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Reset drops all counters.
	Reset(ctx context.Context) error
}

// memoryCounters is the default single-process backend.
type memoryCounters struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounters creates an in-process counter store.
func NewMemoryCounters() CounterStore {
	return &memoryCounters{entries: make(map[string]*counterEntry)}
}

func (m *memoryCounters) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	e, ok := m.entries[key]
	if !ok || now.After(e.expiresAt) {
		m.entries[key] = &counterEntry{count: 1, expiresAt: now.Add(ttl)}
		// Opportunistic purge keeps the map bounded without a janitor
		// goroutine; expired windows are never read again.
		if len(m.entries) > 10000 {
			for k, v := range m.entries {
				if now.After(v.expiresAt) {
					delete(m.entries, k)
				}
			}
		}
		return 1, nil
	}

	e.count++
	return e.count, nil
}

func (m *memoryCounters) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*counterEntry)
	return nil
}

// redisCounters shares windows across gate instances.
type redisCounters struct {
	client *redis.Client
	prefix string
}

// NewRedisCounters creates a counter store backed by the given client.
func NewRedisCounters(client *redis.Client) CounterStore {
	return &redisCounters{client: client, prefix: "tenantgate:rl:"}
}

func (r *redisCounters) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	full := r.prefix + key

	n, err := r.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	if n == 1 {
		// First hit in the window owns setting the expiry.
		if err := r.client.Expire(ctx, full, ttl).Err(); err != nil {
			return n, fmt.Errorf("failed to set counter expiry: %w", err)
		}
	}

	return n, nil
}

func (r *redisCounters) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete counter: %w", err)
		}
	}
	return iter.Err()
}
