package alert

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses repeat alerts for the same user and rule inside a
// cooldown window, so a burst of bulk-access events produces one page, not
// fifty.
type Deduper interface {
	// ShouldSend reports whether no equivalent alert fired within the
	// window, claiming the slot when it returns true.
	ShouldSend(ctx context.Context, key string) (bool, error)
}

// MemoryDeduper is the single-process Deduper.
type MemoryDeduper struct {
	mu     sync.Mutex
	window time.Duration
	sent   map[string]time.Time
}

// NewMemoryDeduper creates an in-process deduper with the given window.
func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	return &MemoryDeduper{window: window, sent: make(map[string]time.Time)}
}

func (d *MemoryDeduper) ShouldSend(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.sent[key]; ok && now.Sub(last) < d.window {
		return false, nil
	}
	d.sent[key] = now

	// Opportunistic cleanup keeps the map from growing without bound.
	for k, t := range d.sent {
		if now.Sub(t) >= d.window {
			delete(d.sent, k)
		}
	}
	return true, nil
}

// RedisDeduper shares the dedupe window across replicas via SET NX + TTL.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisDeduper creates a Redis-backed deduper.
func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, window: window, prefix: "phiguard:alert:"}
}

func (d *RedisDeduper) ShouldSend(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.window).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
