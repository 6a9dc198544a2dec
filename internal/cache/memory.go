package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	value   string
	count   int64
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Message is a payload published on a MemoryCache channel.
type Message struct {
	Channel string
	Payload []byte
}

// MemoryCache is an in-process Cache for the CLI and tests. Published
// messages are kept in order and can be read back with Published.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	published []Message
	now       func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *MemoryCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[JobStatusKey(jobID)] = memEntry{value: status, expires: c.expiry(ttl)}
	return nil
}

func (c *MemoryCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[JobStatusKey(jobID)]
	if !ok || e.expired(c.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		e = memEntry{}
	}
	e.count++
	e.expires = c.expiry(expiry)
	c.entries[key] = e
	return e.count, nil
}

func (c *MemoryCache) Publish(_ context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, Message{Channel: channel, Payload: append([]byte(nil), payload...)})
	return nil
}

// Published returns every message published so far.
func (c *MemoryCache) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.published...)
}

var _ Cache = (*MemoryCache)(nil)
