package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"SessionChat/internal/backend"
	"SessionChat/internal/session"
)

// CachedResponse represents a cached backend reply
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from messages
func GenerateCacheKey(messages []session.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// MaxEntries bounds the replies a Backend keeps
const MaxEntries = 1000

// Backend answers repeated transcripts from memory before asking the wrapped backend
type Backend struct {
	next       backend.Backend
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]CachedResponse
	order   []string // oldest store first
}

// Wrap decorates next with a reply cache; ttl <= 0 keeps entries until
// MaxEntries newer replies push them out
func Wrap(next backend.Backend, ttl time.Duration, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		next:       next,
		ttl:        ttl,
		maxEntries: MaxEntries,
		now:        time.Now,
		logger:     logger,
		entries:    map[string]CachedResponse{},
	}
}

func (b *Backend) Name() string { return b.next.Name() }

// Reply serves a cached reply when the identical transcript was answered before
func (b *Backend) Reply(ctx context.Context, messages []session.Message) (string, error) {
	cacheKey := GenerateCacheKey(messages)
	if cached, ok := b.lookup(cacheKey); ok {
		return cached, nil
	}

	response, err := b.next.Reply(ctx, messages)
	if err != nil {
		return "", err
	}

	b.store(cacheKey, response)
	b.logger.Debug("cached response", "key", cacheKey[:16])
	return response, nil
}

// Len reports how many replies are held
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Backend) lookup(cacheKey string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cached, ok := b.entries[cacheKey]
	if !ok {
		return "", false
	}
	if b.expired(cached, b.now()) {
		b.remove(cacheKey)
		return "", false
	}
	b.logger.Debug("cache hit", "key", cacheKey[:16])
	return cached.Response, true
}

// store records response and drops expired entries, then the oldest ones
// while over capacity
func (b *Backend) store(cacheKey, response string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if _, ok := b.entries[cacheKey]; ok {
		b.remove(cacheKey)
	}
	b.entries[cacheKey] = CachedResponse{Response: response, Timestamp: now}
	b.order = append(b.order, cacheKey)

	evicted := 0
	for len(b.order) > 0 {
		oldest := b.order[0]
		if !b.expired(b.entries[oldest], now) && len(b.order) <= b.maxEntries {
			break
		}
		delete(b.entries, oldest)
		b.order = b.order[1:]
		evicted++
	}
	if evicted > 0 {
		b.logger.Debug("cache evicted", "count", evicted, "size", len(b.entries))
	}
}

func (b *Backend) expired(cached CachedResponse, now time.Time) bool {
	return b.ttl > 0 && now.Sub(cached.Timestamp) > b.ttl
}

// remove drops cacheKey; b.mu must be held
func (b *Backend) remove(cacheKey string) {
	delete(b.entries, cacheKey)
	for i, k := range b.order {
		if k == cacheKey {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
