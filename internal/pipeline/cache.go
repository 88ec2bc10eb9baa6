package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResponseCache keeps successful response bodies keyed by request URL.
// A cache may only shorten a run, never change what it returns.
type ResponseCache interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Add(ctx context.Context, url string, body []byte)
}

// ResponseStore persists response bodies between runs. *store.Store implements it.
type ResponseStore interface {
	GetResponse(ctx context.Context, url string, now time.Time) ([]byte, bool, error)
	PutResponse(ctx context.Context, url string, body []byte, expiresAt time.Time) error
}

type lruResponseCache struct {
	cache *expirable.LRU[string, []byte]
}

// NewLRUResponseCache holds up to size bodies, each for at most ttl.
func NewLRUResponseCache(size int, ttl time.Duration) ResponseCache {
	return lruResponseCache{
		cache: expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (c lruResponseCache) Get(_ context.Context, url string) ([]byte, bool) {
	return c.cache.Get(url)
}

func (c lruResponseCache) Add(_ context.Context, url string, body []byte) {
	c.cache.Add(url, body)
}

// persistentCache answers from the in-process cache first and falls back
// to the store, so a rerun within ttl does not hit the upstream again.
// Store errors are logged and treated as misses.
type persistentCache struct {
	front ResponseCache
	store ResponseStore
	ttl   time.Duration
	now   func() time.Time
}

// NewPersistentResponseCache layers front over store. Entries written to
// the store expire after ttl.
func NewPersistentResponseCache(front ResponseCache, store ResponseStore, ttl time.Duration) ResponseCache {
	if front == nil {
		front = NoCache()
	}
	return &persistentCache{front: front, store: store, ttl: ttl, now: time.Now}
}

func (c *persistentCache) Get(ctx context.Context, url string) ([]byte, bool) {
	if body, ok := c.front.Get(ctx, url); ok {
		return body, true
	}
	body, ok, err := c.store.GetResponse(ctx, url, c.now())
	if err != nil {
		slog.WarnContext(ctx, "response cache lookup failed", "url", url, "err", err)
		return nil, false
	}
	if ok {
		c.front.Add(ctx, url, body)
	}
	return body, ok
}

func (c *persistentCache) Add(ctx context.Context, url string, body []byte) {
	c.front.Add(ctx, url, body)
	if err := c.store.PutResponse(ctx, url, body, c.now().Add(c.ttl)); err != nil {
		slog.WarnContext(ctx, "response cache write failed", "url", url, "err", err)
	}
}

type passthroughCache struct{}

// NoCache never stores anything
func NoCache() ResponseCache { return passthroughCache{} }

func (passthroughCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (passthroughCache) Add(context.Context, string, []byte)        {}

// SelectResponseCache picks the cache strategy once, at startup. With a
// non-nil store, cached bodies outlive the process; size only bounds the
// in-process layer in front of it.
func SelectResponseCache(enabled bool, size int, ttl time.Duration, store ResponseStore) ResponseCache {
	if !enabled || ttl <= 0 {
		return NoCache()
	}
	var front ResponseCache = NoCache()
	if size > 0 {
		front = NewLRUResponseCache(size, ttl)
	}
	if store != nil {
		return NewPersistentResponseCache(front, store, ttl)
	}
	return front
}
