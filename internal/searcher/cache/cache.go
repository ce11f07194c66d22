// Package cache stores rendered search responses in Redis so that replicas
// share repeat work. Concurrent misses for the same key are collapsed with
// singleflight, and Redis calls go through a circuit breaker so an outage
// only disables caching.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pydash/methodref/internal/searcher/executor"
	pkgredis "github.com/pydash/methodref/pkg/redis"
	"github.com/pydash/methodref/pkg/resilience"
)

const keyPrefix = "methodref:search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache caches *executor.Response values keyed by normalized query and
// limit.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache. breaker may be nil.
func New(backend Backend, ttl time.Duration, breaker *resilience.CircuitBreaker) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: breaker,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// Get returns the cached response for query and limit.
func (c *QueryCache) Get(ctx context.Context, query string, limit int) (*executor.Response, bool) {
	key := BuildKey(query, limit)
	var data string
	err := c.guard(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if data == "" {
		c.misses.Add(1)
		return nil, false
	}
	var resp executor.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &resp, true
}

// Set stores resp under query and limit. Failures are logged, not returned.
func (c *QueryCache) Set(ctx context.Context, query string, limit int, resp *executor.Response) {
	key := BuildKey(query, limit)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.guard(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or computes, stores and returns
// a fresh one. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	limit int,
	computeFn func() (*executor.Response, error),
) (*executor.Response, bool, error) {
	if resp, ok := c.Get(ctx, query, limit); ok {
		return resp, true, nil
	}
	key := BuildKey(query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Response), false, nil
}

// Invalidate deletes every cached search response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.guard(func() error {
		var err error
		deleted, err = c.backend.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey derives the cache key. Queries that normalize to the same search
// term share a key; limit -1 stands for "all".
func BuildKey(query string, limit int) string {
	term := strings.ToLower(strings.TrimSpace(query))
	raw := fmt.Sprintf("%s\x00limit=%d", term, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
