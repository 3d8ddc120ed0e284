package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader reads JSON values through a Cache. Concurrent misses on the same key
// share one fetch. Cache failures are logged and never fail the read.
//
// Writers never patch cached values; they invalidate. Each key carries a
// generation bumped by Invalidate, and a fetch only fills the cache if no
// invalidation of its key happened while it ran.
type Loader struct {
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// NewLoader wraps c with the given entry TTL.
func NewLoader(c Cache, ttl time.Duration, log *zap.Logger) *Loader {
	return &Loader{cache: c, ttl: ttl, log: log, gen: make(map[string]uint64)}
}

// Load returns the cached value at key, or calls fetch and caches its result.
func Load[T any](ctx context.Context, l *Loader, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	data, err := l.cache.Get(ctx, key)
	if err == nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		l.log.Warn("dropping undecodable cache entry", zap.String("key", key))
		l.Invalidate(ctx, key)
	} else if !errors.Is(err, ErrCacheMiss) {
		l.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		gen := l.generation(key)
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.fill(ctx, key, gen, fresh)
		return fresh, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops keys so the next read re-syncs from the store. Fetches of
// these keys already in flight will not cache their result.
func (l *Loader) Invalidate(ctx context.Context, keys ...string) {
	l.mu.Lock()
	for _, k := range keys {
		l.gen[k]++
	}
	l.mu.Unlock()

	if err := l.cache.Delete(ctx, keys...); err != nil {
		l.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (l *Loader) generation(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen[key]
}

// fill stores v unless key was invalidated after gen was read. The lock is
// held across the write so an Invalidate cannot slip in between.
func (l *Loader) fill(ctx context.Context, key string, gen uint64, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen[key] != gen {
		l.log.Debug("skipping stale cache fill", zap.String("key", key))
		return
	}
	l.store(ctx, key, v)
}

func (l *Loader) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.log.Warn("encoding cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
		l.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
