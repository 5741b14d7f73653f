package filter

import (
	"context"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/cache"
	"github.com/lwbtt0915/joyrpc/pkg/codec"
)

// CacheKeyFunc derives a cache key for inv, or reports cacheable=false to
// skip caching for this call (e.g. a write method).
type CacheKeyFunc func(inv *Invocation) (key string, cacheable bool)

// CacheFilter short-circuits a call with a cached Reply on a result-cache
// hit, and populates the cache on a miss (spec §4.7 "may short-circuit
// with a synthetic Response (e.g., result-cache hit)"). T is the concrete
// reply type this filter instance caches; one CacheFilter is bound to one
// method's reply shape, matching how the teacher's own per-solver cache
// (pkg/cache.SolverCache, now superseded) was bound to one result type.
//
// Grounded on the teacher's pkg/cache.Cache (Get/Set/TTL) used here as
// the Filter Chain's result store instead of an HTTP-handler-level cache.
type CacheFilter[T any] struct {
	priority int
	store    cache.Cache
	ttl      time.Duration
	codec    codec.Codec
	keyFunc  CacheKeyFunc
}

func NewCacheFilter[T any](priority int, store cache.Cache, ttl time.Duration, keyFunc CacheKeyFunc) *CacheFilter[T] {
	return &CacheFilter[T]{priority: priority, store: store, ttl: ttl, codec: codec.JSON, keyFunc: keyFunc}
}

func (f *CacheFilter[T]) Name() string  { return "cache" }
func (f *CacheFilter[T]) Priority() int { return f.priority }

func (f *CacheFilter[T]) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	key, cacheable := f.keyFunc(inv)
	if !cacheable {
		return next(ctx, inv)
	}

	if raw, err := f.store.Get(ctx, key); err == nil {
		var reply T
		if decErr := f.codec.Unmarshal(raw, &reply); decErr == nil {
			return &Result{Reply: reply}, nil
		}
	}

	res, err := next(ctx, inv)
	if err != nil || res == nil || res.Err != nil {
		return res, err
	}

	reply, ok := res.Reply.(T)
	if !ok {
		return res, err
	}
	if raw, encErr := f.codec.Marshal(reply); encErr == nil {
		_ = f.store.Set(ctx, key, raw, f.ttl)
	}
	return res, err
}
