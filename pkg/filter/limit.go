package filter

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/ratelimit"
)

// KeyFunc extracts the rate-limit key from an Invocation; defaults to
// interface+method if nil.
type KeyFunc func(inv *Invocation) string

func defaultKeyFunc(inv *Invocation) string { return inv.Interface + "#" + inv.Method }

// LimitFilter enforces ratelimit.Limiter against each call, grounded
// directly on the teacher's pkg/interceptors.RateLimitInterceptor (fail
// open on limiter error, reject with a typed error on ResourceExhausted)
// — adapted to joyerr.CodeOverload in place of a gRPC status code.
type LimitFilter struct {
	priority int
	limiter  ratelimit.Limiter
	keyFunc  KeyFunc
}

func NewLimitFilter(priority int, limiter ratelimit.Limiter, keyFunc KeyFunc) *LimitFilter {
	if keyFunc == nil {
		keyFunc = defaultKeyFunc
	}
	return &LimitFilter{priority: priority, limiter: limiter, keyFunc: keyFunc}
}

func (f *LimitFilter) Name() string  { return "limit" }
func (f *LimitFilter) Priority() int { return f.priority }

func (f *LimitFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	key := f.keyFunc(inv)
	allowed, err := f.limiter.Allow(ctx, key)
	if err != nil {
		// Fail open: a limiter outage must not block traffic.
		return next(ctx, inv)
	}
	if !allowed {
		return nil, joyerr.New(joyerr.CodeOverload, "rate limit exceeded for "+key)
	}
	return next(ctx, inv)
}
