package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_PriorityOrdering(t *testing.T) {
	c := New(time.Second)

	var mu sync.Mutex
	var order []int

	record := func(n int) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}

	c.Register(Hook{Name: "high-2", Priority: 10, Run: record(2)})
	c.Register(Hook{Name: "low-0", Priority: 0, Run: record(0)})
	c.Register(Hook{Name: "high-2b", Priority: 10, Run: record(2)})
	c.Register(Hook{Name: "mid-1", Priority: 5, Run: record(1)})

	c.Shutdown(context.Background())

	require.Len(t, order, 4)
	// lower priority group always finishes before any higher-priority hook runs
	assert.Equal(t, 0, order[0])
	assert.Equal(t, 1, order[1])
	assert.ElementsMatch(t, []int{2, 2}, order[2:])
}

func TestShutdown_ParallelWithinGroup(t *testing.T) {
	c := New(time.Second)

	var running int32
	var maxConcurrent int32
	barrier := make(chan struct{})

	hookFn := func() func(context.Context) error {
		return func(context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				cur := atomic.LoadInt32(&maxConcurrent)
				if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
					break
				}
			}
			<-barrier
			atomic.AddInt32(&running, -1)
			return nil
		}
	}

	c.Register(Hook{Name: "a", Priority: 0, Run: hookFn()})
	c.Register(Hook{Name: "b", Priority: 0, Run: hookFn()})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(barrier)
	}()

	c.Shutdown(context.Background())
	assert.Equal(t, int32(2), maxConcurrent)
}

func TestShutdown_Idempotent(t *testing.T) {
	c := New(time.Second)
	var calls int32
	c.Register(Hook{Name: "once", Priority: 0, Run: func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})

	c.Shutdown(context.Background())
	c.Shutdown(context.Background())

	assert.Equal(t, int32(1), calls)
	assert.True(t, c.IsShuttingDown())
}

func TestShutdown_DeadlineExceededProceedsBestEffort(t *testing.T) {
	c := New(30 * time.Millisecond)

	var secondRan atomic.Bool
	c.Register(Hook{Name: "slow", Priority: 0, Run: func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}})
	c.Register(Hook{Name: "next", Priority: 1, Run: func(ctx context.Context) error {
		secondRan.Store(true)
		return nil
	}})

	start := time.Now()
	c.Shutdown(context.Background())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.True(t, secondRan.Load())
}

func TestShutdown_IsShuttingDownBeforeShutdown(t *testing.T) {
	c := New(time.Second)
	assert.False(t, c.IsShuttingDown())
}
