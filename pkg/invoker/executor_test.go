package invoker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

func TestExecutor_UnboundedRunsImmediately(t *testing.T) {
	e := NewExecutor(0, RejectPolicyReject, 0)
	var ran atomic.Bool
	require.NoError(t, e.Run(func() { ran.Store(true) }))
	assert.True(t, ran.Load())
}

func TestExecutor_RejectPolicyFailsWhenSaturated(t *testing.T) {
	e := NewExecutor(1, RejectPolicyReject, 0)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.Run(func() { <-release })
	}()
	time.Sleep(20 * time.Millisecond) // let the first call claim the only slot

	err := e.Run(func() { t.Fatal("must not run while saturated") })
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeOverload, je.Code)

	close(release)
	wg.Wait()
}

func TestExecutor_CallerRunsExecutesInlineWhenSaturated(t *testing.T) {
	e := NewExecutor(1, RejectPolicyCallerRuns, 0)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.Run(func() { <-release })
	}()
	time.Sleep(20 * time.Millisecond)

	var ran atomic.Bool
	require.NoError(t, e.Run(func() { ran.Store(true) }))
	assert.True(t, ran.Load())

	close(release)
	wg.Wait()
}

func TestExecutor_WaitBoundedSucceedsOnceSlotFrees(t *testing.T) {
	e := NewExecutor(1, RejectPolicyWaitBounded, time.Second)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.Run(func() {
			<-release
		})
	}()
	time.Sleep(20 * time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	var ran atomic.Bool
	require.NoError(t, e.Run(func() { ran.Store(true) }))
	assert.True(t, ran.Load())
	wg.Wait()
}

func TestExecutor_WaitBoundedTimesOut(t *testing.T) {
	e := NewExecutor(1, RejectPolicyWaitBounded, 20*time.Millisecond)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.Run(func() { <-release })
	}()
	time.Sleep(10 * time.Millisecond)

	err := e.Run(func() { t.Fatal("must not run before timeout") })
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeOverload, je.Code)

	close(release)
	wg.Wait()
}
