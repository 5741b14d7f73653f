package wheel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWheel_FiresAfterDeadline(t *testing.T) {
	w := New(5*time.Millisecond, 16)
	defer w.Stop()

	fired := make(chan struct{})
	w.After(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("task did not fire within expected window")
	}
}

func TestWheel_CancelPreventsFire(t *testing.T) {
	w := New(5*time.Millisecond, 16)
	defer w.Stop()

	var fired atomic.Bool
	task := w.After(30*time.Millisecond, func() { fired.Store(true) })
	task.Cancel()

	time.Sleep(80 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestWheel_CancelAfterFireIsNoop(t *testing.T) {
	w := New(5*time.Millisecond, 16)
	defer w.Stop()

	fired := make(chan struct{})
	task := w.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("task did not fire")
	}

	task.Cancel() // must not panic
}

func TestWheel_MultiRevolutionDeadline(t *testing.T) {
	// granularity*slots gives one revolution; schedule a deadline spanning
	// several revolutions and confirm it still fires near its deadline.
	w := New(2*time.Millisecond, 4)
	defer w.Stop()

	start := time.Now()
	fired := make(chan struct{})
	w.After(50*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("multi-revolution task never fired")
	}
}

func TestWheel_StopIsIdempotent(t *testing.T) {
	w := New(5*time.Millisecond, 8)
	w.Stop()
	w.Stop() // must not panic or block
}
