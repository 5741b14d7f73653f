// Package shutdown implements the process-wide graceful termination
// pipeline (spec §4.11): hooks register at an integer priority, hooks of
// equal priority run in parallel, and priority groups run strictly in
// order, each bounded by the global deadline.
//
// The pattern generalizes the teacher's server.waitForShutdown — listen
// for an OS signal or explicit Shutdown call, stop new work, drain
// in-flight work within a deadline, then force-stop — into an ordered,
// multi-component pipeline instead of one server's single GracefulStop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// Hook is one unit of graceful work, e.g. "stop accepting new invokes",
// "deregister from registry", "drain in-flight calls".
type Hook struct {
	Name     string
	Priority int
	Run      func(ctx context.Context) error
}

// Coordinator is the process-scoped singleton referenced by every other
// component (constructed once at startup and passed by reference, per
// spec §9 — no hidden package-level state).
type Coordinator struct {
	mu       sync.Mutex
	hooks    []Hook
	shutdown atomic.Bool
	deadline time.Duration
}

// New creates a Coordinator with the given global shutdown deadline.
func New(deadline time.Duration) *Coordinator {
	return &Coordinator{deadline: deadline}
}

// Register appends a hook; append is safe to call concurrently with Shutdown
// only before the latter has started (registering mid-shutdown is
// undefined, matching "hooks list append-safe" for the steady state).
func (c *Coordinator) Register(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// IsShuttingDown reports whether Shutdown has been invoked; other
// components poll this to refuse new work (spec §4.11).
func (c *Coordinator) IsShuttingDown() bool {
	return c.shutdown.Load()
}

// Shutdown sorts hooks ascending by priority, groups consecutive hooks of
// equal priority, and runs each group's members in parallel, waiting for
// the group to finish (or the global deadline to expire) before starting
// the next group. Shutdown is idempotent: a second call is a no-op.
func (c *Coordinator) Shutdown(ctx context.Context) {
	if !c.shutdown.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	hooks := append([]Hook(nil), c.hooks...)
	c.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Priority < hooks[j].Priority })

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	for i := 0; i < len(hooks); {
		j := i
		for j < len(hooks) && hooks[j].Priority == hooks[i].Priority {
			j++
		}
		group := hooks[i:j]
		runGroup(ctx, group)
		i = j
	}
}

func runGroup(ctx context.Context, group []Hook) {
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(len(group))
	for _, h := range group {
		h := h
		go func() {
			defer wg.Done()
			if err := h.Run(ctx); err != nil {
				logger.Log.Warn("shutdown hook failed", "hook", h.Name, "error", err)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Log.Warn("shutdown deadline exceeded, proceeding with remaining groups best-effort")
	}
}

// WaitForSignal blocks until SIGINT or SIGTERM is received, then calls
// Shutdown. It mirrors the teacher's waitForShutdown signal handling.
func (c *Coordinator) WaitForSignal(ctx context.Context) os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	c.Shutdown(ctx)
	return sig
}
