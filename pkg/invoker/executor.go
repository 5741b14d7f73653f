package invoker

import (
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

// RejectionPolicy selects what an Executor does when its concurrency cap
// is already saturated (spec §4.9 "If executor queue is saturated: apply
// the configured rejection policy {reject, caller-runs, wait-bounded}").
type RejectionPolicy int

const (
	RejectPolicyReject RejectionPolicy = iota
	RejectPolicyCallerRuns
	RejectPolicyWaitBounded
)

// Executor is the Exporter's bounded business-dispatch pool: a fixed
// number of concurrency slots, with one of three behaviors once they're
// all taken.
type Executor struct {
	slots       chan struct{}
	policy      RejectionPolicy
	waitTimeout time.Duration
}

// NewExecutor creates an Executor allowing up to maxConcurrent dispatches
// in flight at once. maxConcurrent <= 0 means unbounded (every call runs
// immediately, matching a disabled-limit configuration).
func NewExecutor(maxConcurrent int, policy RejectionPolicy, waitTimeout time.Duration) *Executor {
	e := &Executor{policy: policy, waitTimeout: waitTimeout}
	if maxConcurrent > 0 {
		e.slots = make(chan struct{}, maxConcurrent)
	}
	return e
}

// Run executes fn synchronously within the executor's concurrency budget,
// returning an OverloadError if the call is rejected under the configured
// policy instead of run.
func (e *Executor) Run(fn func()) error {
	if e.slots == nil {
		fn()
		return nil
	}

	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
		fn()
		return nil
	default:
	}

	switch e.policy {
	case RejectPolicyCallerRuns:
		fn()
		return nil
	case RejectPolicyWaitBounded:
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
			fn()
			return nil
		case <-time.After(e.waitTimeout):
			return joyerr.New(joyerr.CodeOverload, "executor queue saturated")
		}
	default:
		return joyerr.New(joyerr.CodeOverload, "executor queue saturated")
	}
}
