package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/wheel"
)

// Future is the one-shot completion handle returned by Channel.Submit
// (spec §4.10 "completion handle"). Exactly one of Wait's return values is
// meaningful: a non-nil error means the call failed; otherwise Payload is
// the response body.
type Future struct {
	done chan struct{}
	once sync.Once

	payload []byte
	isErr   bool
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Wait blocks until the future completes (success, failure, or timeout).
// It takes no context and done closes only on completion; a caller that
// needs ctx-based cancellation selects on Done() and its own ctx.Done().
func (f *Future) Wait() (payload []byte, isAppError bool, err error) {
	<-f.done
	return f.payload, f.isErr, f.err
}

// Done exposes the completion channel for select-based waiting.
func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) completeOK(payload []byte, isAppError bool) {
	f.once.Do(func() {
		f.payload = payload
		f.isErr = isAppError
		close(f.done)
	})
}

func (f *Future) completeErr(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

type pendingEntry struct {
	future *Future
	task   *wheel.Task
}

// FutureRegistry is the per-Channel Call Future Registry (spec §4.10): a
// map from request id to (completion handle, deadline), backed by a single
// timing wheel per Transport for deadline expiry. Removal is the only way
// to complete an entry; completing twice is a no-op because Future.once
// guards it.
type FutureRegistry struct {
	mu      sync.Mutex
	pending map[uint64]pendingEntry
	wheel   *wheel.Wheel
}

// NewFutureRegistry creates a registry backed by w. w may be nil, in which
// case deadlines are not enforced (callers must supply their own via the
// Done() channel and an external context).
func NewFutureRegistry(w *wheel.Wheel) *FutureRegistry {
	return &FutureRegistry{pending: make(map[uint64]pendingEntry), wheel: w}
}

func (r *FutureRegistry) register(id uint64, deadline time.Time) *Future {
	fut := newFuture()
	entry := pendingEntry{future: fut}

	if r.wheel != nil && !deadline.IsZero() {
		entry.task = r.wheel.Schedule(deadline, func() { r.timeout(id) })
	}

	r.mu.Lock()
	r.pending[id] = entry
	r.mu.Unlock()
	return fut
}

// complete resolves the future for id with a response payload, removing it
// from the table. Unknown ids (already completed, timed out, or never
// registered — e.g. a duplicate/late response) are logged by the caller
// and otherwise ignored, per spec §3 "Responses with unknown ids ... MUST
// NOT destabilize the Channel."
func (r *FutureRegistry) complete(id uint64, payload []byte, isAppError bool) bool {
	entry, ok := r.remove(id)
	if !ok {
		return false
	}
	if entry.task != nil {
		entry.task.Cancel()
	}
	entry.future.completeOK(payload, isAppError)
	return true
}

func (r *FutureRegistry) timeout(id uint64) {
	entry, ok := r.remove(id)
	if !ok {
		return
	}
	entry.future.completeErr(joyerr.New(joyerr.CodeTimeout, "call deadline exceeded"))
}

// cancel removes a pending entry without completing its future — used when
// Submit fails to write the frame after already registering the id.
func (r *FutureRegistry) cancel(id uint64) {
	entry, ok := r.remove(id)
	if ok && entry.task != nil {
		entry.task.Cancel()
	}
}

func (r *FutureRegistry) remove(id uint64) (pendingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return entry, ok
}

// drain fails every pending entry with err, in ascending id order (spec
// §4.10 "On Channel close, the registry is drained ... in id order").
func (r *FutureRegistry) drain(err error) {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	entries := r.pending
	r.pending = make(map[uint64]pendingEntry)
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		entry := entries[id]
		if entry.task != nil {
			entry.task.Cancel()
		}
		entry.future.completeErr(err)
	}
}

// Len reports the number of pending futures. Nothing in this module
// enforces an in-flight cap (spec §8) against it.
func (r *FutureRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
