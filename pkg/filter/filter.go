// Package filter implements the Filter Chain (spec §4.7): a linear
// ordered list of interceptors, terminated by a "network send" filter
// supplied by the Invoker, wrapping every call. Each filter observes the
// Request on the way in and the Response (or error) on the way back, may
// short-circuit with a synthetic Response, and sees every outcome —
// errors never bypass the chain's return path (spec §4.9).
//
// The nested-handler construction (each filter wraps the next as a
// closure, built back-to-front so the outermost filter in priority order
// runs first) is grounded directly on the teacher's
// pkg/interceptors.chainUnaryInterceptors/buildUnaryChain, generalized
// from grpc.UnaryServerInterceptor chaining to the invocation-level Filter
// contract used on both Refer and Exporter paths.
package filter

import (
	"context"
	"sort"

	"github.com/lwbtt0915/joyrpc/pkg/extension"
)

// Invocation is the per-call context every Filter observes, shared by
// both the client path (Refer: invoke → Filter Chain → Route → Channel)
// and the server path (Exporter: decode → Filter Chain → user impl).
type Invocation struct {
	Context    context.Context
	Interface  string
	Alias      string
	Method     string
	Attachment map[string]string
	Args       any

	// Reply, when set by the Invoker before the call enters the chain, is
	// the pointer the terminal network-send filter decodes a client-side
	// response into; filters such as CacheFilter read/write it as the
	// call's result value.
	Reply any

	// Dispatch is set by an Exporter to the resolved method handler for
	// this call before the chain runs; the terminal filter invokes it
	// instead of sending over the network.
	Dispatch func(ctx context.Context, args any) (any, error)
}

// Result is what a Filter (or the terminal network-send filter) returns.
type Result struct {
	Reply any
	Err   error
}

// Next is the remainder of the chain a Filter delegates to.
type Next func(ctx context.Context, inv *Invocation) (*Result, error)

// Filter is the plugin contract named extensions implement (spec §9).
// Priority controls chain order — lower values run first; ties break on
// Name (spec §4.7 "Ordering is by stable priority declared on the
// filter; ties broken by name").
type Filter interface {
	extension.Named
	Priority() int
	Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error)
}

// Chain is the immutable, ordered filter pipeline built once per Invoker
// lifetime and rebuilt on reopen (spec §4.7 "immutable for the lifetime
// of an Invoker; it is rebuilt on Invoker reopen").
type Chain struct {
	entry Next
}

// Build orders filters by priority-then-name and nests them around
// terminal, the network-send filter that actually dispatches the call.
func Build(filters []Filter, terminal Next) *Chain {
	ordered := append([]Filter(nil), filters...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() < ordered[j].Priority()
		}
		return ordered[i].Name() < ordered[j].Name()
	})

	chain := terminal
	for i := len(ordered) - 1; i >= 0; i-- {
		f := ordered[i]
		next := chain
		chain = func(ctx context.Context, inv *Invocation) (*Result, error) {
			return f.Invoke(ctx, inv, next)
		}
	}
	return &Chain{entry: chain}
}

// Invoke runs inv through the chain.
func (c *Chain) Invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	return c.entry(ctx, inv)
}
