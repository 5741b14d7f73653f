package invoker

import (
	"context"
	"sync"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/cluster"
	"github.com/lwbtt0915/joyrpc/pkg/codec"
	"github.com/lwbtt0915/joyrpc/pkg/filter"
	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/loadbalance"
	"github.com/lwbtt0915/joyrpc/pkg/registry"
	"github.com/lwbtt0915/joyrpc/pkg/shutdown"
	"github.com/lwbtt0915/joyrpc/pkg/transport"
)

// DialFunc opens a fresh Channel for a Node's URL; supplied by the
// concrete Client Transport plugin (grpctransport.Dial,
// connecttransport.Dial, ...).
type DialFunc func(ctx context.Context, u *joyurl.URL) (*transport.Channel, error)

// ReferEvent is emitted on a Refer's lifecycle (spec §4.8 "State machine
// transitions trigger observable events (opened, nodeAdded, nodeRemoved,
// closed) consumed by metrics").
type ReferEvent int

const (
	ReferOpened ReferEvent = iota
	ReferNodeAdded
	ReferNodeRemoved
	ReferClosed
)

// ReferListener receives ReferEvents.
type ReferListener func(ReferEvent)

// ReferOptions configures a Refer at construction.
type ReferOptions struct {
	Interface   string
	Alias       string
	Cluster     *cluster.Cluster
	Route       *loadbalance.Route
	Manager     *transport.Manager
	Dial        DialFunc
	Codec       codec.Codec
	CallTimeout time.Duration
	Filters     []filter.Filter

	// Registry and Key feed Cluster.Follow; Coordinator and
	// ShutdownPriority register this Refer's close as a shutdown hook.
	Registry         registry.Backend
	Key              registry.Key
	Coordinator      *shutdown.Coordinator
	ShutdownPriority int

	// WaitForEligible, when true, makes Open block (bounded by ctx) until
	// at least one Node is eligible, rather than returning as soon as the
	// initial registry snapshot has been applied (spec §4.8 "configurable").
	WaitForEligible bool
}

// Refer is the client-side Invoker (spec §4.8): a Cluster + Route + Filter
// Chain + proxy, bound to one (interface, alias). user → generated proxy →
// Refer → Filter Chain → Route → Cluster pick → Node → Channel send (spec
// §2 data-flow diagram); Refer owns exactly that pipeline.
type Refer struct {
	lifecycle

	opts  ReferOptions
	chain *filter.Chain

	listenersMu sync.Mutex
	listeners   []ReferListener
}

// NewRefer builds a Refer bound to opts.Interface/opts.Alias. The Filter
// Chain is built immediately, terminating in the network-send step (spec
// §4.7 "immutable for the lifetime of an Invoker").
func NewRefer(opts ReferOptions) *Refer {
	if opts.Codec == nil {
		opts.Codec = codec.JSON
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	r := &Refer{opts: opts}
	r.chain = filter.Build(opts.Filters, r.terminal)
	return r
}

// OnEvent registers l to receive every future ReferEvent.
func (r *Refer) OnEvent(l ReferListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Refer) emit(ev ReferEvent) {
	r.listenersMu.Lock()
	ls := append([]ReferListener(nil), r.listeners...)
	r.listenersMu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// Open subscribes the Cluster to the Registry and transitions to OPENED
// once the initial snapshot has been applied (and, if WaitForEligible,
// once at least one Node is eligible). Idempotent: a second call is a
// no-op returning nil.
func (r *Refer) Open(ctx context.Context) error {
	if !r.transition(StateNew, StateOpening) {
		return nil
	}

	r.opts.Cluster.OnEvent(func(ev cluster.Event) {
		switch ev.Kind {
		case cluster.EventNodeAdded:
			r.emit(ReferNodeAdded)
		case cluster.EventNodeRemoved:
			r.opts.Manager.Release(ev.Node.URL, false)
			r.emit(ReferNodeRemoved)
		}
	})

	if err := r.opts.Cluster.Follow(ctx, r.opts.Registry, r.opts.Key); err != nil {
		r.set(StateClosed)
		return joyerr.Wrap(joyerr.CodeInit, "refer cluster follow failed", err)
	}

	if r.opts.WaitForEligible {
		if err := r.waitEligible(ctx); err != nil {
			r.set(StateClosed)
			return err
		}
	}

	if r.opts.Coordinator != nil {
		r.opts.Coordinator.Register(shutdown.Hook{
			Name:     "refer:" + r.opts.Interface,
			Priority: r.opts.ShutdownPriority,
			Run:      func(ctx context.Context) error { return r.Close(ctx) },
		})
	}

	r.set(StateOpened)
	r.emit(ReferOpened)
	return nil
}

func (r *Refer) waitEligible(ctx context.Context) error {
	if len(r.opts.Cluster.Eligible()) > 0 {
		return nil
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return joyerr.Wrap(joyerr.CodeInit, "no eligible node before context deadline", ctx.Err())
		case <-ticker.C:
			if len(r.opts.Cluster.Eligible()) > 0 {
				return nil
			}
		}
	}
}

// Close transitions to CLOSING then CLOSED, unsubscribing from the
// Registry. Idempotent: a call on an already-closing/closed Refer is a
// no-op.
func (r *Refer) Close(ctx context.Context) error {
	if !r.transition(StateOpened, StateClosing) && !r.transition(StateOpening, StateClosing) {
		return nil
	}
	r.opts.Cluster.Unfollow()
	r.set(StateClosed)
	r.emit(ReferClosed)
	return nil
}

// Request is one client-side call (spec §3 Request data model).
type Request struct {
	Method     string
	Alias      string // overrides ReferOptions.Alias for this call, if non-empty
	Args       any
	Reply      any // pointer populated with the decoded response on success
	Attachment map[string]string
	Timeout    time.Duration
}

// Invoke dispatches req through the Filter Chain → Route → Channel
// pipeline, blocking until the response arrives, the deadline elapses, or
// every retry attempt is exhausted.
func (r *Refer) Invoke(ctx context.Context, req Request) error {
	if r.current() != StateOpened {
		return joyerr.New(joyerr.CodeShutdown, "refer not opened")
	}

	alias := req.Alias
	if alias == "" {
		alias = r.opts.Alias
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.opts.CallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := &filter.Invocation{
		Context:    ctx,
		Interface:  r.opts.Interface,
		Alias:      alias,
		Method:     req.Method,
		Attachment: req.Attachment,
		Args:       req.Args,
		Reply:      req.Reply,
	}

	res, err := r.chain.Invoke(ctx, inv)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return nil
}

// terminal is the Filter Chain's network-send step: it runs the
// Route-driven pick-and-retry loop, marshaling the request through an
// envelope frame and submitting it over a Channel checked out from the
// shared ChannelManager for the picked Node's lifetime of this one call.
func (r *Refer) terminal(ctx context.Context, inv *filter.Invocation) (*filter.Result, error) {
	argsPayload, err := r.opts.Codec.Marshal(inv.Args)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeSerialization, "request encode failed", err)
	}
	framePayload, err := encodeEnvelope(inv.Alias, inv.Method, argsPayload)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeSerialization, "envelope encode failed", err)
	}

	lbReq := loadbalance.Request{Interface: inv.Interface, Method: inv.Method, Attachment: inv.Attachment}

	var respPayload []byte
	var isAppErr bool

	err = r.opts.Route.Invoke(ctx, lbReq, func(ctx context.Context, node *cluster.Node) error {
		ch, dialErr := r.opts.Manager.Connect(ctx, node.URL, func(ctx context.Context, _ string) (*transport.Channel, error) {
			return r.opts.Dial(ctx, node.URL)
		})
		if dialErr != nil {
			return joyerr.Wrap(joyerr.CodeTransport, "dial failed", dialErr)
		}
		defer r.opts.Manager.Release(node.URL, true)

		deadline, _ := ctx.Deadline()
		fut, submitErr := ch.Submit(ctx, framePayload, deadline)
		if submitErr != nil {
			return submitErr
		}
		payload, appErr, waitErr := fut.Wait()
		if waitErr != nil {
			return waitErr
		}
		respPayload = payload
		isAppErr = appErr
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isAppErr {
		var msg string
		_ = r.opts.Codec.Unmarshal(respPayload, &msg)
		return &filter.Result{Err: joyerr.New(joyerr.CodeRemote, msg)}, nil
	}

	if inv.Reply != nil {
		if decErr := r.opts.Codec.Unmarshal(respPayload, inv.Reply); decErr != nil {
			return nil, joyerr.Wrap(joyerr.CodeSerialization, "response decode failed", decErr)
		}
	}
	return &filter.Result{Reply: inv.Reply}, nil
}
