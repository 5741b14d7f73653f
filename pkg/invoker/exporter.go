package invoker

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/codec"
	"github.com/lwbtt0915/joyrpc/pkg/filter"
	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
	"github.com/lwbtt0915/joyrpc/pkg/registry"
	"github.com/lwbtt0915/joyrpc/pkg/shutdown"
	"github.com/lwbtt0915/joyrpc/pkg/transport"
)

// ExporterOptions configures an Exporter at construction.
type ExporterOptions struct {
	Interface  string
	URL        *joyurl.URL
	Transport  transport.ServerTransport
	Descriptor *Descriptor
	Codec      codec.Codec
	Filters    []filter.Filter
	Executor   *Executor

	// Registry and Key, when Registry is non-nil, are used to publish URL
	// once the Server Transport's Start has returned (spec §4.9). No
	// self-check call is made before the URL is published.
	Registry registry.Backend
	Key      registry.Key

	Coordinator      *shutdown.Coordinator
	ShutdownPriority int
}

// Exporter is the server-side Invoker (spec §4.9): binds an interface
// implementation to a Server Transport. decode -> locate descriptor by
// (interface, alias, method) -> Filter Chain -> dispatch to user impl on a
// business executor -> encode -> send.
type Exporter struct {
	lifecycle

	opts  ExporterOptions
	chain *filter.Chain
}

// NewExporter builds an Exporter bound to opts.Descriptor. The Filter
// Chain is built immediately, terminating in a dispatch step that invokes
// whichever MethodHandler the Descriptor resolved for the incoming call.
func NewExporter(opts ExporterOptions) *Exporter {
	if opts.Codec == nil {
		opts.Codec = codec.JSON
	}
	if opts.Executor == nil {
		opts.Executor = NewExecutor(0, RejectPolicyReject, 0)
	}
	e := &Exporter{opts: opts}
	e.chain = filter.Build(opts.Filters, dispatchTerminal)
	return e
}

// dispatchTerminal invokes the handler the Exporter resolved and attached
// to inv.Dispatch, per (spec §4.9): this is the single fixed terminal step
// the immutable-per-lifetime Filter Chain is built around.
func dispatchTerminal(ctx context.Context, inv *filter.Invocation) (*filter.Result, error) {
	reply, err := inv.Dispatch(ctx, inv.Args)
	if err != nil {
		return &filter.Result{Err: err}, nil
	}
	return &filter.Result{Reply: reply}, nil
}

// Open starts the Server Transport's accept loop and, once listening,
// registers URL with the Registry (spec §4.9). Idempotent.
func (e *Exporter) Open(ctx context.Context) error {
	if !e.transition(StateNew, StateOpening) {
		return nil
	}

	if err := e.opts.Transport.Start(ctx, e.opts.URL, e.handle); err != nil {
		e.set(StateClosed)
		return joyerr.Wrap(joyerr.CodeInit, "exporter transport start failed", err)
	}

	if e.opts.Registry != nil {
		if err := e.opts.Registry.Register(ctx, e.opts.Key, e.opts.URL); err != nil {
			logger.WithService("exporter").Warn("registry registration failed",
				"interface", e.opts.Interface, "error", err)
		}
	}

	if e.opts.Coordinator != nil {
		e.opts.Coordinator.Register(shutdown.Hook{
			Name:     "exporter:" + e.opts.Interface,
			Priority: e.opts.ShutdownPriority,
			Run:      func(ctx context.Context) error { return e.Close(ctx) },
		})
	}

	e.set(StateOpened)
	return nil
}

// Close deregisters from the Registry, then stops the Server Transport,
// which drains in-flight calls to its own deadline before returning (spec
// §8 scenario 5 "server deregisters from Registry before socket close").
func (e *Exporter) Close(ctx context.Context) error {
	if !e.transition(StateOpened, StateClosing) && !e.transition(StateOpening, StateClosing) {
		return nil
	}

	if e.opts.Registry != nil {
		if err := e.opts.Registry.Deregister(ctx, e.opts.Key, e.opts.URL); err != nil {
			logger.WithService("exporter").Warn("registry deregistration failed",
				"interface", e.opts.Interface, "error", err)
		}
	}

	err := e.opts.Transport.Stop(ctx)
	e.set(StateClosed)
	return err
}

// handle is the transport.Handler bound to the Server Transport: decode
// envelope -> locate MethodHandler -> Filter Chain -> encode.
func (e *Exporter) handle(ctx context.Context, requestID uint64, payload []byte) ([]byte, bool) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return e.encodeError(joyerr.Wrap(joyerr.CodeSerialization, "envelope decode failed", err)), true
	}

	h, err := e.opts.Descriptor.Lookup(env.Alias, env.Method)
	if err != nil {
		return e.encodeError(err), true
	}

	args := h.NewArgs()
	if err := e.opts.Codec.Unmarshal(env.Args, args); err != nil {
		return e.encodeError(joyerr.Wrap(joyerr.CodeSerialization, "args decode failed", err)), true
	}

	inv := &filter.Invocation{
		Context:   ctx,
		Interface: e.opts.Interface,
		Alias:     env.Alias,
		Method:    env.Method,
		Args:      args,
		Dispatch:  h.Handler,
	}

	var respPayload []byte
	var appErr bool
	runErr := e.opts.Executor.Run(func() {
		respPayload, appErr = e.dispatch(ctx, inv)
	})
	if runErr != nil {
		return e.encodeError(runErr), true
	}
	return respPayload, appErr
}

func (e *Exporter) dispatch(ctx context.Context, inv *filter.Invocation) ([]byte, bool) {
	res, err := e.chain.Invoke(ctx, inv)
	switch {
	case err != nil:
		return e.encodeError(err), true
	case res.Err != nil:
		return e.encodeError(res.Err), true
	default:
		b, encErr := e.opts.Codec.Marshal(res.Reply)
		if encErr != nil {
			return e.encodeError(joyerr.Wrap(joyerr.CodeSerialization, "reply encode failed", encErr)), true
		}
		return b, false
	}
}

func (e *Exporter) encodeError(err error) []byte {
	b, _ := e.opts.Codec.Marshal(err.Error())
	return b
}
