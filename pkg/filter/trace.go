package filter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lwbtt0915/joyrpc/pkg/telemetry"
)

// TraceFilter opens a span around each call, grounded directly on the
// teacher's pkg/telemetry.UnaryServerInterceptor (StartSpan, tag method,
// set span status/record error from the outcome, always End()).
type TraceFilter struct{ priority int }

func NewTraceFilter(priority int) *TraceFilter { return &TraceFilter{priority: priority} }

func (f *TraceFilter) Name() string  { return "trace" }
func (f *TraceFilter) Priority() int { return f.priority }

func (f *TraceFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, inv.Interface+"/"+inv.Method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("rpc.interface", inv.Interface),
		attribute.String("rpc.method", inv.Method),
	)

	res, err := next(ctx, inv)

	switch {
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	case res != nil && res.Err != nil:
		span.SetStatus(codes.Error, res.Err.Error())
		span.RecordError(res.Err)
	default:
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}
