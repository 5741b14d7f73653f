package filter

import (
	"context"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/audit"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// AuditFilter records an audit.Entry for every call, grounded directly on
// the teacher's pkg/interceptors.AuditInterceptor (time the handler,
// build an Entry via audit.NewEntry(), log it asynchronously so a slow
// audit backend never adds latency to the call itself).
type AuditFilter struct {
	priority       int
	service        string
	log            audit.Logger
	excludeMethods map[string]bool
}

func NewAuditFilter(priority int, service string, log audit.Logger, excludeMethods map[string]bool) *AuditFilter {
	return &AuditFilter{priority: priority, service: service, log: log, excludeMethods: excludeMethods}
}

func (f *AuditFilter) Name() string  { return "audit" }
func (f *AuditFilter) Priority() int { return f.priority }

func (f *AuditFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	if f.excludeMethods[inv.Method] {
		return next(ctx, inv)
	}

	start := time.Now()
	res, err := next(ctx, inv)
	duration := time.Since(start)

	builder := audit.NewEntry().
		Service(f.service).
		Method(inv.Interface + "/" + inv.Method).
		Action(audit.ActionInvoke).
		RequestID(inv.Attachment["requestId"]).
		Duration(duration)

	switch {
	case err != nil:
		builder = builder.Outcome(audit.OutcomeFailure).Error("transport", err.Error())
	case res != nil && res.Err != nil:
		builder = builder.Outcome(audit.OutcomeFailure).Error("application", res.Err.Error())
	default:
		builder = builder.Outcome(audit.OutcomeSuccess)
	}
	entry := builder.Build()

	go func() {
		if logErr := f.log.Log(context.Background(), entry); logErr != nil {
			logger.WithService("filter-chain").Warn("failed to write audit entry", "error", logErr)
		}
	}()

	return res, err
}
