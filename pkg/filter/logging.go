package filter

import (
	"context"
	"time"

	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// LoggingFilter logs every call's method, duration and outcome,
// grounded directly on the teacher's pkg/interceptors.LoggingInterceptor
// (start timer, run handler, log success/failure with duration_ms).
type LoggingFilter struct{ priority int }

func NewLoggingFilter(priority int) *LoggingFilter { return &LoggingFilter{priority: priority} }

func (f *LoggingFilter) Name() string  { return "logging" }
func (f *LoggingFilter) Priority() int { return f.priority }

func (f *LoggingFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	start := time.Now()
	res, err := next(ctx, inv)
	duration := time.Since(start)

	log := logger.WithService("filter-chain")
	if err != nil {
		log.Error("call failed", "interface", inv.Interface, "method", inv.Method, "duration_ms", duration.Milliseconds(), "error", err.Error())
	} else if res != nil && res.Err != nil {
		log.Warn("call returned application error", "interface", inv.Interface, "method", inv.Method, "duration_ms", duration.Milliseconds(), "error", res.Err.Error())
	} else {
		log.Debug("call completed", "interface", inv.Interface, "method", inv.Method, "duration_ms", duration.Milliseconds())
	}
	return res, err
}
