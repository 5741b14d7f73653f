package filter

import (
	"context"
	"time"
)

// Recorder receives per-call observations; implemented by pkg/metrics'
// Prometheus collectors.
type Recorder interface {
	RecordCall(iface, method, outcome string, duration time.Duration)
}

// MetricsFilter records call counts and latency, grounded directly on
// the teacher's pkg/interceptors.MetricsInterceptor (start timer, run
// handler, record duration + outcome against a shared collector).
type MetricsFilter struct {
	priority int
	recorder Recorder
}

func NewMetricsFilter(priority int, recorder Recorder) *MetricsFilter {
	return &MetricsFilter{priority: priority, recorder: recorder}
}

func (f *MetricsFilter) Name() string  { return "metrics" }
func (f *MetricsFilter) Priority() int { return f.priority }

func (f *MetricsFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	start := time.Now()
	res, err := next(ctx, inv)
	duration := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if res != nil && res.Err != nil {
		outcome = "app_error"
	}
	f.recorder.RecordCall(inv.Interface, inv.Method, outcome, duration)
	return res, err
}
