package filter

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

// Validatable is implemented by request arguments that can check their
// own invariants before dispatch.
type Validatable interface {
	Validate() error
}

// ValidationFilter rejects calls whose Args implement Validatable and
// fail validation, grounded directly on the teacher's
// pkg/interceptors.ValidationInterceptor (type-assert to Validator,
// short-circuit on error).
type ValidationFilter struct{ priority int }

func NewValidationFilter(priority int) *ValidationFilter { return &ValidationFilter{priority: priority} }

func (f *ValidationFilter) Name() string  { return "validation" }
func (f *ValidationFilter) Priority() int { return f.priority }

func (f *ValidationFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	if v, ok := inv.Args.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, joyerr.Wrap(joyerr.CodeConfig, "request validation failed", err)
		}
	}
	return next(ctx, inv)
}
