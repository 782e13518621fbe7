package validator

// #region imports
import (
	"context"
	"fmt"

	"recordcheck/internal/record"
	"recordcheck/internal/verdict"
)

// #endregion

// #region capability
// Capability tags a validator's execution model. Deterministic validators
// are pure, free, and reproducible; networked validators may call out to
// external services, incur cost, and are nondeterministic.
type Capability string

const (
	CapDeterministic Capability = "deterministic"
	CapNetworked     Capability = "networked"
)

// #endregion capability

// #region context
// Context carries the per-invocation inputs a validator may read.
// Deterministic validators must be pure with respect to it.
type Context struct {
	Variant *record.Variant // non-nil when validating a variant narrative
}

// #endregion context

// #region contract
// Validator is the plug-in contract every check implements.
// SupportsVariants replaces the legacy name-matching of variant-aware
// validators with an explicit trait.
type Validator interface {
	Name() string
	Capability() Capability
	SupportsVariants() bool
	Validate(ctx context.Context, rec record.Record, vc Context) (verdict.Verdict, error)
}

// #endregion contract

// #region run-safe
// RunSafe invokes a validator and isolates any failure: an error return
// or a panic becomes a synthetic failing verdict so one validator's bug
// or outage never aborts the batch.
func RunSafe(ctx context.Context, v Validator, rec record.Record, vc Context) (out verdict.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			out = executionFailure(v.Name(), fmt.Errorf("panic: %v", r))
		}
	}()

	vd, err := v.Validate(ctx, rec, vc)
	if err != nil {
		return executionFailure(v.Name(), err)
	}
	return vd
}

func executionFailure(name string, err error) verdict.Verdict {
	return verdict.New(name, []verdict.Issue{{
		Severity: verdict.SeverityError,
		Message:  fmt.Sprintf("validator execution failed: %s", name),
		Details:  err.Error(),
	}}, 0)
}

// #endregion run-safe
