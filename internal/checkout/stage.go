package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// Stage is the point a checkout reached before it finished.
type Stage string

const (
	StageValidating  Stage = "Validating"
	StageAggregating Stage = "Aggregating"
	StageCommitting  Stage = "Committing"
	StageCommitted   Stage = "Committed"
	StageRolledBack  Stage = "RolledBack"
)

// StageError records the stage at which a checkout stopped. The wrapped error is an
// *apperrors.AppError.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf reports the stage recorded on err, or "" if none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// enter marks a stage on the checkout span.
func enter(ctx context.Context, stage Stage) {
	if stage != "" {
		trace.SpanFromContext(ctx).AddEvent(string(stage))
	}
}

func failAt(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
