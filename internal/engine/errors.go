package engine

import (
	"errors"
	"fmt"

	"github.com/feichai0017/dataset-processor/internal/models"
)

var (
	// ErrTimeout is returned when a preview or apply exceeds its budget.
	ErrTimeout = errors.New("transformation exceeded its time budget")
	// ErrValidation marks a step rejected by the validator before execution.
	ErrValidation = errors.New("validation failed")
)

// ExecutionError wraps a failure raised while executing a step. StepIndex is
// -1 for single-step applies.
type ExecutionError struct {
	Type      models.TransformationType
	StepIndex int
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.StepIndex >= 0 {
		return fmt.Sprintf("step %d (%s): %v", e.StepIndex, e.Type, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func wrapStep(t models.TransformationType, index int, err error) error {
	if err == nil {
		return nil
	}
	var exec *ExecutionError
	if errors.As(err, &exec) {
		return err
	}
	return &ExecutionError{Type: t, StepIndex: index, Err: err}
}
