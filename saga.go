package ugibdd

import (
	"context"
	"fmt"
	"strings"
)

// Saga collects undo steps for a multi-step remote write. There are no
// transactions across remote calls, so a failure midway runs the steps
// recorded so far in reverse order.
type Saga struct {
	name  string
	steps []sagaStep
}

type sagaStep struct {
	name string
	undo func(context.Context) error
}

// NewSaga starts an empty saga.
func NewSaga(name string) *Saga {
	return &Saga{name: name}
}

// Add records an undo step for work that has just succeeded.
func (s *Saga) Add(name string, undo func(context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, undo: undo})
}

// Len returns the number of recorded steps.
func (s *Saga) Len() int { return len(s.steps) }

// Compensate runs every undo step, newest first, and returns a
// *CompensationError listing the steps that failed. Steps are never retried.
func (s *Saga) Compensate(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var failed []StepError
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			failed = append(failed, StepError{Step: step.name, Err: err})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &CompensationError{Saga: s.name, Failed: failed}
}

// StepError is one failed undo step.
type StepError struct {
	Step string
	Err  error
}

// CompensationError reports undo steps that could not be completed and left
// remote state behind.
type CompensationError struct {
	Saga   string
	Failed []StepError
}

func (e *CompensationError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = fmt.Sprintf("%s: %v", f.Step, f.Err)
	}
	return fmt.Sprintf("compensation of %s incomplete: %s", e.Saga, strings.Join(parts, "; "))
}

func (e *CompensationError) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f.Err
	}
	return out
}
