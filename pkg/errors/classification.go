package errors

import (
	"context"
	"errors"
)

// ErrorCategory helps us group errors by what kind of problem they represent.
// Makes it easier to handle different types of issues appropriately.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryExecution     ErrorCategory = "execution"
	CategoryAnalysis      ErrorCategory = "analysis"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryUnknown       ErrorCategory = "unknown"
)

// ClassifiedError is like a regular error but with extra info attached.
// It tells us what kind of error it is and whether the workflow engine
// should consider rescheduling the job.
type ClassifiedError struct {
	Err       error
	Category  ErrorCategory
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ClassifyError automatically classifies an error based on its type and content.
// Configuration and validation problems will fail the same way every time, so
// they are never retryable. Execution failures are left to the engine's retry
// policy, which is exactly what the external calculator contract asks for.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{
		Err:      err,
		Category: CategoryUnknown,
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		classified.Category = CategoryTimeout

	case IsConfigError(err), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrVdwKernelMissing):
		classified.Category = CategoryConfiguration

	case IsInputError(err):
		classified.Category = CategoryValidation

	case IsNotFoundError(err):
		classified.Category = CategoryNotFound

	case IsAnalysisError(err):
		classified.Category = CategoryAnalysis

	case IsJobError(err), errors.Is(err, ErrJobFailed):
		classified.Category = CategoryExecution
		classified.Retryable = true
	}

	return classified
}

// IsRetryable reports whether the engine may reasonably reschedule the
// failed work without any input changing.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return ClassifyError(err).Retryable
}
