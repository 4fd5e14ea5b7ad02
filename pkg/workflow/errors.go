// Package workflow provides standardized error types for the ticket engine and template service.
package workflow

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrTemplateNil          = errors.New("template cannot be nil")
	ErrTemplateTitle        = errors.New("template title is required")
	ErrTicketTitle          = errors.New("ticket title is required")
	ErrStepName             = errors.New("step name is required")
	ErrStepSpecMismatch     = errors.New("step kind does not match its configuration")
	ErrDuplicateFieldKey    = errors.New("form has duplicate field keys")
	ErrUnknownStep          = errors.New("template has no such step")
	ErrNotUploadField       = errors.New("field does not take uploads")
	ErrUploadTooLarge       = errors.New("upload exceeds the field size limit")
	ErrUploadMimeNotAllowed = errors.New("upload content type is not allowed")
	ErrImageDimensions      = errors.New("image dimensions are out of bounds")

	// Authorization errors (403 Forbidden).
	ErrNotAssigned = errors.New("not assigned to this step")
	ErrNotEligible = errors.New("not an operator of this workflow")

	// State conflicts (409 Conflict).
	ErrTicketFinished = errors.New("ticket is already finished")
	ErrStepNotCurrent = errors.New("step is not the current step")
	ErrWrongOperation = errors.New("step does not take this operation")
	ErrFormExpired    = errors.New("form submission deadline has passed")
)

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrTemplateTitle) ||
		errors.Is(err, ErrTicketTitle) ||
		errors.Is(err, ErrStepName) ||
		errors.Is(err, ErrStepSpecMismatch) ||
		errors.Is(err, ErrDuplicateFieldKey) ||
		errors.Is(err, ErrUnknownStep) ||
		errors.Is(err, ErrNotUploadField) ||
		errors.Is(err, ErrUploadTooLarge) ||
		errors.Is(err, ErrUploadMimeNotAllowed) ||
		errors.Is(err, ErrImageDimensions)
}

// IsForbiddenError checks if an error should return HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotAssigned) || errors.Is(err, ErrNotEligible)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTicketFinished) ||
		errors.Is(err, ErrStepNotCurrent) ||
		errors.Is(err, ErrWrongOperation) ||
		errors.Is(err, ErrFormExpired)
}

// StepError wraps an engine error with the ticket and step it occurred on.
type StepError struct {
	Op       string
	TicketID string
	StepID   string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed for step %s of ticket %s: %v", e.Op, e.StepID, e.TicketID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
