// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTicketNotFound indicates a ticket was not found by the given identifier.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrUploadNotFound indicates an upload was not found by the given identifier.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrUserNotFound indicates a directory user was not found.
	ErrUserNotFound = errors.New("user not found")

	// ErrLabelNotFound indicates a directory label was not found.
	ErrLabelNotFound = errors.New("label not found")

	// ErrVersionConflict indicates a concurrent writer updated the aggregate first.
	ErrVersionConflict = errors.New("version conflict")
)

// TemplateError wraps template-related errors with additional context.
type TemplateError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTemplateError creates a new template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{
		Op:         op,
		TemplateID: templateID,
		Err:        err,
	}
}

// TicketError wraps ticket-related errors with additional context.
type TicketError struct {
	Op       string
	TicketID string
	StepID   string
	Err      error
}

func (e *TicketError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s operation failed for step %s of ticket %s: %v", e.Op, e.StepID, e.TicketID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for ticket %s: %v", e.Op, e.TicketID, e.Err)
}

func (e *TicketError) Unwrap() error {
	return e.Err
}

func (e *TicketError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTicketError creates a new ticket error with context.
func NewTicketError(op, ticketID string, err error) *TicketError {
	return &TicketError{
		Op:       op,
		TicketID: ticketID,
		Err:      err,
	}
}

// NewTicketStepError creates a new ticket error scoped to one step.
func NewTicketStepError(op, ticketID, stepID string, err error) *TicketError {
	return &TicketError{
		Op:       op,
		TicketID: ticketID,
		StepID:   stepID,
		Err:      err,
	}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsTicketNotFound checks if an error indicates a ticket was not found.
func IsTicketNotFound(err error) bool {
	return errors.Is(err, ErrTicketNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsUploadNotFound checks if an error indicates an upload was not found.
func IsUploadNotFound(err error) bool {
	return errors.Is(err, ErrUploadNotFound)
}

// IsVersionConflict checks if an error indicates a concurrent update conflict.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
