package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotApproved    = errors.New("participant id is not approved for this study")
	ErrNoAssignments  = errors.New("no roster assignments for participant")
	ErrBatchLocked    = errors.New("batch is locked")
	ErrStudyCompleted = errors.New("study already completed")
)

// ValidationError is a recoverable, participant-facing failure: missing or
// insufficient input. The pipeline stage is not advanced and no data is lost.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// invalid builds a ValidationError for a field.
func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ExternalError marks a generation-service failure. It is fatal to the
// current attempt; the unit stays where it is and a manual re-attempt is
// allowed.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("generation service failed during %s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// IntegrityError marks configuration or data corruption: a requested unit
// missing from the participant's batch, roster rows referencing unknown
// phases. These are fatal and must be reported, never swallowed.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return e.Reason
}

func integrity(format string, args ...interface{}) *IntegrityError {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}
