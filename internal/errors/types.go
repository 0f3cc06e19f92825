package errors

import (
	"errors"
	"fmt"
	"strings"
)

// SessionExpiredMessage is the user-facing text for a run whose resumable
// checkpoint is gone.
const SessionExpiredMessage = "Session expired. Please retry your request."

// checkpointMissingSignal is the substring the agent runtime uses when it
// cannot find the snapshot for a run.
const checkpointMissingSignal = "No snapshot found"

// FormatError reports an interactive element identifier that does not match
// the expected token shape. It indicates a stale or tampered UI element.
type FormatError struct {
	Raw      string // raw token as received
	Expected string // human-readable description of the expected shape
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid ID format: expected %s, got %q", e.Expected, e.Raw)
}

// ValidationError reports opaque form state that failed structural validation.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid metadata: %s: %v", e.Reason, e.Err)
	}
	return "invalid metadata: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SessionExpiredError means the agent runtime lost the checkpoint needed to
// resume a paused run.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	return SessionExpiredMessage
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

// IsFormat checks if err is, or wraps, a FormatError.
func IsFormat(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsValidation checks if err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsSessionExpired checks if err is, or wraps, a SessionExpiredError.
func IsSessionExpired(err error) bool {
	var target *SessionExpiredError
	return errors.As(err, &target)
}

// ClassifyAgentError remaps a raw "checkpoint not found" failure from the
// agent runtime to a SessionExpiredError. Any other error is returned as is.
func ClassifyAgentError(err error) error {
	if err == nil {
		return nil
	}
	if IsSessionExpired(err) {
		return err
	}
	if strings.Contains(err.Error(), checkpointMissingSignal) {
		return &SessionExpiredError{Err: err}
	}
	return err
}
