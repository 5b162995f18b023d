package utils

import "fmt"

// AppError is the error type railwatch returns across package boundaries. Op
// names the failing operation ("conn.connect", "alerting.resolve"), Msg adds
// the operator-facing detail, and Err carries the cause when there is one.
type AppError struct {
	Op  string
	Msg string
	Err error
}

// Error renders "op: msg" with the cause appended when present.
func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

// Unwrap exposes the cause so errors.Is and errors.As see through the wrap.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError wraps err with an operation and message; err may be nil for
// failures with no underlying cause.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
