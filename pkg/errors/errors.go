// Package errors defines the error taxonomy shared by the ledger and the
// wallet workflows. Callers branch on the category, not on message text.
package errors

import (
	"errors"
	"fmt"
)

// ValidationError reports bad input: zero amounts, missing required fields,
// insufficient funds at request time. Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidation creates a ValidationError for a named field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports a duplicate reference or an already-settled workflow
// transition. The operation it guards has been applied exactly once before.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

// NewConflict creates a ConflictError for a resource/key pair.
func NewConflict(resource, key string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key}
}

// GatewayError reports a failed or indeterminate external gateway call.
// Local state is untouched; a timeout means unknown outcome, never success.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGateway wraps an external gateway failure.
func NewGateway(gateway, op string, err error) *GatewayError {
	return &GatewayError{Gateway: gateway, Op: op, Err: err}
}

// PersistenceError reports a storage failure. The enclosing database
// transaction has been rolled back entirely.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistence wraps a storage failure.
func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsGateway reports whether err is a GatewayError.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
