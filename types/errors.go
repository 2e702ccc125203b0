package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// exported errors
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrValidation           = errors.New("invalid input")
	ErrConflict             = errors.New("conflicts with an active record")
	ErrAlreadyDecided       = errors.New("request has already been decided")
	ErrInconsistent         = errors.New("inconsistent access chain")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrUnknownAction        = errors.New("unknown action")
	ErrUnknownEntity        = errors.New("unknown entity kind")
	ErrUnknownBehaviour     = errors.New("unknown behaviour kind")
	ErrBackendNotConfigured = errors.New("behaviour backend is not configured")
)

// ValidationError reports user-correctable problems, keyed by field name
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError with one field problem
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Add a field problem
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// OrNil returns nil if no problem was recorded
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError tells which record is in the way, so callers could chain off it explicitly
type ConflictError struct {
	Kind   EntityKind
	ID     int64
	Reason string
	cause  error
}

// NewConflictError creates a ConflictError pointing at the conflicting record
func NewConflictError(kind EntityKind, id int64, reason string) *ConflictError {
	return &ConflictError{Kind: kind, ID: id, Reason: reason, cause: ErrConflict}
}

// NewAlreadyDecidedError creates a ConflictError for a request which is not pending any more
func NewAlreadyDecidedError(id int64) *ConflictError {
	return &ConflictError{Kind: KindRequest, ID: id, Reason: "decided concurrently", cause: ErrAlreadyDecided}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s %d: %s", e.cause, e.Kind, e.ID, e.Reason)
}

// Is matches both ErrConflict and the more specific cause
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict || target == e.cause
}

// Target of the conflict
func (e *ConflictError) Target() EntityRef {
	return EntityRef{Kind: e.Kind, ID: e.ID}
}

// ConsistencyError reports chain states which should never exist, like two active grants on one access
type ConsistencyError struct {
	AccessID int64
	Detail   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: access %d: %s", ErrInconsistent, e.AccessID, e.Detail)
}

func (e *ConsistencyError) Unwrap() error {
	return ErrInconsistent
}
