package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrConflict               = errors.New("record was modified concurrently")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidCursor          = errors.New("invalid cursor")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMissingTenantContext   = errors.New("tenant id is missing from request context")
	ErrTenantRequired         = errors.New("tenant context is required")
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrTenantInactive         = errors.New("tenant is inactive")
	ErrRolledBack             = errors.New("rolled back with the rest of the batch")
	ErrTransactionTimeout     = errors.New("transaction timed out")
	ErrInternal               = errors.New("internal error")
)

var domainErrors = []error{
	ErrNotFound,
	ErrAlreadyExists,
	ErrConflict,
	ErrInvalidInput,
	ErrInvalidCursor,
	ErrInvalidStateTransition,
	ErrMissingTenantContext,
	ErrTenantRequired,
	ErrTenantNotFound,
	ErrTenantInactive,
	ErrTransactionTimeout,
	ErrInternal,
}

// IsDomainError reports whether err belongs to the error taxonomy callers are allowed to see.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var (
		bulkErr       *BulkOperationError
		validationErr *ValidationError
		expiredErr    *ContextExpiredError
	)
	return errors.As(err, &bulkErr) || errors.As(err, &validationErr) || errors.As(err, &expiredErr)
}

// Internal hides storage-level failures behind ErrInternal. Domain errors pass through untouched.
func Internal(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &internalError{cause: err}
}

type internalError struct {
	cause error
}

func (e *internalError) Error() string { return ErrInternal.Error() }

func (e *internalError) Is(target error) bool { return target == ErrInternal }

// Cause exposes the wrapped error for logging only.
func (e *internalError) Cause() error { return e.cause }

// Cause returns the storage failure hidden by Internal, or err itself.
func Cause(err error) error {
	var ie *internalError
	if errors.As(err, &ie) {
		return ie.Cause()
	}
	return err
}

// NotFoundError names the missing entity while still matching ErrNotFound.
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// ContextExpiredError is returned when a tenant scope outlived its TTL.
type ContextExpiredError struct {
	TenantID string
}

func (e *ContextExpiredError) Error() string {
	return fmt.Sprintf("tenant context for %q has expired", e.TenantID)
}

// ItemError describes one failed element of a bulk operation.
type ItemError struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

// BulkOperationError is returned by atomic bulk operations. Every supplied item is listed
// because the transaction was rolled back as a whole.
type BulkOperationError struct {
	Op    string
	Items []ItemError
}

func (e *BulkOperationError) Error() string {
	cause := ""
	for _, item := range e.Items {
		if !errors.Is(item.Err, ErrRolledBack) {
			cause = item.Error()
			break
		}
	}
	return fmt.Sprintf("bulk %s failed for %d items: %s", e.Op, len(e.Items), cause)
}

func (e *BulkOperationError) Unwrap() []error {
	out := make([]error, 0, len(e.Items))
	for _, item := range e.Items {
		out = append(out, item.Err)
	}
	return out
}

// FieldError is a single constraint violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects constraint violations for one input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// orNil returns nil when no violations were recorded.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StateTransitionError names the rejected status change.
type StateTransitionError struct {
	From TenantStatus
	To   TenantStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot move tenant from %s to %s", e.From, e.To)
}

func (e *StateTransitionError) Is(target error) bool { return target == ErrInvalidStateTransition }
