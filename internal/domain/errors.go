package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrWorkflowNotFound  = errors.New("workflow run not found")
	ErrInvalidKey        = errors.New("invalid tenant key")
	ErrTenantHasResource = errors.New("tenant still owns active resources")
)

// KeyConflictError is returned when a tenant key is already in use.
type KeyConflictError struct {
	Key string
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("key %q is already in use", e.Key)
}

// DuplicateResourceError is returned when recording a ledger entry whose
// (tenant, type, external ID) triple already exists and is not soft-deleted.
type DuplicateResourceError struct {
	TenantID   string
	Type       ResourceType
	ExternalID string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("resource %s/%s already recorded for tenant %s", e.Type, e.ExternalID, e.TenantID)
}

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// WorkflowConflictError is returned when a workflow is requested for a
// tenant that already has a non-terminal run (single-flight invariant).
type WorkflowConflictError struct {
	TenantID string
	RunID    string
}

func (e *WorkflowConflictError) Error() string {
	return fmt.Sprintf("tenant %s already has an active workflow run %s", e.TenantID, e.RunID)
}

// TransientError wraps a failure that is worth retrying: network timeouts,
// rate limits, upstream 5xx. Anything not marked transient is treated as
// permanent and triggers compensation without further attempts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// MarkTransient flags err as retryable. Adapters classify their own
// failures; the orchestrator only inspects the flag.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
