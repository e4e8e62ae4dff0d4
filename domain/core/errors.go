package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
	ErrIngestNotFound  = fmt.Errorf("%w: ingest", ErrNotFound)

	// Reconciliation errors
	ErrIdentityChanged = errors.New("identity field cannot be changed while editing")
	ErrDuplicateKey    = errors.New("summary key already exists")
	ErrEmptyKey        = errors.New("summary key cannot be empty")
	ErrAlreadyAdded    = errors.New("extension already added")

	// Validation errors
	ErrInvalidDocument = errors.New("document failed validation")
	ErrMissingIdentity = errors.New("document is missing its identity field")

	// Submission errors
	ErrInvalidTransition = errors.New("transition not allowed from current state")
	ErrStaleOperation    = errors.New("operation result discarded after reset")
)

// NewNotFoundError builds a not-found error for the given resource and id.
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewTransitionError reports a disallowed state machine transition.
func NewTransitionError(action, state string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, state)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsReconciliationError(err error) bool {
	return errors.Is(err, ErrIdentityChanged) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrEmptyKey) ||
		errors.Is(err, ErrAlreadyAdded)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDocument) ||
		errors.Is(err, ErrMissingIdentity)
}
