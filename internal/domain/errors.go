package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// AuthenticationError is terminal for a request and never retried. Reason
// distinguishes the failing check without exposing cryptographic detail.
type AuthenticationError struct {
	Reason string
}

func (e AuthenticationError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e AuthenticationError) Is(target error) bool {
	_, ok := target.(AuthenticationError)
	if ok {
		return true
	}
	_, ok = target.(*AuthenticationError)
	return ok
}

var ErrAuthentication = AuthenticationError{}

// ValidationError marks a structurally malformed credential or request.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	if e.Reason == "" {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

var ErrValidation = ValidationError{}

// DuplicateError surfaces a uniqueness violation distinctly from generic
// storage failures so callers can treat it as "already recorded".
type DuplicateError struct {
	Resource string
}

func (e DuplicateError) Error() string {
	if e.Resource == "" {
		return "already exists"
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e DuplicateError) Is(target error) bool {
	_, ok := target.(DuplicateError)
	if ok {
		return true
	}
	_, ok = target.(*DuplicateError)
	return ok
}

var ErrDuplicate = DuplicateError{}

// ScoringError is recovered into the score record's ERROR state; it never
// propagates out of the lifecycle as a crash.
type ScoringError struct {
	Message string
}

func (e ScoringError) Error() string {
	if e.Message == "" {
		return "scoring failed"
	}
	return fmt.Sprintf("scoring failed: %s", e.Message)
}

func (e ScoringError) Is(target error) bool {
	_, ok := target.(ScoringError)
	if ok {
		return true
	}
	_, ok = target.(*ScoringError)
	return ok
}

var ErrScoring = ScoringError{}

// TransientStorageError wraps a storage failure eligible for retry.
type TransientStorageError struct {
	Err error
}

func (e TransientStorageError) Error() string {
	if e.Err == nil {
		return "transient storage error"
	}
	return fmt.Sprintf("transient storage error: %v", e.Err)
}

func (e TransientStorageError) Unwrap() error { return e.Err }

func (e TransientStorageError) Is(target error) bool {
	_, ok := target.(TransientStorageError)
	if ok {
		return true
	}
	_, ok = target.(*TransientStorageError)
	return ok
}

var ErrTransientStorage = TransientStorageError{}
