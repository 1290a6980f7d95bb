package errors

import (
	"errors"
	"fmt"
)

// Common error types for the storefront session subsystem
var (
	// Credential errors (recoverable, the user retries or corrects input)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateAccount   = errors.New("account already registered")
	ErrWeakCredential     = errors.New("credential does not meet strength requirements")
	ErrValidation         = errors.New("invalid registration data")

	// Account state errors
	ErrInactiveAccount  = errors.New("account is inactive")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrUserNotFound     = errors.New("user not found")

	// Token errors
	ErrUnauthorized = errors.New("bearer token rejected")

	// Reconciliation errors (resolved automatically by rollback/sign-out,
	// surfaced only as a generic failure)
	ErrInconsistentIdentity = errors.New("external identity has no backend counterpart")

	// Operation errors
	ErrOperationInFlight  = errors.New("another session operation is in flight")
	ErrSuperseded         = errors.New("operation superseded by a newer state change")
	ErrFederatedCancelled = errors.New("federated sign-in cancelled")

	// Transport errors (recoverable, the user retries)
	ErrNetwork = errors.New("network failure")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
