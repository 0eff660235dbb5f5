package errors

import (
	"errors"
	"fmt"
)

// Common error types for the bridge
var (
	// Transport errors
	ErrNotConnected   = errors.New("transport not connected")
	ErrConnectTimeout = errors.New("transport connect timeout")
	ErrTerminated     = errors.New("transport terminated")

	// Registry errors
	ErrContextNotFound = errors.New("context not found")
	ErrEmptyContext    = errors.New("context cannot be empty")

	// OAuth flow errors
	ErrInvalidState    = errors.New("invalid state")
	ErrMissingCode     = errors.New("missing code")
	ErrListenerStopped = errors.New("callback listener stopped")

	// Form submission errors
	ErrMissingURL = errors.New("missing url")

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
