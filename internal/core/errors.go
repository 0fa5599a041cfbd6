package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record matches a name, code or key.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidIdentifier is returned when an external ID is not a digit
	// string of at least MinExternalIDLength characters.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidName is returned when a name canonicalizes to the empty string.
	ErrInvalidName = errors.New("invalid name")

	// ErrStoreUnavailable matches every failure reported by the durable store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a failure from the durable store with the operation that hit it.
//
// errors.Is(err, ErrStoreUnavailable) is true for every StoreError; the driver
// error stays reachable through errors.Unwrap.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrStoreUnavailable as a match.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// storeErr wraps err as a StoreError unless it is nil or ErrNotFound.
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// invalidIDError reports the offending value alongside ErrInvalidIdentifier.
func invalidIDError(id string) error {
	return fmt.Errorf("%w: %q must be at least %d digits", ErrInvalidIdentifier, id, MinExternalIDLength)
}
