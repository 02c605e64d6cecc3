package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrReuseUnsupported is returned by GetReuseToken when the backend has
	// no scope-narrowing facility. Callers fall back to plain queries.
	ErrReuseUnsupported = errors.New("reuse token not supported")

	// ErrUnknownHandle is wrapped by errors about handles that were never
	// issued or were already released.
	ErrUnknownHandle = errors.New("unknown query handle")
)

// ExecutionError reports that the backend rejected or failed to run a query.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// FetchError reports a failure while pulling rows from an executed query.
type FetchError struct {
	Handle Handle
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch rows (handle %d): %v", e.Handle, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RowConversionError reports a row whose property could not be read as
// the expected type. The offending row is skipped, the query continues.
type RowConversionError struct {
	Property string
	Want     string
	Value    any
}

func (e *RowConversionError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("row property %q: missing, want %s", e.Property, e.Want)
	}
	return fmt.Sprintf("row property %q: got %T, want %s", e.Property, e.Value, e.Want)
}
