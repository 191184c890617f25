// Package store is the typed gateway over the durable key/value store.
//
// All operations return plain errors; callers never see raw transport
// failures. Errors carry a kind so callers can distinguish retryable
// conditions from fatal ones via IsRetryable / IsFatal. Absent data is
// returned as (nil, nil), never as an error.
//
// Every numeric value crossing the store boundary is coerced to a
// fixed-decimal representation; the store never receives binary floats.
package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures.
type ErrorKind int

const (
	// KindRetryable marks transient failures: the operation may succeed if
	// repeated (conflicts, exhausted batch retries, timeouts).
	KindRetryable ErrorKind = iota
	// KindFatal marks failures that will not succeed on retry
	// (schema violations, closed store, corrupt payloads).
	KindFatal
)

// OpError is the gateway's error type.
type OpError struct {
	Kind  ErrorKind
	Op    string
	Table string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func retryable(op, table string, err error) error {
	return &OpError{Kind: KindRetryable, Op: op, Table: table, Err: err}
}

func fatal(op, table string, err error) error {
	return &OpError{Kind: KindFatal, Op: op, Table: table, Err: err}
}

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Kind == KindRetryable
}

// IsFatal reports whether err is a permanent gateway failure.
func IsFatal(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Kind == KindFatal
}
