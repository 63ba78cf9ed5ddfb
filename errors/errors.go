// Package errors implements the error-kind taxonomy described for the
// capsule pipeline: a handful of named kinds (not Go types) that callers at
// the system boundary and inside the pipeline orchestrators branch on to
// decide between reporting to the caller, recovering locally, or
// propagating.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the shape handed back to the (external, out-of-scope) request
// layer so it can render a 4xx/5xx response without the caller needing to
// know about our internal error kinds.
type APIError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func (e APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

func (e APIError) Unwrap() error { return e.Err }

func newAPIError(msg string, status int, err error) APIError {
	return APIError{Msg: msg, Status: status, Err: err}
}

// ClientInput: bad capsule id, wrong state, missing field. No state change.
func ClientInput(msg string, err error) APIError {
	return newAPIError(msg, http.StatusBadRequest, err)
}

// Conflict: e.g. produce while already producing. No state change.
func Conflict(msg string, err error) APIError {
	return newAPIError(msg, http.StatusConflict, err)
}

// NotAuthorized: caller lacks the required role on the capsule. No state change.
func NotAuthorized(msg string, err error) APIError {
	return newAPIError(msg, http.StatusUnauthorized, err)
}

// Internal: a generic 5xx used when a Persistence error is surfaced after a
// successful external step, per the propagation policy in §7.
func Internal(msg string, err error) APIError {
	return newAPIError(msg, http.StatusInternalServerError, err)
}

// UnretriableError marks an error that a backoff retry loop should not
// retry - used for object-not-found and any other error whose cause cannot
// change on a subsequent attempt.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	return UnretriableError{err}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

// IsUnretriable reports whether err (or something it wraps) is an UnretriableError.
func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}

// ObjectNotFoundError is returned by the storage abstraction when a key does
// not exist; it is always unretriable.
type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = fmt.Sprintf("object not found: %s: %s", msg, cause)
	} else {
		msg = fmt.Sprintf("object not found: %s", msg)
	}
	return Unretriable(ObjectNotFoundError{msg: msg, cause: cause})
}

// IsObjectNotFound checks if the error is an ObjectNotFoundError.
func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}

// ExternalToolError wraps a non-zero exit / bad stdout from the external
// media tool (§6.1). Pipeline orchestrators recover from this locally: the
// task transitions to Idle, the user is notified, and artifacts are not
// uploaded.
type ExternalToolError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	cause    error
}

func (e ExternalToolError) Error() string {
	return fmt.Sprintf("external tool %q exited %d: %s", e.Cmd, e.ExitCode, e.Stderr)
}

func (e ExternalToolError) Unwrap() error { return e.cause }

func NewExternalToolError(cmd string, exitCode int, stderr string, cause error) error {
	return ExternalToolError{Cmd: cmd, ExitCode: exitCode, Stderr: stderr, cause: cause}
}

func IsExternalTool(err error) bool {
	return errors.As(err, &ExternalToolError{})
}

// StorageError wraps an upload/download/presign failure. Handling mirrors
// ExternalToolError for in-flight pipeline tasks; for GC and listings it is
// logged and swallowed by the caller instead.
type StorageError struct {
	Op    string
	Key   string
	cause error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %s", e.Op, e.Key, e.cause)
}

func (e StorageError) Unwrap() error { return e.cause }

func NewStorageError(op, key string, cause error) error {
	return StorageError{Op: op, Key: key, cause: cause}
}

func IsStorage(err error) bool {
	return errors.As(err, &StorageError{})
}

// PersistenceError wraps a failure to read/write the opaque persistence
// layer (§6.3). Per §7 it is logged and propagated; if it happens after a
// successful external step the caller should attempt a best-effort final
// write and then surface Internal.
type PersistenceError struct {
	Op    string
	cause error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %s", e.Op, e.cause)
}

func (e PersistenceError) Unwrap() error { return e.cause }

func NewPersistenceError(op string, cause error) error {
	return PersistenceError{Op: op, cause: cause}
}

func IsPersistence(err error) bool {
	return errors.As(err, &PersistenceError{})
}

// BrokerTransientError marks a publish/consume failure that the worker-level
// reconnection loop should retry. Consumer cancellation is always treated as
// idempotent by callers of this kind.
type BrokerTransientError struct{ cause error }

func (e BrokerTransientError) Error() string { return fmt.Sprintf("broker transient: %s", e.cause) }
func (e BrokerTransientError) Unwrap() error { return e.cause }

func NewBrokerTransientError(cause error) error {
	return BrokerTransientError{cause: cause}
}

func IsBrokerTransient(err error) bool {
	return errors.As(err, &BrokerTransientError{})
}

var (
	ErrNotFound    = errors.New("capsule not found")
	ErrWrongState  = errors.New("capsule is not in a state that allows this operation")
	ErrNotOneOwner = errors.New("exactly one owner is required")
)
