package primitives

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind is the stable error taxonomy from the spec: every error raised
// by the core pipeline carries exactly one kind, serialized with these
// string tags in logs and JSON-RPC error payloads.
type ErrorKind string

const (
	KindTransport         ErrorKind = "transport"
	KindDeserialize       ErrorKind = "deserialize"
	KindMissingReceipt    ErrorKind = "missing_receipt"
	KindExecutionMismatch ErrorKind = "execution_mismatch"
	KindConflict          ErrorKind = "conflict"
	KindNotLeader         ErrorKind = "not_leader"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindInternal          ErrorKind = "internal"
)

// Error is the error type threaded through the importer/executor/storage
// pipeline. Internal-kind errors are constructed with pkg/errors so a
// stack trace is attached for post-condition-violation crashes.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, cause error) *Error {
	if kind == KindInternal {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Is allows errors.Is(err, primitives.NewError(primitives.KindTransport, ""))
// style kind checks: any *Error target with the same Kind matches.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the ErrorKind carried by err, defaulting to KindInternal
// for errors that never went through NewError/WrapError.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the nearest retry boundary (importer loop,
// executor save_block, rpcclient call) should retry this error.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}

// MissingReceiptErr builds a MissingReceipt error for the given transaction.
func MissingReceiptErr(hash Hash) *Error {
	return NewError(KindMissingReceipt, fmt.Sprintf("no receipt found for transaction %s", hash))
}

// ExecutionMismatchKind names which reconciliation check failed.
type ExecutionMismatchKind string

const (
	MismatchStatus ExecutionMismatchKind = "status"
	MismatchGas    ExecutionMismatchKind = "gas_used"
	MismatchBloom  ExecutionMismatchKind = "logs_bloom"
	MismatchLogs   ExecutionMismatchKind = "logs"
)

func ExecutionMismatchErr(hash Hash, kind ExecutionMismatchKind) *Error {
	return NewError(KindExecutionMismatch, fmt.Sprintf("transaction %s reconciliation failed: %s", hash, kind))
}

// ConflictError is Conflict{kinds}: the optimistic-concurrency violation
// raised by save_block. Kinds is the distinct set of violated checks.
type ConflictError struct {
	err   *Error
	Kinds []ConflictKind
}

func NewConflictError(kinds []ConflictKind) *ConflictError {
	return &ConflictError{
		err:   NewError(KindConflict, fmt.Sprintf("conflicting kinds: %v", kinds)),
		Kinds: kinds,
	}
}

func (e *ConflictError) Error() string { return e.err.Error() }

// Unwrap exposes the Kind-carrying *Error itself (rather than its cause)
// so errors.As(err, &someErrorPointer) finds it one level down the chain.
func (e *ConflictError) Unwrap() error { return e.err }
