// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error
// kinds and human-friendly messages, covering the failure taxonomy of the IPC
// channel: transport failures, decode failures, correlation defects, timeouts,
// and cooperative cancellation.
//
// The package supports wrapping underlying errors while maintaining error kind
// information, so callers can branch on the category without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ConnectionRefused indicates no peer was listening at the endpoint.
	ConnectionRefused Kind = "connection_refused"
	// WriteFailed indicates an I/O error on the outbound path. The connection
	// instance must not be reused after this.
	WriteFailed Kind = "write_failed"
	// ReadFailed indicates an I/O error on the inbound path.
	ReadFailed Kind = "read_failed"
	// EndOfStream indicates the peer closed the connection cleanly.
	EndOfStream Kind = "end_of_stream"
	// DecodeFailed indicates a malformed message envelope.
	DecodeFailed Kind = "decode_failed"
	// Timeout indicates no response arrived within the request deadline.
	Timeout Kind = "timeout"
	// NotConnected indicates an operation was attempted without a live connection.
	NotConnected Kind = "not_connected"
	// Cancelled indicates the operation was stopped by the cancellation signal.
	Cancelled Kind = "cancelled"
	// DuplicateID indicates a request id was registered twice. This must never
	// happen under correct identifier partitioning.
	DuplicateID Kind = "duplicate_id"
	// BadPartition indicates an identifier partition registration was rejected.
	BadPartition Kind = "bad_partition"
	// Internal indicates a defect in the client itself.
	Internal Kind = "internal"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Is reports whether err or any error in its chain carries the given kind.
func Is(err error, kind Kind) bool {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
