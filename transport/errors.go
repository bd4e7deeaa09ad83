package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	// ErrorOther covers failures with no more specific classification.
	ErrorOther ErrorKind = iota
	// ErrorTimeout means the operation exceeded its deadline.
	ErrorTimeout
	// ErrorConnectionRefused means the remote endpoint refused the
	// connection.
	ErrorConnectionRefused
	// ErrorProtocolMismatch means the remote endpoint answered with
	// something that is not the expected transport protocol.
	ErrorProtocolMismatch
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTimeout:
		return "timeout"
	case ErrorConnectionRefused:
		return "connection refused"
	case ErrorProtocolMismatch:
		return "protocol mismatch"
	default:
		return "transport error"
	}
}

// Error is a transport-level failure. It is always fatal to the
// operation that raised it; a failed open never leaves a channel
// half-open.
type Error struct {
	Kind ErrorKind
	Op   string // "open", "send", "close"
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *Error) Timeout() bool {
	return e.Kind == ErrorTimeout
}

// ErrClosed is returned by Send on a closed channel.
var ErrClosed = errors.New("channel closed")

// newError wraps err with a classified kind.
func newError(op string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Err: err}
}

// protocolError flags a remote endpoint that is not speaking the
// expected protocol.
func protocolError(op, format string, args ...any) *Error {
	return &Error{Kind: ErrorProtocolMismatch, Op: op, Err: fmt.Errorf(format, args...)}
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorConnectionRefused
	}
	return ErrorOther
}
