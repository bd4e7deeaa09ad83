package client

import "fmt"

// HandshakeErrorKind classifies an initialize handshake failure.
type HandshakeErrorKind int

const (
	// HandshakeRejected means the server answered the initialize request
	// with an error.
	HandshakeRejected HandshakeErrorKind = iota
	// HandshakeTimedOut means no acknowledgement arrived in time.
	HandshakeTimedOut
	// HandshakeVersionMismatch means the server acknowledged with a
	// protocol version this client does not speak.
	HandshakeVersionMismatch
)

// String returns the kind name.
func (k HandshakeErrorKind) String() string {
	switch k {
	case HandshakeTimedOut:
		return "timed out"
	case HandshakeVersionMismatch:
		return "version mismatch"
	default:
		return "rejected"
	}
}

// HandshakeError is a failed initialize exchange. The session is
// unusable after one; the owning client tears the channel down.
type HandshakeError struct {
	Kind          HandshakeErrorKind
	ServerVersion string // set for HandshakeVersionMismatch
	Err           error
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	switch {
	case e.Kind == HandshakeVersionMismatch && e.ServerVersion != "":
		return fmt.Sprintf("handshake: %s: server speaks %q", e.Kind, e.ServerVersion)
	case e.Err != nil:
		return fmt.Sprintf("handshake: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("handshake: %s", e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// InvocationErrorKind classifies a failed tool invocation.
type InvocationErrorKind int

const (
	// InvocationToolFailed means the tool ran and reported failure,
	// either as a JSON-RPC error or an isError result.
	InvocationToolFailed InvocationErrorKind = iota
	// InvocationTimedOut means no response arrived before the call
	// deadline. The pending entry is removed, so a late response is
	// dropped rather than mis-delivered.
	InvocationTimedOut
	// InvocationUnroutable means the session shut down while the call
	// was in flight and the response can never arrive.
	InvocationUnroutable
)

// String returns the kind name.
func (k InvocationErrorKind) String() string {
	switch k {
	case InvocationTimedOut:
		return "timed out"
	case InvocationUnroutable:
		return "unroutable"
	default:
		return "tool failed"
	}
}

// InvocationError is a failed tool invocation, distinguishable from
// transport failure via errors.As.
type InvocationError struct {
	Kind InvocationErrorKind
	Tool string
	// ServerMessage is the failure text the server reported, when any.
	ServerMessage string
	Err           error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("invoke %q: %s", e.Tool, e.Kind)
	if e.ServerMessage != "" {
		return msg + ": " + e.ServerMessage
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}
