package transport

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

// asTransportError unwraps err into a *Error for assertions.
func asTransportError(err error, target **Error) bool {
	return errors.As(err, target)
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrorTimeout, "timeout"},
		{ErrorConnectionRefused, "connection refused"},
		{ErrorProtocolMismatch, "protocol mismatch"},
		{ErrorOther, "transport error"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrorTimeout},
		{"wrapped deadline", fmt.Errorf("doing thing: %w", context.DeadlineExceeded), ErrorTimeout},
		{"connection refused", syscall.ECONNREFUSED, ErrorConnectionRefused},
		{"wrapped refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), ErrorConnectionRefused},
		{"plain error", errors.New("boom"), ErrorOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := newError("open", fmt.Errorf("wrapping: %w", inner))
	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, want true")
	}
}

func TestErrorTimeout(t *testing.T) {
	timeoutErr := &Error{Kind: ErrorTimeout, Op: "open"}
	if !timeoutErr.Timeout() {
		t.Error("Timeout() = false for ErrorTimeout")
	}
	otherErr := &Error{Kind: ErrorOther, Op: "open"}
	if otherErr.Timeout() {
		t.Error("Timeout() = true for ErrorOther")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"http", KindStreamableHTTP, false},
		{"streamable", KindStreamableHTTP, false},
		{"", KindStreamableHTTP, false},
		{"sse", KindSSE, false},
		{"ws", KindWebSocket, false},
		{"websocket", KindWebSocket, false},
		{"carrier-pigeon", KindStreamableHTTP, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
