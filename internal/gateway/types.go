package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned for any operation on a connection that
// has dropped or been closed.
var ErrNotConnected = errors.New("not connected")

// ErrKind classifies a connection failure. The pool's retry policy
// branches on this classification.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	KindIdentifierInUse
	KindRefused
	KindTimeout
	KindUnreachable
)

// String returns a short label for the kind.
func (k ErrKind) String() string {
	switch k {
	case KindIdentifierInUse:
		return "identifier_in_use"
	case KindRefused:
		return "refused"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ConnError is a classified connection failure.
type ConnError struct {
	Kind ErrKind
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("gateway connect (%s): %v", e.Kind, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindUnknown when err is
// not a ConnError.
func KindOf(err error) ErrKind {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Wire-level error code the gateway sends when the requested client id
// already has an active session.
const codeClientIDInUse = "326"

// DialConfig configures a TCPDialer.
type DialConfig struct {
	WriteTimeout time.Duration // Write deadline for request frames
	BufferSize   int           // Per-subscription quote channel buffer
}

// DefaultDialConfig returns sensible defaults.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}
