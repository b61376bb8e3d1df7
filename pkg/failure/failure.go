// Package failure defines the closed set of error kinds surfaced by the
// capture, normalization and prediction layers.
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	PermissionDenied Kind = "PERMISSION_DENIED" // user or OS refused camera access
	DeviceNotFound   Kind = "DEVICE_NOT_FOUND"  // requested camera is not available
	Unsupported      Kind = "UNSUPPORTED"       // no media capture capability at all
	AccessError      Kind = "ACCESS_ERROR"      // any other camera failure
	DecodeError      Kind = "DECODE_ERROR"      // source bytes are not an image
	EncodeError      Kind = "ENCODE_ERROR"      // encoder produced no output
	TransportError   Kind = "TRANSPORT_ERROR"   // prediction request failed
)

// Error is a failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	// Status is the HTTP status for TransportError, zero otherwise.
	Status int
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error for op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a tagged error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// NewTransport creates a TransportError carrying an HTTP status.
func NewTransport(op string, status int, err error) *Error {
	return &Error{Kind: TransportError, Op: op, Status: status, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is checks if err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
