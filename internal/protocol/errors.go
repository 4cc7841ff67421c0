package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of a frame error
type ErrorKind int

const (
	// ErrKindMalformed indicates a structural problem limited to one frame
	ErrKindMalformed ErrorKind = iota
	// ErrKindUnknownDeviceType indicates an unrecognized unit info byte
	ErrKindUnknownDeviceType
	// ErrKindImplausible indicates measurements outside sane bounds
	ErrKindImplausible
	// ErrKindResyncExhausted indicates no structural alignment was found
	ErrKindResyncExhausted
)

// Sentinel errors for errors.Is matching
var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrUnknownDeviceType = errors.New("unknown device type")
	ErrImplausible       = errors.New("implausible frame")
	ErrResyncExhausted   = errors.New("frame resync exhausted")
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrKindMalformed:
		return "Malformed Frame"
	case ErrKindUnknownDeviceType:
		return "Unknown Device Type"
	case ErrKindImplausible:
		return "Plausibility Rejected"
	case ErrKindResyncExhausted:
		return "Resync Exhausted"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrKindUnknownDeviceType:
		return ErrUnknownDeviceType
	case ErrKindImplausible:
		return ErrImplausible
	case ErrKindResyncExhausted:
		return ErrResyncExhausted
	default:
		return ErrMalformedFrame
	}
}

// FrameError describes why a frame was rejected
type FrameError struct {
	Kind    ErrorKind // Category of error
	Message string    // Human-readable detail
	Value   int       // Offending raw value (unit info byte, pH raw, ...), -1 if none
	Frame   []byte    // Frame bytes for diagnostics
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *FrameError) Unwrap() error {
	return e.Err
}

// Is matches the kind's sentinel error
func (e *FrameError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Fatal reports whether the connection that produced the frame should be
// closed. A misaligned or unrecognized stream corrupts every frame after it.
func (e *FrameError) Fatal() bool {
	return e.Kind == ErrKindUnknownDeviceType || e.Kind == ErrKindResyncExhausted
}

func newFrameError(kind ErrorKind, value int, frame []byte, format string, args ...any) *FrameError {
	return &FrameError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Value:   value,
		Frame:   append([]byte(nil), frame...),
	}
}

// IsFatal reports whether err is a FrameError that must close the connection
func IsFatal(err error) bool {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.Fatal()
	}
	return false
}

// KindOf returns the kind of a FrameError and false for any other error
func KindOf(err error) (ErrorKind, bool) {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}
