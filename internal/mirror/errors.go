package mirror

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrAlreadyRunning is returned by Start when the worker is already running.
var ErrAlreadyRunning = errors.New("mirror: already running")

// Op is the forwarding step that failed.
type Op int

const (
	// OpConnect is a failed dial to the mirror endpoint
	OpConnect Op = iota
	// OpWrite is a failed frame write on an open connection
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpConnect:
		return "connect"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("Op(%d)", o)
	}
}

// Cause narrows a network failure down for logs and stats.
type Cause int

const (
	CauseGeneral Cause = iota
	CauseTimeout
	CauseConnectionRefused
	CauseConnectionReset
	CauseDNS
	CauseHostUnreachable
	CauseNetworkUnreachable
	CauseClosed
)

// String returns a human-readable name for the cause
func (c Cause) String() string {
	switch c {
	case CauseGeneral:
		return "Network Error"
	case CauseTimeout:
		return "Timeout"
	case CauseConnectionRefused:
		return "Connection Refused"
	case CauseConnectionReset:
		return "Connection Reset"
	case CauseDNS:
		return "DNS Error"
	case CauseHostUnreachable:
		return "Host Unreachable"
	case CauseNetworkUnreachable:
		return "Network Unreachable"
	case CauseClosed:
		return "Connection Closed"
	default:
		return fmt.Sprintf("Cause(%d)", c)
	}
}

// ForwardError describes a failed connect or write to the mirror. It is
// logged and retried; Enqueue callers never see it.
type ForwardError struct {
	Op    Op
	Addr  string
	Cause Cause
	Err   error
}

// Error implements the error interface
func (e *ForwardError) Error() string {
	return fmt.Sprintf("mirror %s %s: %s (caused by: %v)", e.Op, e.Addr, e.Cause, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ForwardError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError wraps err in a *ForwardError with the most specific
// cause it can find.
func ClassifyNetworkError(op Op, addr string, err error) *ForwardError {
	if err == nil {
		return nil
	}

	fe := &ForwardError{Op: op, Addr: addr, Cause: CauseGeneral, Err: err}

	var dnsErr *net.DNSError
	switch {
	case os.IsTimeout(err):
		fe.Cause = CauseTimeout
	case errors.As(err, &dnsErr):
		fe.Cause = CauseDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		fe.Cause = CauseConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		fe.Cause = CauseConnectionReset
	case errors.Is(err, syscall.EHOSTUNREACH):
		fe.Cause = CauseHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH):
		fe.Cause = CauseNetworkUnreachable
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		fe.Cause = CauseClosed
	}
	return fe
}
