package server

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start when the listener is already bound.
var ErrAlreadyRunning = errors.New("server: already running")

// BindError reports that the listening socket could not be created
// (port in use, permission denied, bad address).
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// CallbackError wraps a failure (returned error or recovered panic) from
// one of the OnData, RawSink or Forward handlers. It is logged and never
// ends the connection.
type CallbackError struct {
	Callback string
	Session  string
	Err      error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback failed: %v", e.Callback, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}
