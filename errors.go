package ircsock

import (
	"errors"
	"fmt"

	"github.com/opd-ai/ircsock/limits"
)

// Common errors returned by a Connection
var (
	// ErrBufferOverflow indicates the server sent more than 1024 bytes without
	// a line terminator. The socket is destroyed when this happens.
	ErrBufferOverflow = limits.ErrFragmentTooLarge

	// ErrEncodingUnset indicates a write was attempted before any encoding was accepted
	ErrEncodingUnset = errors.New("encoding not set")

	// ErrNotConnected indicates there is no connected socket to write to
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed indicates the connection has been closed and no messages remain
	ErrConnectionClosed = errors.New("connection closed")

	// ErrDisposed indicates the Connection has been disposed
	ErrDisposed = errors.New("connection disposed")

	// ErrBufferFull indicates the outbound queue is full
	ErrBufferFull = errors.New("write buffer full")

	// ErrReadInProgress indicates another read is already waiting for messages
	ErrReadInProgress = errors.New("read already in progress")

	// ErrInvalidOptions indicates the options cannot describe a connection
	ErrInvalidOptions = errors.New("invalid options")
)

// NetError represents a transport error with additional context
type NetError struct {
	Op   string // operation that caused the error
	Addr string // server address
	Err  error  // underlying error
}

func (e *NetError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("irc %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("irc %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}

func newNetError(op, addr string, err error) *NetError {
	return &NetError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
