package connection

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrEmptyTopic      = errors.New("topic key is empty")
	ErrNilHandler      = errors.New("update handler is nil")
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no heart-beat)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Error is implemented by the three failure kinds of the live-update
// client: *ParseError, *ProtocolError and *TransportError.
type Error interface {
	error
	liveUpdateError()
}

// ParseError reports a MESSAGE body that could not be turned into an event.
// It is logged and counted; consumers never receive it.
type ParseError struct {
	Topic     string
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse update on %s (message %s): %v", e.Topic, e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProtocolError reports a STOMP ERROR frame or an undecodable frame. The
// session is abandoned and the reconnection policy applies.
type ProtocolError struct {
	Message string // ERROR frame "message" header
	Detail  string // ERROR frame body
	Err     error  // Decoding failure, if the frame itself was malformed
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stomp protocol error: %v", e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("stomp error frame: %s: %s", e.Message, e.Detail)
	}
	return fmt.Sprintf("stomp error frame: %s", e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError reports a socket-level failure during Op ("dial",
// "handshake", "read", "write").
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (*ParseError) liveUpdateError()     {}
func (*ProtocolError) liveUpdateError()  {}
func (*TransportError) liveUpdateError() {}

// closeError marks a session that ended by a close or a heart-beat timeout.
// It is logged and triggers a reconnect but is not reported to consumers.
type closeError struct {
	err error
}

func (e *closeError) Error() string { return "connection closed: " + e.err.Error() }
func (e *closeError) Unwrap() error { return e.err }
