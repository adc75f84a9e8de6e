package ws

import (
	"errors"
	"fmt"
)

// ErrProtocol matches every protocol violation raised by the client.
var ErrProtocol = errors.New("graphql-ws protocol violation")

type (
	// HandshakeError is returned when the reply to connection_init isn't an
	// ack for the init id.
	HandshakeError struct {
		Type MessageType
		ID   *MessageID
	}

	// CorrelationError is returned when a frame arrives for an operation we
	// never started.
	CorrelationError struct {
		Expected MessageID
		Got      *MessageID
	}

	// UnexpectedFrameError is returned for any frame other than data or
	// complete once the operation has started.
	UnexpectedFrameError struct {
		Frame *OperationMessage
	}

	DecodeError struct {
		Text string
		Err  error
	}
)

func (e *HandshakeError) Error() string {
	if e.Type != GQL_CONNECTION_ACK {
		return fmt.Sprintf("Unexpected %s when waiting for connection ack", e.Type)
	}

	return fmt.Sprintf("Unexpected id %s when waiting for connection ack", e.ID)
}

func (e *HandshakeError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("Unexpected id %s when waiting for query results", e.Got)
}

func (e *CorrelationError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *UnexpectedFrameError) Error() string {
	if !e.Frame.Type.Known() {
		return fmt.Sprintf("Unrecognized message %s when waiting for query results", e.Frame)
	}

	return fmt.Sprintf("Unexpected message %s when waiting for query results", e.Frame)
}

func (e *UnexpectedFrameError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid frame %q: %v", e.Text, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
